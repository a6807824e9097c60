// Package browser defines the driver-neutral contracts the replay engine
// uses to control a live browser, plus a go-rod implementation.
package browser

import (
	"context"
	"errors"

	"github.com/hairizuan-noorazman/ui-replay/flow"
)

var (
	// ErrPageClosed is returned when operating on a page that has gone away.
	ErrPageClosed = errors.New("page closed")

	// ErrNotConnected is returned when the browser connection is unavailable.
	ErrNotConnected = errors.New("browser not connected")
)

// Browser is one live, remotely driven browser instance.
type Browser interface {
	// NewPage opens a blank page.
	NewPage(ctx context.Context) (Page, error)

	// OnPopup registers a callback invoked for every page opened by another
	// page (window.open, target=_blank). It returns a function that stops
	// delivery.
	OnPopup(fn func(opener, popup Page)) (stop func())

	// Disconnect drops the automation connection and leaves the browser running.
	Disconnect() error

	// Close terminates the browser.
	Close() error
}

// Page is one tab.
type Page interface {
	ID() string
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	WaitLoad(ctx context.Context) error
	Emulate(ctx context.Context, device flow.Device) error
	Activate(ctx context.Context) error

	// QueryXPath returns the first element matching the XPath, or nil when
	// nothing matches. It does not wait for the element to appear.
	QueryXPath(ctx context.Context, xpath string) (Element, error)

	// QueryCSS returns the first element matching the selector, or nil.
	QueryCSS(ctx context.Context, selector string) (Element, error)

	PressKey(ctx context.Context, key string) error
	ScrollTo(ctx context.Context, top, left float64) error
	Screenshot(ctx context.Context) ([]byte, error)

	// Listen subscribes to the page's event streams. Callbacks may run on
	// driver goroutines concurrently with step execution.
	Listen(h Handlers) (stop func())

	Close(ctx context.Context) error
}

// Element is a resolved DOM element.
type Element interface {
	Describe(ctx context.Context) (flow.ElementInfo, error)
	Click(ctx context.Context) error
	Hover(ctx context.Context) error
	MouseDown(ctx context.Context) error
	Focus(ctx context.Context) error
	Press(ctx context.Context, key string) error

	// Type clears the element and types value into it.
	Type(ctx context.Context, value string) error
	SetChecked(ctx context.Context, checked bool) error
	SetFiles(ctx context.Context, paths []string) error
	ScrollTo(ctx context.Context, top, left float64) error

	// Dispatch fires a synthetic DOM event of the given type on the element.
	Dispatch(ctx context.Context, eventType string) error
}

// Dialog is a native dialog awaiting resolution.
type Dialog interface {
	Type() flow.DialogType
	Message() string
	Accept(promptText string) error
	Dismiss() error
}

// ResourceType classifies a network exchange.
type ResourceType string

const (
	ResourceXHR         ResourceType = "xhr"
	ResourceFetch       ResourceType = "fetch"
	ResourceWebSocket   ResourceType = "websocket"
	ResourceEventSource ResourceType = "eventsource"
	ResourceDocument    ResourceType = "document"
	ResourceOther       ResourceType = "other"
)

// Request is a network exchange observed on a page.
type Request struct {
	ID           string
	URL          string
	Method       string
	ResourceType ResourceType
}

// IsData reports whether the exchange carries application data rather than
// page assets.
func (r Request) IsData() bool {
	switch r.ResourceType {
	case ResourceXHR, ResourceFetch, ResourceWebSocket, ResourceEventSource:
		return true
	default:
		return false
	}
}

// Handlers receives page events. Nil callbacks are ignored.
type Handlers struct {
	OnRequest         func(Request)
	OnRequestFinished func(Request)
	OnRequestFailed   func(Request)
	OnDialog          func(Dialog)
	OnLoad            func()
	OnClose           func()
}
