// Package browsertest provides in-memory fakes of the browser contracts.
package browsertest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"github.com/hairizuan-noorazman/ui-replay/browser"
	"github.com/hairizuan-noorazman/ui-replay/flow"
)

// Browser is a fake browser.Browser. Pages are created on demand.
type Browser struct {
	mu     sync.Mutex
	pages  []*Page
	popups map[int]func(opener, popup browser.Page)
	nextID int

	// NewPageErr, when set, is returned by NewPage.
	NewPageErr error

	// OnNewPage is invoked for every page created via NewPage.
	OnNewPage func(p *Page)

	Disconnected bool
	Closed       bool
}

// NewBrowser returns an empty fake browser.
func NewBrowser() *Browser {
	return &Browser{popups: make(map[int]func(opener, popup browser.Page))}
}

// NewPage implements browser.Browser.
func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	if b.NewPageErr != nil {
		return nil, b.NewPageErr
	}
	p := b.AddPage("about:blank")
	if b.OnNewPage != nil {
		b.OnNewPage(p)
	}
	return p, nil
}

// AddPage creates a page without going through NewPage, as a popup would.
func (b *Browser) AddPage(url string) *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	p := NewPage(fmt.Sprintf("page-%d", b.nextID), url)
	b.pages = append(b.pages, p)
	return p
}

// Pages returns every page created so far.
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

// OnPopup implements browser.Browser.
func (b *Browser) OnPopup(fn func(opener, popup browser.Page)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := len(b.popups) + 1
	for b.popups[id] != nil {
		id++
	}
	b.popups[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.popups, id)
	}
}

// EmitPopup synchronously delivers a popup to every registered callback.
func (b *Browser) EmitPopup(opener, popup *Page) {
	b.mu.Lock()
	fns := make([]func(opener, popup browser.Page), 0, len(b.popups))
	for _, fn := range b.popups {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(opener, popup)
	}
}

// Disconnect implements browser.Browser.
func (b *Browser) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Disconnected = true
	return nil
}

// Close implements browser.Browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

// Page is a fake browser.Page.
type Page struct {
	id string

	mu        sync.Mutex
	url       string
	elements  map[string]*Element
	handlers  map[int]browser.Handlers
	nextH     int
	closed    bool
	activated int
	navigated []string
	keys      []string
	scrolls   [][2]float64
	device    *flow.Device
	shot      []byte

	// ShotErr, when set, is returned by Screenshot.
	ShotErr error

	// OnNavigate runs after every Navigate, outside the page lock.
	OnNavigate func(url string)
}

// NewPage returns a detached fake page.
func NewPage(id, url string) *Page {
	return &Page{
		id:       id,
		url:      url,
		elements: make(map[string]*Element),
		handlers: make(map[int]browser.Handlers),
		shot:     SolidPNG(4, 4, color.White),
	}
}

// AddElement makes el resolvable by selector through both XPath and CSS queries.
func (p *Page) AddElement(selector string, el *Element) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = el
	return el
}

// SetScreenshot sets the bytes returned by Screenshot.
func (p *Page) SetScreenshot(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shot = b
}

// SetURL changes the page url without navigating.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

func (p *Page) ID() string { return p.id }

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", browser.ErrPageClosed
	}
	return p.url, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return browser.ErrPageClosed
	}
	p.url = url
	p.navigated = append(p.navigated, url)
	hook := p.OnNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	return nil
}

func (p *Page) WaitLoad(ctx context.Context) error { return nil }

func (p *Page) Emulate(ctx context.Context, device flow.Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.device = &device
	return nil
}

func (p *Page) Activate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return browser.ErrPageClosed
	}
	p.activated++
	return nil
}

func (p *Page) QueryXPath(ctx context.Context, xpath string) (browser.Element, error) {
	return p.query(xpath)
}

func (p *Page) QueryCSS(ctx context.Context, selector string) (browser.Element, error) {
	return p.query(selector)
}

func (p *Page) query(selector string) (browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, browser.ErrPageClosed
	}
	el, ok := p.elements[selector]
	if !ok {
		return nil, nil
	}
	return el, nil
}

func (p *Page) PressKey(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *Page) ScrollTo(ctx context.Context, top, left float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls = append(p.scrolls, [2]float64{top, left})
	return nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ShotErr != nil {
		return nil, p.ShotErr
	}
	return append([]byte(nil), p.shot...), nil
}

func (p *Page) Listen(h browser.Handlers) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextH++
	id := p.nextH
	p.handlers[id] = h
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}
}

func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	for _, h := range p.snapshot() {
		if h.OnClose != nil {
			h.OnClose()
		}
	}
	return nil
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Activations returns how many times the page was brought to front.
func (p *Page) Activations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activated
}

// Navigations returns every url passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

// Keys returns the keys pressed at page level.
func (p *Page) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// Scrolls returns window scroll offsets as {top, left}.
func (p *Page) Scrolls() [][2]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][2]float64(nil), p.scrolls...)
}

// Device returns the last emulated device.
func (p *Page) Device() *flow.Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device
}

// Listeners returns the number of active Listen subscriptions.
func (p *Page) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}

func (p *Page) snapshot() []browser.Handlers {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]browser.Handlers, 0, len(p.handlers))
	for _, h := range p.handlers {
		out = append(out, h)
	}
	return out
}

// EmitRequest delivers a request start to every listener.
func (p *Page) EmitRequest(r browser.Request) {
	for _, h := range p.snapshot() {
		if h.OnRequest != nil {
			h.OnRequest(r)
		}
	}
}

// FinishRequest delivers a successful completion to every listener.
func (p *Page) FinishRequest(r browser.Request) {
	for _, h := range p.snapshot() {
		if h.OnRequestFinished != nil {
			h.OnRequestFinished(r)
		}
	}
}

// FailRequest delivers a failed completion to every listener.
func (p *Page) FailRequest(r browser.Request) {
	for _, h := range p.snapshot() {
		if h.OnRequestFailed != nil {
			h.OnRequestFailed(r)
		}
	}
}

// EmitDialog delivers a dialog to every listener.
func (p *Page) EmitDialog(d browser.Dialog) {
	for _, h := range p.snapshot() {
		if h.OnDialog != nil {
			h.OnDialog(d)
		}
	}
}

// EmitLoad delivers a load event to every listener.
func (p *Page) EmitLoad() {
	for _, h := range p.snapshot() {
		if h.OnLoad != nil {
			h.OnLoad()
		}
	}
}

// Element is a fake browser.Element that records the actions applied to it.
type Element struct {
	Info flow.ElementInfo

	// Err, when set, is returned by every action.
	Err error

	// OnAction runs after every recorded action, outside the element lock.
	OnAction func(action string)

	mu      sync.Mutex
	actions []string
}

// NewElement parses a descriptor such as `<input type="file">` into a fake element.
func NewElement(descriptor string) *Element {
	return &Element{Info: flow.ParseTarget(descriptor)}
}

// Actions returns recorded actions such as "click", "type:abc", "dispatch:change".
func (e *Element) Actions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.actions...)
}

func (e *Element) record(action string) error {
	if e.Err != nil {
		return e.Err
	}
	e.mu.Lock()
	e.actions = append(e.actions, action)
	hook := e.OnAction
	e.mu.Unlock()
	if hook != nil {
		hook(action)
	}
	return nil
}

func (e *Element) Describe(ctx context.Context) (flow.ElementInfo, error) {
	return e.Info, e.Err
}

func (e *Element) Click(ctx context.Context) error     { return e.record("click") }
func (e *Element) Hover(ctx context.Context) error     { return e.record("hover") }
func (e *Element) MouseDown(ctx context.Context) error { return e.record("mousedown") }
func (e *Element) Focus(ctx context.Context) error     { return e.record("focus") }

func (e *Element) Press(ctx context.Context, key string) error {
	return e.record("press:" + key)
}

func (e *Element) Type(ctx context.Context, value string) error {
	return e.record("type:" + value)
}

func (e *Element) SetChecked(ctx context.Context, checked bool) error {
	return e.record(fmt.Sprintf("checked:%t", checked))
}

func (e *Element) SetFiles(ctx context.Context, paths []string) error {
	return e.record("files:" + strings.Join(paths, ","))
}

func (e *Element) ScrollTo(ctx context.Context, top, left float64) error {
	return e.record(fmt.Sprintf("scroll:%g,%g", top, left))
}

func (e *Element) Dispatch(ctx context.Context, eventType string) error {
	return e.record("dispatch:" + eventType)
}

// ErrDialogHandled is returned when a fake dialog is resolved twice.
var ErrDialogHandled = errors.New("dialog already handled")

// Dialog is a fake browser.Dialog.
type Dialog struct {
	Kind flow.DialogType
	Text string

	mu         sync.Mutex
	handled    bool
	accepted   bool
	promptText string
	done       chan struct{}
}

// NewDialog returns an unresolved dialog of the given kind.
func NewDialog(kind flow.DialogType, message string) *Dialog {
	return &Dialog{Kind: kind, Text: message, done: make(chan struct{})}
}

func (d *Dialog) Type() flow.DialogType { return d.Kind }
func (d *Dialog) Message() string       { return d.Text }

func (d *Dialog) Accept(promptText string) error {
	return d.resolve(true, promptText)
}

func (d *Dialog) Dismiss() error {
	return d.resolve(false, "")
}

func (d *Dialog) resolve(accept bool, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handled {
		return ErrDialogHandled
	}
	d.handled = true
	d.accepted = accept
	d.promptText = text
	close(d.done)
	return nil
}

// Done is closed once the dialog is accepted or dismissed.
func (d *Dialog) Done() <-chan struct{} { return d.done }

// Result returns whether the dialog was handled, accepted, and the prompt text.
func (d *Dialog) Result() (handled, accepted bool, promptText string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handled, d.accepted, d.promptText
}

// SolidPNG encodes a w×h image filled with c.
func SolidPNG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

var (
	_ browser.Browser = (*Browser)(nil)
	_ browser.Page    = (*Page)(nil)
	_ browser.Element = (*Element)(nil)
	_ browser.Dialog  = (*Dialog)(nil)
)
