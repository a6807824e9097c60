package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hairizuan-noorazman/ui-replay/flow"
)

// RodPage implements Page on top of a go-rod page.
type RodPage struct {
	page  *rod.Page
	owner *RodBrowser
}

// ID returns the DevTools target id.
func (p *RodPage) ID() string {
	return string(p.page.TargetID)
}

// URL returns the page's current url.
func (p *RodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, nil
}

// Navigate loads url in the page.
func (p *RodPage) Navigate(ctx context.Context, url string) error {
	return p.page.Context(ctx).Navigate(url)
}

// WaitLoad waits for the window load event.
func (p *RodPage) WaitLoad(ctx context.Context) error {
	return p.page.Context(ctx).WaitLoad()
}

// Emulate applies viewport, user agent and touch settings.
func (p *RodPage) Emulate(ctx context.Context, device flow.Device) error {
	page := p.page.Context(ctx)
	vp := device.Viewport

	if vp.Width > 0 && vp.Height > 0 {
		scale := vp.DeviceScaleFactor
		if scale == 0 {
			scale = 1
		}
		metrics := proto.EmulationSetDeviceMetricsOverride{
			Width:             vp.Width,
			Height:            vp.Height,
			DeviceScaleFactor: scale,
			Mobile:            vp.IsMobile,
		}
		if vp.IsLandscape {
			metrics.ScreenOrientation = &proto.EmulationScreenOrientation{
				Type:  proto.EmulationScreenOrientationTypeLandscapePrimary,
				Angle: 90,
			}
		}
		if err := metrics.Call(page); err != nil {
			return fmt.Errorf("failed to set device metrics: %w", err)
		}
	}

	if device.UserAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{UserAgent: device.UserAgent}).Call(page); err != nil {
			return fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	if vp.HasTouch {
		if err := (proto.EmulationSetTouchEmulationEnabled{Enabled: true}).Call(page); err != nil {
			return fmt.Errorf("failed to enable touch: %w", err)
		}
	}
	return nil
}

// Activate brings the page to the front.
func (p *RodPage) Activate(ctx context.Context) error {
	_, err := p.page.Context(ctx).Activate()
	return err
}

// QueryXPath returns the first element matching xpath without waiting.
func (p *RodPage) QueryXPath(ctx context.Context, xpath string) (Element, error) {
	els, err := p.page.Context(ctx).ElementsX(xpath)
	if err != nil {
		return nil, err
	}
	if els.Empty() {
		return nil, nil
	}
	return &RodElement{el: els.First()}, nil
}

// QueryCSS returns the first element matching selector without waiting.
func (p *RodPage) QueryCSS(ctx context.Context, selector string) (Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	if els.Empty() {
		return nil, nil
	}
	return &RodElement{el: els.First()}, nil
}

// PressKey sends a key press to the focused element.
func (p *RodPage) PressKey(ctx context.Context, key string) error {
	k, err := KeyFor(key)
	if err != nil {
		return err
	}
	return p.page.Context(ctx).Keyboard.Type(k)
}

// ScrollTo scrolls the window to the given offsets.
func (p *RodPage) ScrollTo(ctx context.Context, top, left float64) error {
	_, err := p.page.Context(ctx).Eval(`(top, left) => window.scrollTo(left, top)`, top, left)
	return err
}

// Screenshot captures the viewport as PNG.
func (p *RodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, nil)
}

// Close closes the tab.
func (p *RodPage) Close(ctx context.Context) error {
	p.owner.forget(p.page.TargetID)
	return p.page.Context(ctx).Close()
}

// Listen wires the page's CDP event streams to h.
func (p *RodPage) Listen(h Handlers) func() {
	ctx, cancel := context.WithCancel(p.page.GetContext())

	// Only touched from the single event loop below.
	inflight := make(map[proto.NetworkRequestID]Request)

	finish := func(id proto.NetworkRequestID, cb func(Request)) {
		req, ok := inflight[id]
		if !ok {
			return
		}
		delete(inflight, id)
		if cb != nil {
			cb(req)
		}
	}

	wait := p.page.Context(ctx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if _, redirected := inflight[e.RequestID]; redirected {
				return
			}
			req := Request{
				ID:           string(e.RequestID),
				URL:          e.Request.URL,
				Method:       e.Request.Method,
				ResourceType: resourceType(e.Type),
			}
			inflight[e.RequestID] = req
			if h.OnRequest != nil {
				h.OnRequest(req)
			}
		},
		func(e *proto.NetworkLoadingFinished) {
			finish(e.RequestID, h.OnRequestFinished)
		},
		func(e *proto.NetworkLoadingFailed) {
			finish(e.RequestID, h.OnRequestFailed)
		},
		func(e *proto.NetworkWebSocketCreated) {
			req := Request{ID: string(e.RequestID), URL: e.URL, Method: "GET", ResourceType: ResourceWebSocket}
			inflight[e.RequestID] = req
			if h.OnRequest != nil {
				h.OnRequest(req)
			}
		},
		func(e *proto.NetworkWebSocketClosed) {
			finish(e.RequestID, h.OnRequestFinished)
		},
		func(e *proto.PageJavascriptDialogOpening) {
			if h.OnDialog == nil {
				return
			}
			d := &rodDialog{page: p.page, ev: e}
			go h.OnDialog(d)
		},
		func(e *proto.PageLoadEventFired) {
			if h.OnLoad != nil {
				h.OnLoad()
			}
		},
	)
	go wait()

	closed := p.owner.browser.Context(ctx).EachEvent(func(e *proto.TargetTargetDestroyed) bool {
		if e.TargetID != p.page.TargetID {
			return false
		}
		p.owner.forget(e.TargetID)
		if h.OnClose != nil {
			h.OnClose()
		}
		return true
	})
	go closed()

	return cancel
}

func resourceType(t proto.NetworkResourceType) ResourceType {
	switch t {
	case proto.NetworkResourceTypeXHR:
		return ResourceXHR
	case proto.NetworkResourceTypeFetch:
		return ResourceFetch
	case proto.NetworkResourceTypeWebSocket:
		return ResourceWebSocket
	case proto.NetworkResourceTypeEventSource:
		return ResourceEventSource
	case proto.NetworkResourceTypeDocument:
		return ResourceDocument
	default:
		return ResourceOther
	}
}

type rodDialog struct {
	page *rod.Page
	ev   *proto.PageJavascriptDialogOpening
}

func (d *rodDialog) Type() flow.DialogType {
	return flow.DialogType(d.ev.Type)
}

func (d *rodDialog) Message() string {
	return d.ev.Message
}

func (d *rodDialog) Accept(promptText string) error {
	return proto.PageHandleJavaScriptDialog{Accept: true, PromptText: promptText}.Call(d.page)
}

func (d *rodDialog) Dismiss() error {
	return proto.PageHandleJavaScriptDialog{Accept: false}.Call(d.page)
}
