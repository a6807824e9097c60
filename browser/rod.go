package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// LaunchConfig selects how a browser is obtained.
type LaunchConfig struct {
	// ControlURL attaches to an already running browser's DevTools endpoint.
	ControlURL string

	// Bin overrides the browser executable used when launching.
	Bin      string
	Headless bool

	// Flags are extra command line switches, "name" or "name=value".
	Flags []string
}

// RodBrowser implements Browser on top of go-rod.
type RodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cancel   context.CancelFunc

	mu    sync.Mutex
	pages map[proto.TargetTargetID]*RodPage
}

// Launch starts (or attaches to) a browser and connects to it.
func Launch(ctx context.Context, cfg LaunchConfig) (*RodBrowser, error) {
	controlURL := cfg.ControlURL

	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Context(ctx).Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		for _, raw := range cfg.Flags {
			name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	// The connection outlives the launch request; cancelling connCtx drops
	// the websocket without closing the browser.
	connCtx, cancel := context.WithCancel(context.Background())
	b := rod.New().ControlURL(controlURL).Context(connCtx)
	if err := b.Connect(); err != nil {
		cancel()
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to enable target discovery: %w", err)
	}

	return &RodBrowser{
		browser:  b,
		launcher: l,
		cancel:   cancel,
		pages:    make(map[proto.TargetTargetID]*RodPage),
	}, nil
}

// NewPage opens a blank page.
func (b *RodBrowser) NewPage(ctx context.Context) (Page, error) {
	p, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return b.track(p), nil
}

// OnPopup delivers pages opened by other pages.
func (b *RodBrowser) OnPopup(fn func(opener, popup Page)) func() {
	ctx, cancel := context.WithCancel(b.browser.GetContext())
	wait := b.browser.Context(ctx).EachEvent(func(e *proto.TargetTargetCreated) {
		info := e.TargetInfo
		if info == nil || info.Type != proto.TargetTargetInfoTypePage || info.OpenerID == "" {
			return
		}
		go func() {
			opener, err := b.lookup(info.OpenerID)
			if err != nil {
				return
			}
			popup, err := b.lookup(info.TargetID)
			if err != nil {
				return
			}
			fn(opener, popup)
		}()
	})
	go wait()
	return cancel
}

// Disconnect drops the connection and leaves the browser and its pages open.
func (b *RodBrowser) Disconnect() error {
	b.cancel()
	return nil
}

// Close terminates the browser and cleans up a launched process.
func (b *RodBrowser) Close() error {
	err := b.browser.Close()
	b.cancel()
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	return err
}

func (b *RodBrowser) track(p *rod.Page) *RodPage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.pages[p.TargetID]; ok {
		return existing
	}
	rp := &RodPage{page: p, owner: b}
	b.pages[p.TargetID] = rp
	return rp
}

func (b *RodBrowser) lookup(id proto.TargetTargetID) (*RodPage, error) {
	b.mu.Lock()
	rp, ok := b.pages[id]
	b.mu.Unlock()
	if ok {
		return rp, nil
	}
	p, err := b.browser.PageFromTarget(id)
	if err != nil {
		return nil, fmt.Errorf("failed to attach to target %s: %w", id, err)
	}
	return b.track(p), nil
}

func (b *RodBrowser) forget(id proto.TargetTargetID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pages, id)
}
