package replay

import (
	"context"
	"io"
	"time"

	"github.com/hairizuan-noorazman/ui-replay/browser"
	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/ledger"
	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/metrics"
	"github.com/hairizuan-noorazman/ui-replay/screenshot"
	"github.com/hairizuan-noorazman/ui-replay/widget"
)

const (
	DefaultQuickSettle        = 30 * time.Millisecond
	DefaultAnimationDelay     = time.Second
	DefaultPopupSettleTimeout = 10 * time.Second
	DefaultPopupWait          = time.Second
)

// Config tunes the timing heuristics of a replay session.
type Config struct {
	// QuickSettle is the fixed pause used instead of a ledger wait when a
	// step is unlikely to trigger network activity.
	QuickSettle time.Duration

	// AnimationDelay is used for animation steps without a recorded duration.
	AnimationDelay time.Duration

	// PopupSettleTimeout bounds how long a popup may take to load before its
	// url is read.
	PopupSettleTimeout time.Duration

	// PopupWait is how long a page-created step waits for a popup to claim
	// its identity before opening the page itself.
	PopupWait time.Duration

	// Settle bounds the ledger wait. The slow threshold comes from the environment.
	Settle ledger.Config
}

func (c Config) withDefaults() Config {
	if c.QuickSettle <= 0 {
		c.QuickSettle = DefaultQuickSettle
	}
	if c.AnimationDelay <= 0 {
		c.AnimationDelay = DefaultAnimationDelay
	}
	if c.PopupSettleTimeout <= 0 {
		c.PopupSettleTimeout = DefaultPopupSettleTimeout
	}
	if c.PopupWait <= 0 {
		c.PopupWait = DefaultPopupWait
	}
	return c
}

// Artifacts persists error captures.
type Artifacts interface {
	Upload(ctx context.Context, path string, reader io.Reader) error
}

// LinkSigner turns an artifact path into an opaque download token.
type LinkSigner interface {
	Sign(path string) (string, error)
}

// Options carries a session's collaborators.
type Options struct {
	Config      Config
	Environment *flow.Environment
	Browser     browser.Browser

	// ArtifactDir is the per-flow directory screenshots are written under.
	ArtifactDir string
	Artifacts   Artifacts
	Comparator  *screenshot.Comparator
	Links       LinkSigner

	// Widgets defaults to widget.DefaultChain.
	Widgets widget.Chain
	Metrics *metrics.Metrics
	Logger  logger.Logger
}
