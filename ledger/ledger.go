// Package ledger tracks in-flight network exchanges per page so the replay
// engine can tell when a page has gone quiet.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hairizuan-noorazman/ui-replay/browser"
)

// ErrSettleTimeout is returned when a page never goes quiet within the bound.
var ErrSettleTimeout = errors.New("network did not settle")

const (
	DefaultPollInterval = time.Second
	DefaultTimeout      = 60 * time.Second
)

// Recorder receives completed exchange timings.
type Recorder interface {
	RecordAjax(url string, elapsed time.Duration, failed, slow bool)
}

// Config bounds the settle wait.
type Config struct {
	PollInterval  time.Duration
	Timeout       time.Duration
	SlowThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Ledger holds created/completed bookkeeping for a single page. Start
// timestamps are queued per url and matched first in, first out.
type Ledger struct {
	cfg      Config
	recorder Recorder
	now      func() time.Time

	mu        sync.Mutex
	started   map[string][]time.Time
	created   int
	completed int
}

// New creates an empty ledger. rec may be nil.
func New(cfg Config, rec Recorder) *Ledger {
	return &Ledger{
		cfg:      cfg.withDefaults(),
		recorder: rec,
		now:      time.Now,
		started:  make(map[string][]time.Time),
	}
}

// Create records the start of a data exchange. Page assets are ignored.
func (l *Ledger) Create(req browser.Request) {
	if !req.IsData() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started[req.URL] = append(l.started[req.URL], l.now())
	l.created++
}

// Offset records the completion of a data exchange. Completions without a
// matching start are dropped.
func (l *Ledger) Offset(req browser.Request, success bool) {
	if !req.IsData() {
		return
	}

	l.mu.Lock()
	queue := l.started[req.URL]
	if len(queue) == 0 {
		l.mu.Unlock()
		return
	}
	startedAt := queue[0]
	if len(queue) == 1 {
		delete(l.started, req.URL)
	} else {
		l.started[req.URL] = queue[1:]
	}
	l.completed++
	elapsed := l.now().Sub(startedAt)
	l.mu.Unlock()

	if l.recorder != nil {
		slow := l.cfg.SlowThreshold > 0 && elapsed >= l.cfg.SlowThreshold
		l.recorder.RecordAjax(req.URL, elapsed, !success, slow)
	}
}

// Counts returns the number of created and completed exchanges.
func (l *Ledger) Counts() (created, completed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.created, l.completed
}

// Pending returns the number of exchanges still in flight.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.created - l.completed
}

// Balanced reports whether every created exchange has completed.
func (l *Ledger) Balanced() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completed >= l.created
}

// Reset forgets all bookkeeping.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = make(map[string][]time.Time)
	l.created = 0
	l.completed = 0
}

// WaitForAllDone blocks until the ledger has been balanced on two
// consecutive polls. It fails with ErrSettleTimeout once the configured
// bound elapses and returns ctx.Err() if ctx ends first.
func (l *Ledger) WaitForAllDone(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(l.cfg.Timeout)
	defer deadline.Stop()

	streak := 0
	for {
		if l.Balanced() {
			streak++
			if streak >= 2 {
				return nil
			}
		} else {
			streak = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: %d exchanges pending after %s", ErrSettleTimeout, l.Pending(), l.cfg.Timeout)
		case <-ticker.C:
		}
	}
}
