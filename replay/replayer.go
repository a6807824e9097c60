// Package replay executes recorded flows step by step against a live browser.
package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hairizuan-noorazman/ui-replay/browser"
	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/locator"
	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/metrics"
	"github.com/hairizuan-noorazman/ui-replay/registry"
	"github.com/hairizuan-noorazman/ui-replay/screenshot"
	"github.com/hairizuan-noorazman/ui-replay/summary"
	"github.com/hairizuan-noorazman/ui-replay/widget"
)

// State is the lifecycle position of a replayer.
type State string

const (
	StateIdle      State = "idle"
	StateExecuting State = "executing"
	StateSettling  State = "settling"
	StateRecording State = "recording"
	StateEnded     State = "ended"
)

// Result is the outcome of one executed step.
type Result struct {
	Index int

	// Screenshot is set when the step's baseline comparison failed.
	Screenshot *summary.Screenshot
}

// Replayer owns one replay session: its browser, page registry, ledgers and
// summary. Steps are executed one at a time; browser events are handled
// concurrently as they arrive.
type Replayer struct {
	cfg         Config
	storyName   string
	env         *flow.Environment
	browser     browser.Browser
	registry    *registry.Registry
	resolver    *locator.Resolver
	widgets     widget.Chain
	comparator  *screenshot.Comparator
	artifacts   Artifacts
	links       LinkSigner
	artifactDir string
	summary     *summary.Summary
	metrics     *metrics.Metrics
	logger      logger.Logger

	// stepMu serializes step execution.
	stepMu sync.Mutex

	mu         sync.Mutex
	flow       flow.Flow
	cursor     int
	inFlight   int
	state      State
	asyncErr   error
	stepCancel context.CancelFunc
	stopPopup  func()

	pendingPopups atomic.Int32
}

// New creates a replayer for f. The flow is wrapped by the environment once
// here and again whenever the controller resends it.
func New(storyName string, f flow.Flow, opts Options) (*Replayer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if opts.Browser == nil {
		return nil, errors.New("replay: browser is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewLogrusLogger("info")
	}
	widgets := opts.Widgets
	if widgets == nil {
		widgets = widget.DefaultChain()
	}
	dir := opts.ArtifactDir
	if dir == "" {
		dir = path.Join(storyName, f.Name)
	}

	r := &Replayer{
		cfg:         opts.Config.withDefaults(),
		storyName:   storyName,
		env:         opts.Environment,
		browser:     opts.Browser,
		resolver:    locator.NewResolver(log),
		widgets:     widgets,
		comparator:  opts.Comparator,
		artifacts:   opts.Artifacts,
		links:       opts.Links,
		artifactDir: dir,
		summary:     summary.New(storyName, f.Name),
		metrics:     opts.Metrics,
		logger:      log,
		flow:        opts.Environment.WrapFlow(f),
		cursor:      -1,
		inFlight:    -1,
		state:       StateIdle,
	}
	r.cfg.Settle.SlowThreshold = r.env.SlowAjaxTime()
	r.registry = registry.New(log, r.attach)
	return r, nil
}

// Start listens for popups and executes the flow's start step.
func (r *Replayer) Start(ctx context.Context) (Result, error) {
	r.mu.Lock()
	if r.stopPopup == nil {
		r.stopPopup = r.browser.OnPopup(r.handlePopup)
	}
	r.mu.Unlock()
	return r.Next(ctx, flow.Flow{}, 0)
}

// Next executes the step at index. A non-empty f replaces the session's
// copy of the flow first.
func (r *Replayer) Next(ctx context.Context, f flow.Flow, index int) (Result, error) {
	if len(f.Steps) > 0 {
		if err := f.Validate(); err != nil {
			return Result{Index: index}, fmt.Errorf("%w: %w", ErrInvalidFlow, err)
		}
	}

	r.stepMu.Lock()
	defer r.stepMu.Unlock()

	r.mu.Lock()
	switch r.state {
	case StateEnded:
		r.mu.Unlock()
		return Result{Index: index}, ErrSessionClosed
	case StateRecording:
		r.mu.Unlock()
		return Result{Index: index}, ErrRecording
	}
	if len(f.Steps) > 0 {
		r.flow = r.env.WrapFlow(f)
	}
	if index < 0 || index >= len(r.flow.Steps) {
		n := len(r.flow.Steps)
		r.mu.Unlock()
		return Result{Index: index}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, n)
	}
	stepCtx, cancel := context.WithCancel(ctx)
	r.cursor = index
	r.inFlight = index
	r.state = StateExecuting
	r.stepCancel = cancel
	step := r.flow.Steps[index]
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		r.inFlight = -1
		r.stepCancel = nil
		if r.state == StateExecuting || r.state == StateSettling {
			r.state = StateIdle
		}
		r.mu.Unlock()
	}()

	log := r.logger.WithFields(map[string]interface{}{
		"step_index": index,
		"step_type":  string(step.Type),
		"step_uuid":  step.StepUUID,
	})
	log.Debug(stepCtx, "Executing step", nil)

	res := Result{Index: index}
	err := r.execute(stepCtx, index, step, log)
	if err == nil {
		err = r.takeAsyncErr()
	}
	if err == nil && step.Image != "" {
		res.Screenshot = r.compareScreenshot(stepCtx, index, step, log)
	}

	if err != nil {
		r.captureError(ctx, index, step, log)
		log.Warn(ctx, "Step failed", map[string]interface{}{
			"error": err.Error(),
			"kind":  Kind(err),
		})
		err = &StepError{Index: index, StepUUID: step.StepUUID, Type: step.Type, Err: err}
	}

	r.summary.RecordStep(index, step, err)
	r.metrics.StepDone(string(step.Type), err)
	return res, err
}

func (r *Replayer) execute(ctx context.Context, index int, step flow.Step, log logger.Logger) error {
	if step.Type == flow.StepEnd {
		return nil
	}
	if err := r.dispatch(ctx, index, step, log); err != nil {
		return err
	}
	r.setState(StateSettling)
	return r.settle(ctx, index, step)
}

// settle waits until it is safe to advance past step.
func (r *Replayer) settle(ctx context.Context, index int, step flow.Step) error {
	switch step.Type {
	case flow.StepAjax, flow.StepPageClosed, flow.StepEnd:
		return nil
	case flow.StepScroll:
		return sleep(ctx, r.cfg.QuickSettle)
	}

	steps := r.steps()
	if index+1 >= len(steps) || steps[index+1].Type != flow.StepAjax {
		return sleep(ctx, r.cfg.QuickSettle)
	}

	l := r.registry.Ledger(step.UUID)
	if l == nil {
		return nil
	}
	started := time.Now()
	err := l.WaitForAllDone(ctx)
	r.metrics.SettleWaited(time.Since(started))
	return err
}

func (r *Replayer) compareScreenshot(ctx context.Context, index int, step flow.Step, log logger.Logger) *summary.Screenshot {
	if r.comparator == nil {
		return nil
	}
	baseline, err := screenshot.DecodeBaseline(step.Image)
	if err != nil {
		log.Warn(ctx, "Skipping screenshot comparison", map[string]interface{}{"error": err.Error()})
		return nil
	}
	page, err := r.registry.Page(step.UUID)
	if err != nil {
		log.Warn(ctx, "Skipping screenshot comparison", map[string]interface{}{"error": err.Error()})
		return nil
	}
	shot, err := page.Screenshot(ctx)
	if err != nil {
		log.Warn(ctx, "Failed to capture screenshot", map[string]interface{}{"error": err.Error()})
		return nil
	}

	res, err := r.comparator.Compare(ctx, r.artifactDir, step.StepUUID, baseline, shot)
	if err != nil {
		log.Warn(ctx, "Screenshot comparison failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if res.Passed {
		return nil
	}

	rec := summary.Screenshot{
		StepIndex:  index,
		StepUUID:   step.StepUUID,
		Similarity: res.Similarity.Min(),
		Baseline:   res.Baseline,
		Replay:     res.Replay,
		Diff:       res.Diff,
	}
	if r.links != nil {
		token, err := r.links.Sign(res.Diff)
		if err != nil {
			log.Warn(ctx, "Failed to sign artifact link", map[string]interface{}{"error": err.Error()})
		} else {
			rec.Token = token
		}
	}
	r.summary.RecordScreenshot(rec)
	r.metrics.ScreenshotMismatch()
	return &rec
}

// captureError stores a best-effort capture of the failing step's page.
func (r *Replayer) captureError(ctx context.Context, index int, step flow.Step, log logger.Logger) {
	if r.artifacts == nil || ctx.Err() != nil {
		return
	}
	page, err := r.registry.Page(step.UUID)
	if err != nil {
		return
	}
	shot, err := page.Screenshot(ctx)
	if err != nil {
		log.Debug(ctx, "Failed to capture error screenshot", map[string]interface{}{"error": err.Error()})
		return
	}
	name := path.Join(r.artifactDir, fmt.Sprintf("error-%s-%d.png", step.UUID, index))
	if err := r.artifacts.Upload(ctx, name, bytes.NewReader(shot)); err != nil {
		log.Debug(ctx, "Failed to store error screenshot", map[string]interface{}{"error": err.Error()})
	}
}

// Disconnect detaches from the browser, leaving it open, and finalizes the
// summary. It is safe to call more than once and after failures.
func (r *Replayer) Disconnect(ctx context.Context) summary.Report {
	if r.end() {
		r.registry.Clear(ctx, false)
		if err := r.browser.Disconnect(); err != nil {
			r.logger.Warn(ctx, "Failed to disconnect browser", map[string]interface{}{"error": err.Error()})
		}
	}
	return r.summary.Finalize()
}

// Abolish closes the browser entirely and finalizes the summary.
func (r *Replayer) Abolish(ctx context.Context) summary.Report {
	if r.end() {
		r.registry.Clear(ctx, false)
		if err := r.browser.Close(); err != nil {
			r.logger.Warn(ctx, "Failed to close browser", map[string]interface{}{"error": err.Error()})
		}
	}
	return r.summary.Finalize()
}

// SwitchToRecord stops all engine event handling so a recorder can take
// over the live browser.
func (r *Replayer) SwitchToRecord(ctx context.Context) {
	r.mu.Lock()
	if r.state == StateEnded || r.state == StateRecording {
		r.mu.Unlock()
		return
	}
	r.state = StateRecording
	stop, cancel := r.stopPopup, r.stepCancel
	r.stopPopup = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stop != nil {
		stop()
	}
	r.logger.Info(ctx, "Session switched to recording", nil)
}

// end moves the session to its terminal state. It reports false if it was
// already ended.
func (r *Replayer) end() bool {
	r.mu.Lock()
	if r.state == StateEnded {
		r.mu.Unlock()
		return false
	}
	r.state = StateEnded
	stop, cancel := r.stopPopup, r.stepCancel
	r.stopPopup = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stop != nil {
		stop()
	}
	return true
}

// Browser returns the live browser handle.
func (r *Replayer) Browser() browser.Browser {
	return r.browser
}

// Summary returns the session's summary.
func (r *Replayer) Summary() *summary.Summary {
	return r.summary
}

// Registry returns the session's page registry.
func (r *Replayer) Registry() *registry.Registry {
	return r.registry
}

// Cursor returns the index of the last step started, or -1.
func (r *Replayer) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// State returns the current lifecycle state.
func (r *Replayer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Flow returns the session's wrapped copy of the flow.
func (r *Replayer) Flow() flow.Flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flow.Clone()
}

func (r *Replayer) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateExecuting || r.state == StateSettling {
		r.state = s
	}
}

func (r *Replayer) steps() []flow.Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flow.Steps
}

func (r *Replayer) setAsyncErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.asyncErr == nil {
		r.asyncErr = err
	}
}

func (r *Replayer) takeAsyncErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.asyncErr
	r.asyncErr = nil
	return err
}

func (r *Replayer) recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateRecording || r.state == StateEnded
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
