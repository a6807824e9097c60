package replay

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/hairizuan-noorazman/ui-replay/browser"
	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/registry"
)

func (r *Replayer) dispatch(ctx context.Context, index int, step flow.Step, log logger.Logger) error {
	switch step.Type {
	case flow.StepStart:
		return r.doStart(ctx, step)
	case flow.StepClick, flow.StepMouseDown:
		return r.doPointer(ctx, step, log)
	case flow.StepKeyDown:
		if r.collapsesIntoSubmit(index) {
			log.Debug(ctx, "Keydown folded into following change and submit", nil)
			return nil
		}
		return r.doKeyDown(ctx, step)
	case flow.StepChange:
		return r.doChange(ctx, step)
	case flow.StepFocus:
		return r.doFocus(ctx, step)
	case flow.StepScroll:
		return r.doScroll(ctx, step)
	case flow.StepAnimation:
		d := time.Duration(step.Duration) * time.Millisecond
		if d <= 0 {
			d = r.cfg.AnimationDelay
		}
		return sleep(ctx, d)
	case flow.StepPageCreated:
		return r.doPageCreated(ctx, step, log)
	case flow.StepPageSwitched:
		return r.doPageSwitched(ctx, step)
	case flow.StepPageClosed:
		return r.doPageClosed(ctx, step, log)
	case flow.StepAjax, flow.StepDialogOpen, flow.StepDialogClose, flow.StepUnload:
		return nil
	default:
		log.Warn(ctx, "Unknown step type skipped", nil)
		return nil
	}
}

// collapsesIntoSubmit reports whether the Enter keydown at index is followed
// by a change on the same element and then a click on a submit control.
func (r *Replayer) collapsesIntoSubmit(index int) bool {
	steps := r.steps()
	if index+2 >= len(steps) {
		return false
	}
	key, change, click := steps[index], steps[index+1], steps[index+2]
	return strings.EqualFold(key.Value, "Enter") &&
		change.Type == flow.StepChange &&
		key.SameTarget(change) &&
		click.Type == flow.StepClick &&
		click.TargetInfo().IsSubmit()
}

func (r *Replayer) doStart(ctx context.Context, step flow.Step) error {
	page, err := r.registry.Page(step.UUID)
	if errors.Is(err, registry.ErrPageNotFound) {
		page, err = r.browser.NewPage(ctx)
		if err != nil {
			return execError("open page: %v", err)
		}
		r.registry.Put(ctx, step.UUID, page, true)
	}

	if step.Device != nil {
		if err := page.Emulate(ctx, *step.Device); err != nil {
			return execError("emulate %s: %v", step.Device.Name, err)
		}
	}
	if step.URL == "" {
		return nil
	}
	if err := page.Navigate(ctx, step.URL); err != nil {
		return execError("navigate to %s: %v", step.URL, err)
	}
	if err := page.WaitLoad(ctx); err != nil {
		return execError("wait for %s to load: %v", step.URL, err)
	}
	return nil
}

// element resolves the step's target on the page registered for its uuid.
func (r *Replayer) element(ctx context.Context, step flow.Step) (browser.Page, browser.Element, flow.ElementInfo, error) {
	page, err := r.registry.Page(step.UUID)
	if err != nil {
		return nil, nil, flow.ElementInfo{}, execError("no page for %s", step.UUID)
	}
	el, _, err := r.resolver.Resolve(ctx, page, step.Locators())
	if err != nil {
		return page, nil, flow.ElementInfo{}, err
	}
	info, err := el.Describe(ctx)
	if err != nil || info.Empty() {
		info = step.TargetInfo()
	}
	return page, el, info, nil
}

func (r *Replayer) doPointer(ctx context.Context, step flow.Step, log logger.Logger) error {
	_, el, info, err := r.element(ctx, step)
	if err != nil {
		return err
	}

	name, err := r.widgets.Handle(ctx, step, el, info)
	if err != nil {
		return execError("%s override: %v", name, err)
	}
	if name != "" {
		log.Debug(ctx, "Step handled by widget override", map[string]interface{}{"override": name})
		return nil
	}

	if step.Type == flow.StepMouseDown {
		err = el.MouseDown(ctx)
	} else {
		err = el.Click(ctx)
	}
	if err != nil {
		return execError("%s: %v", step.Type, err)
	}
	return nil
}

func (r *Replayer) doKeyDown(ctx context.Context, step flow.Step) error {
	if step.Locators().Empty() {
		page, err := r.registry.Page(step.UUID)
		if err != nil {
			return execError("no page for %s", step.UUID)
		}
		if err := page.PressKey(ctx, step.Value); err != nil {
			return execError("press %q: %v", step.Value, err)
		}
		return nil
	}

	_, el, _, err := r.element(ctx, step)
	if err != nil {
		return err
	}
	if err := el.Press(ctx, step.Value); err != nil {
		return execError("press %q: %v", step.Value, err)
	}
	return nil
}

func (r *Replayer) doChange(ctx context.Context, step flow.Step) error {
	_, el, info, err := r.element(ctx, step)
	if err != nil {
		return err
	}

	switch {
	case info.IsFileInput():
		err = r.upload(ctx, el, step)
	case info.IsCheckable() && step.Checked != nil:
		if err = el.SetChecked(ctx, *step.Checked); err == nil {
			err = el.Dispatch(ctx, "change")
		}
	default:
		if err = el.Type(ctx, step.Value); err == nil {
			err = el.Dispatch(ctx, "change")
		}
	}
	if err != nil {
		if errors.Is(err, ErrStepExecution) {
			return err
		}
		return execError("change: %v", err)
	}

	return sleep(ctx, r.env.SleepAfterChange())
}

func (r *Replayer) upload(ctx context.Context, el browser.Element, step flow.Step) error {
	file := step.File
	if file == "" {
		file = step.Value
	}
	if file == "" {
		return execError("no file recorded for upload")
	}
	if _, err := os.Stat(file); err != nil {
		return execError("upload file %s: %v", file, err)
	}
	return el.SetFiles(ctx, []string{file})
}

func (r *Replayer) doFocus(ctx context.Context, step flow.Step) error {
	_, el, _, err := r.element(ctx, step)
	if err != nil {
		return err
	}
	if err := el.Focus(ctx); err != nil {
		return execError("focus: %v", err)
	}
	if err := el.Dispatch(ctx, "focus"); err != nil {
		return execError("focus event: %v", err)
	}
	return nil
}

func (r *Replayer) doScroll(ctx context.Context, step flow.Step) error {
	if step.Locators().Empty() {
		page, err := r.registry.Page(step.UUID)
		if err != nil {
			return execError("no page for %s", step.UUID)
		}
		if err := page.ScrollTo(ctx, step.ScrollTop, step.ScrollLeft); err != nil {
			return execError("scroll window: %v", err)
		}
		return nil
	}

	_, el, _, err := r.element(ctx, step)
	if err != nil {
		return err
	}
	if err := el.ScrollTo(ctx, step.ScrollTop, step.ScrollLeft); err != nil {
		return execError("scroll: %v", err)
	}
	return nil
}

func (r *Replayer) doPageCreated(ctx context.Context, step flow.Step, log logger.Logger) error {
	if r.awaitPopup(ctx, step.UUID) {
		log.Debug(ctx, "Page already bound by popup", nil)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	page, err := r.browser.NewPage(ctx)
	if err != nil {
		return execError("open page: %v", err)
	}
	if !r.registry.Put(ctx, step.UUID, page, false) {
		return nil
	}
	if step.URL == "" {
		return nil
	}
	if err := page.Navigate(ctx, step.URL); err != nil {
		return execError("navigate to %s: %v", step.URL, err)
	}
	return nil
}

// awaitPopup waits for a popup to claim uuid. The wait is extended while a
// popup is still loading.
func (r *Replayer) awaitPopup(ctx context.Context, uuid string) bool {
	const poll = 20 * time.Millisecond
	deadline := time.Now().Add(r.cfg.PopupWait)
	hardDeadline := time.Now().Add(r.cfg.PopupSettleTimeout)

	for {
		if _, ok := r.registry.Get(uuid); ok {
			return true
		}
		now := time.Now()
		if now.After(hardDeadline) || (now.After(deadline) && r.pendingPopups.Load() == 0) {
			return false
		}
		if err := sleep(ctx, poll); err != nil {
			return false
		}
	}
}

func (r *Replayer) doPageSwitched(ctx context.Context, step flow.Step) error {
	page, err := r.registry.Page(step.UUID)
	if err != nil {
		page, err = r.browser.NewPage(ctx)
		if err != nil {
			return execError("open page: %v", err)
		}
		if r.registry.Put(ctx, step.UUID, page, false) {
			if step.URL != "" {
				if err := page.Navigate(ctx, step.URL); err != nil {
					return execError("navigate to %s: %v", step.URL, err)
				}
			}
		} else if page, err = r.registry.Page(step.UUID); err != nil {
			return execError("no page for %s", step.UUID)
		}
	}
	if err := page.Activate(ctx); err != nil {
		return execError("activate page: %v", err)
	}
	return nil
}

func (r *Replayer) doPageClosed(ctx context.Context, step flow.Step, log logger.Logger) error {
	err := r.registry.Close(ctx, step.UUID)
	if errors.Is(err, registry.ErrPageNotFound) {
		log.Debug(ctx, "Page already gone", nil)
		return nil
	}
	if err != nil && !errors.Is(err, browser.ErrPageClosed) {
		return execError("close page: %v", err)
	}
	return nil
}
