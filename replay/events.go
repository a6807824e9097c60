package replay

import (
	"context"
	"time"

	"github.com/hairizuan-noorazman/ui-replay/browser"
	"github.com/hairizuan-noorazman/ui-replay/correlate"
	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/ledger"
	"github.com/hairizuan-noorazman/ui-replay/metrics"
	"github.com/hairizuan-noorazman/ui-replay/summary"
)

// ajaxRecorder fans completed exchanges out to the summary and metrics.
type ajaxRecorder struct {
	summary *summary.Summary
	metrics *metrics.Metrics
}

func (a ajaxRecorder) RecordAjax(url string, elapsed time.Duration, failed, slow bool) {
	a.summary.RecordAjax(url, elapsed, failed, slow)
	a.metrics.AjaxDone(elapsed, failed)
}

// attach subscribes to a page as it enters the registry.
func (r *Replayer) attach(uuid string, page browser.Page) (*ledger.Ledger, func()) {
	l := ledger.New(r.cfg.Settle, ajaxRecorder{summary: r.summary, metrics: r.metrics})
	log := r.logger.WithFields(map[string]interface{}{"uuid": uuid, "page_id": page.ID()})

	stop := page.Listen(browser.Handlers{
		OnRequest: func(req browser.Request) {
			if !r.recording() {
				l.Create(req)
			}
		},
		OnRequestFinished: func(req browser.Request) {
			l.Offset(req, true)
		},
		OnRequestFailed: func(req browser.Request) {
			l.Offset(req, false)
		},
		OnDialog: func(d browser.Dialog) {
			r.handleDialog(uuid, d)
		},
		OnClose: func() {
			log.Debug(context.Background(), "Page closed", nil)
			r.registry.RemovePage(context.Background(), page)
		},
	})
	return l, stop
}

// popupScanStart returns the steps and the index after which a popup's
// page-created step is searched. While a page-created step is executing
// and waiting for its popup, that step itself is eligible.
func (r *Replayer) popupScanStart() ([]flow.Step, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	from := r.cursor
	if r.inFlight >= 0 && r.inFlight == r.cursor && r.flow.Steps[r.cursor].Type == flow.StepPageCreated {
		if _, bound := r.registry.Get(r.flow.Steps[r.cursor].UUID); !bound {
			from = r.cursor - 1
		}
	}
	return r.flow.Steps, from
}

// handlePopup binds a page opened by another page to the page-created step
// it corresponds to.
func (r *Replayer) handlePopup(opener, popup browser.Page) {
	if r.recording() {
		return
	}
	r.pendingPopups.Add(1)
	defer r.pendingPopups.Add(-1)

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PopupSettleTimeout)
	defer cancel()
	log := r.logger.WithField("page_id", popup.ID())

	if err := popup.WaitLoad(ctx); err != nil {
		log.Debug(ctx, "Popup did not finish loading", map[string]interface{}{"error": err.Error()})
	}
	url, err := popup.URL(ctx)
	if err != nil {
		log.Warn(ctx, "Failed to read popup url", map[string]interface{}{"error": err.Error()})
		r.setAsyncErr(err)
		return
	}

	steps, from := r.popupScanStart()
	idx, err := correlate.MatchPopup(steps, from, url)
	if err != nil {
		log.Error(ctx, "Popup has no matching step", map[string]interface{}{
			"url":    url,
			"cursor": from,
		})
		r.setAsyncErr(err)
		return
	}

	uuid := steps[idx].UUID
	r.registry.Put(ctx, uuid, popup, true)
	log.Debug(ctx, "Popup bound", map[string]interface{}{
		"uuid":       uuid,
		"step_index": idx,
	})
}

// handleDialog resolves a native dialog from the forward steps.
func (r *Replayer) handleDialog(uuid string, d browser.Dialog) {
	if r.recording() {
		return
	}
	ctx := context.Background()

	r.mu.Lock()
	steps, cursor := r.flow.Steps, r.cursor
	r.mu.Unlock()

	log := r.logger.WithFields(map[string]interface{}{
		"uuid":   uuid,
		"dialog": string(d.Type()),
		"cursor": cursor,
	})

	action, err := correlate.ResolveDialog(steps, cursor, uuid, d.Type())
	if err != nil {
		log.Error(ctx, "Dialog does not match the recording", map[string]interface{}{"error": err.Error()})
		r.setAsyncErr(err)
	}

	if action.Accept {
		err = d.Accept(action.PromptText)
	} else {
		err = d.Dismiss()
	}
	if err != nil {
		log.Warn(ctx, "Failed to resolve dialog", map[string]interface{}{"error": err.Error()})
	}
}
