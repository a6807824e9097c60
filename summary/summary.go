// Package summary accumulates the counters and evidence of one replay session.
package summary

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/hairizuan-noorazman/ui-replay/flow"
)

// Ajax latencies are tracked in milliseconds up to ten minutes.
const (
	histMinMillis = 1
	histMaxMillis = 10 * 60 * 1000
	histSigFigs   = 3
)

// SlowAjax is an exchange that took at least the slow threshold.
type SlowAjax struct {
	URL  string `json:"url"`
	Time int64  `json:"time"`
}

// Screenshot is a failed screenshot comparison.
type Screenshot struct {
	StepIndex  int     `json:"stepIndex"`
	StepUUID   string  `json:"stepUuid"`
	Similarity float64 `json:"similarity"`
	Baseline   string  `json:"baseline"`
	Replay     string  `json:"replay"`
	Diff       string  `json:"diff"`

	// Token is an opaque signed handle for fetching the diff artifact.
	Token string `json:"token,omitempty"`
}

// StepFailure describes a step that did not complete.
type StepFailure struct {
	Index    int           `json:"index"`
	StepUUID string        `json:"stepUuid"`
	Type     flow.StepType `json:"type"`
	Message  string        `json:"message"`
}

// Report is an immutable snapshot of a summary.
type Report struct {
	StoryName string `json:"storyName"`
	FlowName  string `json:"flowName"`

	NumberOfStep       int `json:"numberOfStep"`
	NumberOfUIBehavior int `json:"numberOfUIBehavior"`
	NumberOfSuccess    int `json:"numberOfSuccess"`
	NumberOfFailed     int `json:"numberOfFailed"`
	NumberOfAjax       int `json:"numberOfAjax"`
	NumberOfAjaxFailed int `json:"numberOfAjaxFailed"`

	AjaxP50 int64 `json:"ajaxP50"`
	AjaxP95 int64 `json:"ajaxP95"`
	AjaxMax int64 `json:"ajaxMax"`

	SlowAjaxRequest []SlowAjax    `json:"slowAjaxRequest"`
	ScreenshotTest  []Screenshot  `json:"screenshotTest"`
	Errors          []StepFailure `json:"errors"`

	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Passed reports whether no step failed.
func (r Report) Passed() bool {
	return r.NumberOfFailed == 0
}

// Summary is safe for concurrent use. Once finalized it ignores updates.
type Summary struct {
	mu        sync.Mutex
	report    Report
	hist      *hdrhistogram.Histogram
	finalized bool
	now       func() time.Time
}

// New starts a summary for one session.
func New(storyName, flowName string) *Summary {
	s := &Summary{
		hist: hdrhistogram.New(histMinMillis, histMaxMillis, histSigFigs),
		now:  time.Now,
	}
	s.report = Report{
		StoryName:       storyName,
		FlowName:        flowName,
		SlowAjaxRequest: []SlowAjax{},
		ScreenshotTest:  []Screenshot{},
		Errors:          []StepFailure{},
		StartedAt:       s.now(),
	}
	return s
}

// RecordStep counts a dispatched step and its outcome.
func (s *Summary) RecordStep(index int, step flow.Step, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return
	}

	s.report.NumberOfStep++
	if step.Type.IsUIBehavior() {
		s.report.NumberOfUIBehavior++
	}
	if err == nil {
		s.report.NumberOfSuccess++
		return
	}
	s.report.NumberOfFailed++
	s.report.Errors = append(s.report.Errors, StepFailure{
		Index:    index,
		StepUUID: step.StepUUID,
		Type:     step.Type,
		Message:  err.Error(),
	})
}

// RecordAjax counts a completed data exchange.
func (s *Summary) RecordAjax(url string, elapsed time.Duration, failed, slow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return
	}

	s.report.NumberOfAjax++
	if failed {
		s.report.NumberOfAjaxFailed++
	}

	ms := elapsed.Milliseconds()
	if ms < histMinMillis {
		ms = histMinMillis
	}
	if ms > histMaxMillis {
		ms = histMaxMillis
	}
	_ = s.hist.RecordValue(ms)

	if slow {
		s.report.SlowAjaxRequest = append(s.report.SlowAjaxRequest, SlowAjax{URL: url, Time: elapsed.Milliseconds()})
	}
}

// RecordScreenshot adds a failed comparison.
func (s *Summary) RecordScreenshot(shot Screenshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return
	}
	s.report.ScreenshotTest = append(s.report.ScreenshotTest, shot)
}

// Snapshot returns a copy of the current state.
func (s *Summary) Snapshot() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Finalize freezes the summary and returns the final report. Calling it
// again returns the same report.
func (s *Summary) Finalize() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finalized {
		s.finalized = true
		at := s.now()
		s.report.FinishedAt = &at
	}
	return s.snapshotLocked()
}

// Finalized reports whether Finalize has been called.
func (s *Summary) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

func (s *Summary) snapshotLocked() Report {
	r := s.report
	r.SlowAjaxRequest = append([]SlowAjax{}, s.report.SlowAjaxRequest...)
	r.ScreenshotTest = append([]Screenshot{}, s.report.ScreenshotTest...)
	r.Errors = append([]StepFailure{}, s.report.Errors...)
	if s.hist.TotalCount() > 0 {
		r.AjaxP50 = s.hist.ValueAtQuantile(50)
		r.AjaxP95 = s.hist.ValueAtQuantile(95)
		r.AjaxMax = s.hist.Max()
	}
	return r
}
