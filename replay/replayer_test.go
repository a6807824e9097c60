package replay

import (
	"context"
	"encoding/base64"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hairizuan-noorazman/ui-replay/browser"
	"github.com/hairizuan-noorazman/ui-replay/browser/browsertest"
	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInvalidFlow(t *testing.T) {
	_, err := New("story", flow.Flow{Name: "x"}, Options{Browser: browsertest.NewBrowser()})
	assert.ErrorIs(t, err, flow.ErrEmptyFlow)

	_, err = New("story", flow.Flow{Name: "x", Steps: []flow.Step{startStep()}}, Options{})
	assert.Error(t, err)
}

func TestReplayer_ClickFlowCompletes(t *testing.T) {
	h := newHarness(t, []flow.Step{
		startStep(),
		{Type: flow.StepClick, UUID: "main", StepUUID: "s1", CSSPath: "#a", Target: `<a id="a">`},
		endStep(),
	})

	page := h.start()
	el := page.AddElement("#a", browsertest.NewElement(`<a id="a">`))
	h.runAll()

	assert.Equal(t, []string{"http://app.local/"}, page.Navigations())
	assert.Equal(t, []string{"click"}, el.Actions())
	assert.Equal(t, 2, h.r.Cursor())

	report := h.r.Summary().Snapshot()
	assert.Equal(t, 3, report.NumberOfStep)
	assert.Equal(t, 1, report.NumberOfUIBehavior)
	assert.Equal(t, 3, report.NumberOfSuccess)
	assert.Equal(t, 0, report.NumberOfFailed)
}

func TestReplayer_StartAppliesDeviceAndEnvironment(t *testing.T) {
	env, err := flow.NewEnvironment(flow.EnvironmentConfig{
		URLReplaceRegexp: `app\.local`,
		URLReplaceTo:     "staging.example.com",
	})
	require.NoError(t, err)

	start := startStep()
	start.Device = &flow.Device{Name: "phone", UserAgent: "ua", Viewport: flow.Viewport{Width: 375, Height: 667, IsMobile: true}}
	h := newHarness(t, []flow.Step{start, endStep()}, func(o *Options) {
		o.Environment = env
	})

	page := h.start()
	assert.Equal(t, []string{"http://staging.example.com/"}, page.Navigations())
	require.NotNil(t, page.Device())
	assert.Equal(t, 375, page.Device().Viewport.Width)
}

func TestReplayer_FileInputUsesUpload(t *testing.T) {
	file := filepath.Join(t.TempDir(), "avatar.png")
	require.NoError(t, os.WriteFile(file, []byte("png"), 0o644))

	h := newHarness(t, []flow.Step{
		startStep(),
		{Type: flow.StepChange, UUID: "main", StepUUID: "s1", CSSPath: "#f", Target: `<input type="file" id="f">`, Value: file},
		endStep(),
	})

	page := h.start()
	el := page.AddElement("#f", browsertest.NewElement(`<input type="file" id="f">`))
	h.runAll()

	assert.Equal(t, []string{"files:" + file}, el.Actions())
}

func TestReplayer_MissingUploadFileFails(t *testing.T) {
	h := newHarness(t, []flow.Step{
		startStep(),
		{Type: flow.StepChange, UUID: "main", StepUUID: "s1", CSSPath: "#f", File: "/does/not/exist.png"},
		endStep(),
	})

	page := h.start()
	el := page.AddElement("#f", browsertest.NewElement(`<input type="file">`))

	_, err := h.next(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepExecution)
	assert.Equal(t, "StepExecutionError", Kind(err))

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 1, stepErr.Index)
	assert.Equal(t, "s1", stepErr.StepUUID)

	assert.Empty(t, el.Actions())
	assert.Contains(t, h.store.keys(), "story/login/error-main-1.png")

	report := h.r.Summary().Snapshot()
	assert.Equal(t, 1, report.NumberOfFailed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 1, report.Errors[0].Index)
}

func TestReplayer_ChangeVariants(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
		step       flow.Step
		want       []string
	}{
		{
			name:       "text input",
			descriptor: `<input type="text">`,
			step:       flow.Step{Value: "hello"},
			want:       []string{"type:hello", "dispatch:change"},
		},
		{
			name:       "checkbox",
			descriptor: `<input type="checkbox">`,
			step:       flow.Step{Checked: boolPtr(true)},
			want:       []string{"checked:true", "dispatch:change"},
		},
		{
			name:       "select",
			descriptor: `<select>`,
			step:       flow.Step{Value: "2"},
			want:       []string{"type:2", "dispatch:change"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := tt.step
			step.Type = flow.StepChange
			step.UUID = "main"
			step.CSSPath = "#x"

			h := newHarness(t, []flow.Step{startStep(), step, endStep()})
			page := h.start()
			el := page.AddElement("#x", browsertest.NewElement(tt.descriptor))
			h.runAll()

			assert.Equal(t, tt.want, el.Actions())
		})
	}
}

func TestReplayer_KeydownCollapse(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		clickTarget string
		wantInput   []string
	}{
		{
			name:        "collapsed before submit",
			key:         "Enter",
			clickTarget: `<input type="submit" value="Go">`,
			wantInput:   []string{"type:go", "dispatch:change"},
		},
		{
			name:        "kept before plain button",
			key:         "Enter",
			clickTarget: `<button type="button">`,
			wantInput:   []string{"press:Enter", "type:go", "dispatch:change"},
		},
		{
			name:        "non-enter key kept before submit",
			key:         "Tab",
			clickTarget: `<input type="submit" value="Go">`,
			wantInput:   []string{"press:Tab", "type:go", "dispatch:change"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, []flow.Step{
				startStep(),
				{Type: flow.StepKeyDown, UUID: "main", CSSPath: "#q", Value: tt.key},
				{Type: flow.StepChange, UUID: "main", CSSPath: "#q", Value: "go"},
				{Type: flow.StepClick, UUID: "main", CSSPath: "#go", Target: tt.clickTarget},
				endStep(),
			})

			page := h.start()
			input := page.AddElement("#q", browsertest.NewElement(`<input type="text">`))
			submit := page.AddElement("#go", browsertest.NewElement(tt.clickTarget))
			h.runAll()

			assert.Equal(t, tt.wantInput, input.Actions())
			assert.Equal(t, []string{"click"}, submit.Actions())
			assert.Equal(t, 3, h.r.Summary().Snapshot().NumberOfUIBehavior)
		})
	}
}

func TestReplayer_KeydownWithoutTargetPressesOnPage(t *testing.T) {
	h := newHarness(t, []flow.Step{
		startStep(),
		{Type: flow.StepKeyDown, UUID: "main", Value: "Escape"},
		endStep(),
	})
	page := h.start()
	h.runAll()

	assert.Equal(t, []string{"Escape"}, page.Keys())
}

func TestReplayer_FocusAndScroll(t *testing.T) {
	h := newHarness(t, []flow.Step{
		startStep(),
		{Type: flow.StepFocus, UUID: "main", CSSPath: "#name"},
		{Type: flow.StepScroll, UUID: "main", CSSPath: "#list", ScrollTop: 120, ScrollLeft: 0},
		{Type: flow.StepScroll, UUID: "main", ScrollTop: 400},
		endStep(),
	})
	page := h.start()
	name := page.AddElement("#name", browsertest.NewElement(`<input>`))
	list := page.AddElement("#list", browsertest.NewElement(`<ul>`))
	h.runAll()

	assert.Equal(t, []string{"focus", "dispatch:focus"}, name.Actions())
	assert.Equal(t, []string{"scroll:120,0"}, list.Actions())
	assert.Equal(t, [][2]float64{{400, 0}}, page.Scrolls())
}

func TestReplayer_ElementNotFound(t *testing.T) {
	h := newHarness(t, []flow.Step{
		startStep(),
		{Type: flow.StepClick, UUID: "main", StepUUID: "s1", Path: "/html/body/a", CSSPath: "#a", CustomPath: ".a"},
		endStep(),
	})
	h.start()

	res, err := h.next(1)
	assert.Equal(t, 1, res.Index)
	assert.ErrorIs(t, err, ErrElementNotFound)
	assert.Equal(t, "ElementNotFound", Kind(err))
	assert.Contains(t, err.Error(), "#a")
	assert.Equal(t, 1, h.r.Summary().Snapshot().NumberOfFailed)
}

func TestReplayer_WidgetOverrideSuppressesClick(t *testing.T) {
	h := newHarness(t, []flow.Step{
		startStep(),
		{Type: flow.StepMouseDown, UUID: "main", CSSPath: "#sel"},
		{Type: flow.StepClick, UUID: "main", CSSPath: "#sel"},
		endStep(),
	})
	page := h.start()
	sel := page.AddElement("#sel", browsertest.NewElement(`<div class="ant-select-selector">`))
	h.runAll()

	assert.Equal(t, []string{"mousedown"}, sel.Actions())
}

func TestReplayer_AnimationSleeps(t *testing.T) {
	h := newHarness(t, []flow.Step{
		startStep(),
		{Type: flow.StepAnimation, UUID: "main", Duration: 40},
		endStep(),
	})
	h.start()

	started := time.Now()
	_, err := h.next(1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 40*time.Millisecond)
}

func TestReplayer_IndexOutOfRange(t *testing.T) {
	h := newHarness(t, []flow.Step{startStep(), endStep()})
	h.start()

	_, err := h.next(5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = h.next(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestReplayer_ResentFlowIsValidated(t *testing.T) {
	tests := []struct {
		name    string
		steps   []flow.Step
		wantErr error
	}{
		{
			name:    "end before last step",
			steps:   []flow.Step{startStep(), endStep(), {Type: flow.StepClick, UUID: "main", CSSPath: "#a"}},
			wantErr: flow.ErrMisplacedEnd,
		},
		{
			name:    "second start",
			steps:   []flow.Step{startStep(), startStep(), endStep()},
			wantErr: flow.ErrDuplicateStart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, []flow.Step{startStep(), {Type: flow.StepFocus, UUID: "main", CSSPath: "#a"}, endStep()})
			h.start()

			_, err := h.r.Next(context.Background(), flow.Flow{Name: "resent", Steps: tt.steps}, 1)
			assert.ErrorIs(t, err, ErrInvalidFlow)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, h.r.Cursor())
			assert.Len(t, h.r.Flow().Steps, 3)
			assert.Equal(t, 0, h.r.Summary().Snapshot().NumberOfFailed)
		})
	}
}

func TestReplayer_ResentFlowReplacesSteps(t *testing.T) {
	h := newHarness(t, []flow.Step{startStep(), endStep()})
	page := h.start()
	el := page.AddElement("#late", browsertest.NewElement(`<button>`))

	updated := flow.Flow{Name: "login", Steps: []flow.Step{
		startStep(),
		{Type: flow.StepClick, UUID: "main", CSSPath: "#late"},
		endStep(),
	}}
	_, err := h.r.Next(context.Background(), updated, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"click"}, el.Actions())
	assert.Len(t, h.r.Flow().Steps, 3)
}

func TestReplayer_SettleWaitsForAjax(t *testing.T) {
	xhr := browser.Request{URL: "http://app.local/api/save", Method: "POST", ResourceType: browser.ResourceXHR}

	t.Run("waits until exchange completes", func(t *testing.T) {
		h := newHarness(t, []flow.Step{
			startStep(),
			{Type: flow.StepClick, UUID: "main", CSSPath: "#save"},
			{Type: flow.StepAjax, UUID: "main", Request: &flow.AjaxRequest{URL: xhr.URL}},
			endStep(),
		})
		page := h.start()
		el := page.AddElement("#save", browsertest.NewElement(`<button>`))
		el.OnAction = func(string) {
			page.EmitRequest(xhr)
			go func() {
				time.Sleep(30 * time.Millisecond)
				page.FinishRequest(xhr)
			}()
		}

		started := time.Now()
		_, err := h.next(1)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond)
		assert.True(t, h.r.Registry().Ledger("main").Balanced())
		assert.Equal(t, 1, h.r.Summary().Snapshot().NumberOfAjax)
	})

	t.Run("times out", func(t *testing.T) {
		h := newHarness(t, []flow.Step{
			startStep(),
			{Type: flow.StepClick, UUID: "main", CSSPath: "#save"},
			{Type: flow.StepAjax, UUID: "main"},
			endStep(),
		})
		page := h.start()
		el := page.AddElement("#save", browsertest.NewElement(`<button>`))
		el.OnAction = func(string) { page.EmitRequest(xhr) }

		_, err := h.next(1)
		assert.ErrorIs(t, err, ErrSettleTimeout)
		assert.Equal(t, "SettleTimeout", Kind(err))
	})

	t.Run("skipped when next step is not ajax", func(t *testing.T) {
		h := newHarness(t, []flow.Step{
			startStep(),
			{Type: flow.StepClick, UUID: "main", CSSPath: "#save"},
			endStep(),
		})
		page := h.start()
		el := page.AddElement("#save", browsertest.NewElement(`<button>`))
		el.OnAction = func(string) { page.EmitRequest(xhr) }

		_, err := h.next(1)
		require.NoError(t, err)
		assert.Equal(t, 1, h.r.Registry().Ledger("main").Pending())
	})
}

func TestReplayer_DisconnectInterruptsSettle(t *testing.T) {
	xhr := browser.Request{URL: "http://app.local/stream", ResourceType: browser.ResourceFetch}
	h := newHarness(t, []flow.Step{
		startStep(),
		{Type: flow.StepClick, UUID: "main", CSSPath: "#go"},
		{Type: flow.StepAjax, UUID: "main"},
		endStep(),
	}, func(o *Options) {
		o.Config.Settle.Timeout = time.Minute
	})
	page := h.start()
	el := page.AddElement("#go", browsertest.NewElement(`<button>`))
	el.OnAction = func(string) { page.EmitRequest(xhr) }

	go func() {
		time.Sleep(30 * time.Millisecond)
		h.r.Disconnect(context.Background())
	}()

	started := time.Now()
	_, err := h.next(1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Equal(t, StateEnded, h.r.State())
}

func TestReplayer_Terminal(t *testing.T) {
	tests := []struct {
		name    string
		abolish bool
	}{
		{name: "disconnect", abolish: false},
		{name: "abolish", abolish: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, []flow.Step{startStep(), endStep()})
			page := h.start()
			ctx := context.Background()

			terminate := h.r.Disconnect
			if tt.abolish {
				terminate = h.r.Abolish
			}
			first := terminate(ctx)
			second := terminate(ctx)

			assert.NotNil(t, first.FinishedAt)
			assert.Equal(t, first, second)
			assert.Equal(t, !tt.abolish, h.browser.Disconnected)
			assert.Equal(t, tt.abolish, h.browser.Closed)
			assert.False(t, page.Closed())
			assert.Equal(t, 0, page.Listeners())
			assert.Equal(t, 0, h.r.Registry().Len())

			_, err := h.next(1)
			assert.ErrorIs(t, err, ErrSessionClosed)
		})
	}
}

func TestReplayer_SwitchToRecord(t *testing.T) {
	h := newHarness(t, []flow.Step{
		startStep(),
		{Type: flow.StepClick, UUID: "main", CSSPath: "#a"},
		endStep(),
	})
	page := h.start()
	h.r.SwitchToRecord(context.Background())

	d := browsertest.NewDialog(flow.DialogAlert, "hi")
	page.EmitDialog(d)
	handled, _, _ := d.Result()
	assert.False(t, handled)

	_, err := h.next(1)
	assert.ErrorIs(t, err, ErrRecording)
	assert.Equal(t, StateRecording, h.r.State())
	assert.Same(t, h.browser, h.r.Browser())
}

func TestReplayer_ScreenshotComparison(t *testing.T) {
	baseline := base64.StdEncoding.EncodeToString(browsertest.SolidPNG(4, 4, color.White))

	tests := []struct {
		name      string
		live      []byte
		wantEntry bool
	}{
		{name: "matching", live: browsertest.SolidPNG(4, 4, color.White), wantEntry: false},
		{name: "regressed", live: browsertest.SolidPNG(4, 4, color.Black), wantEntry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, []flow.Step{
				startStep(),
				{Type: flow.StepClick, UUID: "main", StepUUID: "shot", CSSPath: "#a", Image: baseline},
				endStep(),
			})
			page := h.start()
			page.AddElement("#a", browsertest.NewElement(`<button>`))
			page.SetScreenshot(tt.live)

			res, err := h.next(1)
			require.NoError(t, err)

			report := h.r.Summary().Snapshot()
			assert.Contains(t, h.store.keys(), "story/login/shot_baseline.png")
			assert.Contains(t, h.store.keys(), "story/login/shot_replay.png")
			if !tt.wantEntry {
				assert.Nil(t, res.Screenshot)
				assert.Empty(t, report.ScreenshotTest)
				assert.NotContains(t, h.store.keys(), "story/login/shot_diff.png")
				return
			}
			require.NotNil(t, res.Screenshot)
			assert.Equal(t, "story/login/shot_diff.png", res.Screenshot.Diff)
			require.Len(t, report.ScreenshotTest, 1)
			assert.Equal(t, "shot", report.ScreenshotTest[0].StepUUID)
			assert.Contains(t, h.store.keys(), "story/login/shot_diff.png")
			assert.Equal(t, 0, report.NumberOfFailed)
		})
	}
}

type prefixSigner struct{}

func (prefixSigner) Sign(p string) (string, error) { return "signed:" + p, nil }

func TestReplayer_ScreenshotLinkIsSigned(t *testing.T) {
	baseline := base64.StdEncoding.EncodeToString(browsertest.SolidPNG(4, 4, color.White))
	h := newHarness(t, []flow.Step{
		startStep(),
		{Type: flow.StepClick, UUID: "main", StepUUID: "shot", CSSPath: "#a", Image: baseline},
		endStep(),
	}, func(o *Options) { o.Links = prefixSigner{} })
	page := h.start()
	page.AddElement("#a", browsertest.NewElement(`<button>`))
	page.SetScreenshot(browsertest.SolidPNG(4, 4, color.Black))

	res, err := h.next(1)
	require.NoError(t, err)
	require.NotNil(t, res.Screenshot)
	assert.Equal(t, "signed:story/login/shot_diff.png", res.Screenshot.Token)
}
