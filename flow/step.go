// Package flow holds the recorded step model replayed by the engine.
package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFlow is returned when a flow has no steps.
	ErrEmptyFlow = errors.New("flow has no steps")

	// ErrMissingStart is returned when a flow does not begin with a start step.
	ErrMissingStart = errors.New("flow must begin with a start step")

	// ErrDuplicateStart is returned when more than one start step is present.
	ErrDuplicateStart = errors.New("flow has more than one start step")

	// ErrMisplacedEnd is returned when an end step is not the last step.
	ErrMisplacedEnd = errors.New("end step must be the last step")
)

// StepType discriminates recorded steps.
type StepType string

const (
	StepStart        StepType = "start"
	StepClick        StepType = "click"
	StepMouseDown    StepType = "mousedown"
	StepKeyDown      StepType = "keydown"
	StepChange       StepType = "change"
	StepFocus        StepType = "focus"
	StepScroll       StepType = "scroll"
	StepAjax         StepType = "ajax"
	StepAnimation    StepType = "animation"
	StepDialogOpen   StepType = "dialog-open"
	StepDialogClose  StepType = "dialog-close"
	StepPageCreated  StepType = "page-created"
	StepPageSwitched StepType = "page-switched"
	StepPageClosed   StepType = "page-closed"
	StepUnload       StepType = "unload"
	StepEnd          StepType = "end"
)

// IsUIBehavior reports whether the step is a user interaction with the page.
func (t StepType) IsUIBehavior() bool {
	switch t {
	case StepClick, StepMouseDown, StepKeyDown, StepChange, StepFocus, StepScroll:
		return true
	default:
		return false
	}
}

// DialogType is the kind of a native browser dialog.
type DialogType string

const (
	DialogAlert        DialogType = "alert"
	DialogConfirm      DialogType = "confirm"
	DialogPrompt       DialogType = "prompt"
	DialogBeforeUnload DialogType = "beforeunload"
)

// Viewport describes the emulated screen.
type Viewport struct {
	Width             int     `json:"width" yaml:"width"`
	Height            int     `json:"height" yaml:"height"`
	DeviceScaleFactor float64 `json:"deviceScaleFactor,omitempty" yaml:"deviceScaleFactor,omitempty"`
	IsMobile          bool    `json:"isMobile,omitempty" yaml:"isMobile,omitempty"`
	HasTouch          bool    `json:"hasTouch,omitempty" yaml:"hasTouch,omitempty"`
	IsLandscape       bool    `json:"isLandscape,omitempty" yaml:"isLandscape,omitempty"`
}

// Device is applied once when a session starts.
type Device struct {
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
	UserAgent string   `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	Viewport  Viewport `json:"viewport" yaml:"viewport"`
}

// AjaxRequest is the recorded request half of an ajax step.
type AjaxRequest struct {
	URL          string `json:"url" yaml:"url"`
	Method       string `json:"method,omitempty" yaml:"method,omitempty"`
	ResourceType string `json:"resourceType,omitempty" yaml:"resourceType,omitempty"`
}

// AjaxResponse is the recorded response half of an ajax step.
type AjaxResponse struct {
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
	Status int    `json:"status,omitempty" yaml:"status,omitempty"`
	Body   string `json:"body,omitempty" yaml:"body,omitempty"`
}

// Step is one recorded browser interaction.
type Step struct {
	Type       StepType `json:"type" yaml:"type"`
	UUID       string   `json:"uuid" yaml:"uuid"`
	StepUUID   string   `json:"stepUuid" yaml:"stepUuid"`
	Breakpoint bool     `json:"breakpoint,omitempty" yaml:"breakpoint,omitempty"`
	Image      string   `json:"image,omitempty" yaml:"image,omitempty"`

	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	CSSPath    string `json:"csspath,omitempty" yaml:"csspath,omitempty"`
	CustomPath string `json:"custompath,omitempty" yaml:"custompath,omitempty"`
	Target     string `json:"target,omitempty" yaml:"target,omitempty"`

	Value   string `json:"value,omitempty" yaml:"value,omitempty"`
	Checked *bool  `json:"checked,omitempty" yaml:"checked,omitempty"`
	File    string `json:"file,omitempty" yaml:"file,omitempty"`

	ScrollTop  float64 `json:"scrollTop,omitempty" yaml:"scrollTop,omitempty"`
	ScrollLeft float64 `json:"scrollLeft,omitempty" yaml:"scrollLeft,omitempty"`
	Duration   int     `json:"duration,omitempty" yaml:"duration,omitempty"`

	URL    string  `json:"url,omitempty" yaml:"url,omitempty"`
	Device *Device `json:"device,omitempty" yaml:"device,omitempty"`

	Request  *AjaxRequest  `json:"request,omitempty" yaml:"request,omitempty"`
	Response *AjaxResponse `json:"response,omitempty" yaml:"response,omitempty"`

	Dialog      DialogType  `json:"dialog,omitempty" yaml:"dialog,omitempty"`
	ReturnValue interface{} `json:"returnValue,omitempty" yaml:"returnValue,omitempty"`
}

// Locators returns the locator triple in resolution order.
func (s Step) Locators() Locators {
	return Locators{Path: s.Path, CSSPath: s.CSSPath, CustomPath: s.CustomPath}
}

// SameTarget reports whether two steps address the same element.
func (s Step) SameTarget(o Step) bool {
	if s.UUID != o.UUID {
		return false
	}
	if s.Path != "" || o.Path != "" {
		return s.Path == o.Path
	}
	if s.CSSPath != "" || o.CSSPath != "" {
		return s.CSSPath == o.CSSPath
	}
	return s.CustomPath != "" && s.CustomPath == o.CustomPath
}

// Locators is the ordered fallback chain used to find a step's element.
type Locators struct {
	Path       string `json:"path"`
	CSSPath    string `json:"csspath"`
	CustomPath string `json:"custompath"`
}

// Empty reports whether no locator was recorded.
func (l Locators) Empty() bool {
	return l.Path == "" && l.CSSPath == "" && l.CustomPath == ""
}

func (l Locators) String() string {
	return fmt.Sprintf("path=%q csspath=%q custompath=%q", l.Path, l.CSSPath, l.CustomPath)
}

// Flow is an ordered list of steps representing one recorded journey.
type Flow struct {
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Validate checks the start/end framing of the flow.
func (f Flow) Validate() error {
	if len(f.Steps) == 0 {
		return ErrEmptyFlow
	}
	if f.Steps[0].Type != StepStart {
		return ErrMissingStart
	}
	for i, s := range f.Steps {
		if i > 0 && s.Type == StepStart {
			return fmt.Errorf("%w: index %d", ErrDuplicateStart, i)
		}
		if s.Type == StepEnd && i != len(f.Steps)-1 {
			return fmt.Errorf("%w: index %d", ErrMisplacedEnd, i)
		}
	}
	return nil
}

// Clone returns a deep-enough copy so callers can mutate steps freely.
func (f Flow) Clone() Flow {
	steps := make([]Step, len(f.Steps))
	copy(steps, f.Steps)
	return Flow{Name: f.Name, Steps: steps}
}
