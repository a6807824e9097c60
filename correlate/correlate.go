// Package correlate matches browser-originated events to the recorded steps
// that follow the replay cursor. Every function is a pure lookahead over the
// step list.
package correlate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hairizuan-noorazman/ui-replay/flow"
)

var (
	// ErrBrokenFlow is returned when a live event has no matching forward step.
	ErrBrokenFlow = errors.New("broken flow")

	// ErrDialogMismatch is returned when a live dialog disagrees with the
	// recorded expectation.
	ErrDialogMismatch = errors.New("dialog mismatch")
)

// MatchPopup returns the index of the nearest page-created step after cursor
// whose url matches the popup's settled url.
func MatchPopup(steps []flow.Step, cursor int, url string) (int, error) {
	for i := cursor + 1; i < len(steps); i++ {
		s := steps[i]
		if s.Type == flow.StepPageCreated && SameURL(s.URL, url) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: no page-created step for %q after step %d", ErrBrokenFlow, url, cursor)
}

// SameURL compares urls ignoring a single trailing slash.
func SameURL(a, b string) bool {
	if a == b {
		return true
	}
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

// DialogAction is how a live dialog should be resolved.
type DialogAction struct {
	Accept     bool
	PromptText string

	// Index is the step that determined the action, or -1.
	Index int
}

// ResolveDialog decides how to answer a dialog raised on the page bound to
// uuid. On error the returned action dismisses the dialog.
func ResolveDialog(steps []flow.Step, cursor int, uuid string, kind flow.DialogType) (DialogAction, error) {
	switch kind {
	case flow.DialogConfirm, flow.DialogPrompt:
		return resolveClose(steps, cursor, uuid, kind)
	case flow.DialogBeforeUnload:
		return resolveBeforeUnload(steps, cursor, uuid), nil
	default:
		return DialogAction{Accept: true, Index: -1}, nil
	}
}

func resolveClose(steps []flow.Step, cursor int, uuid string, kind flow.DialogType) (DialogAction, error) {
	dismiss := DialogAction{Index: -1}
	for i := cursor + 1; i < len(steps); i++ {
		s := steps[i]
		if s.Type != flow.StepDialogClose || s.UUID != uuid {
			continue
		}
		if s.Dialog != kind {
			dismiss.Index = i
			return dismiss, fmt.Errorf("%w: live %s but step %d recorded %s", ErrDialogMismatch, kind, i, s.Dialog)
		}
		action := DialogAction{Index: i}
		if text, ok := s.ReturnValue.(string); ok {
			action.Accept = true
			action.PromptText = text
		} else {
			action.Accept = truthy(s.ReturnValue)
		}
		return action, nil
	}
	return dismiss, fmt.Errorf("%w: no dialog-close step for %s on page %s after step %d", ErrBrokenFlow, kind, uuid, cursor)
}

func resolveBeforeUnload(steps []flow.Step, cursor int, uuid string) DialogAction {
	for i := cursor + 1; i < len(steps); i++ {
		s := steps[i]
		if s.UUID != uuid || s.Type == flow.StepUnload {
			continue
		}
		switch s.Type {
		case flow.StepPageClosed, flow.StepPageSwitched:
			return DialogAction{Accept: true, Index: i}
		default:
			return DialogAction{Index: i}
		}
	}
	return DialogAction{Index: -1}
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	default:
		return true
	}
}
