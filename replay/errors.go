package replay

import (
	"errors"
	"fmt"

	"github.com/hairizuan-noorazman/ui-replay/correlate"
	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/ledger"
	"github.com/hairizuan-noorazman/ui-replay/locator"
)

var (
	// ErrElementNotFound is returned when every locator of a step misses.
	ErrElementNotFound = locator.ErrElementNotFound

	// ErrSettleTimeout is returned when a page never goes quiet after a step.
	ErrSettleTimeout = ledger.ErrSettleTimeout

	// ErrBrokenFlow is returned when a browser event has no matching forward step.
	ErrBrokenFlow = correlate.ErrBrokenFlow

	// ErrDialogMismatch is returned when a live dialog disagrees with the recording.
	ErrDialogMismatch = correlate.ErrDialogMismatch

	// ErrStepExecution is returned when a step's action itself fails.
	ErrStepExecution = errors.New("step execution failed")

	// ErrSessionClosed is returned when stepping a disconnected or abolished session.
	ErrSessionClosed = errors.New("replay session closed")

	// ErrRecording is returned when stepping a session handed over to a recorder.
	ErrRecording = errors.New("replay session switched to recording")

	// ErrIndexOutOfRange is returned for a step index outside the flow.
	ErrIndexOutOfRange = errors.New("step index out of range")

	// ErrInvalidFlow is returned when a resent flow fails validation.
	ErrInvalidFlow = errors.New("invalid flow")
)

// StepError attributes a failure to a step.
type StepError struct {
	Index    int
	StepUUID string
	Type     flow.StepType
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s %s): %v", e.Index, e.Type, e.StepUUID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func execError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStepExecution, fmt.Sprintf(format, args...))
}

// Kind returns the taxonomy name of err, or "" when it is not a replay failure.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrElementNotFound):
		return "ElementNotFound"
	case errors.Is(err, ErrSettleTimeout):
		return "SettleTimeout"
	case errors.Is(err, ErrBrokenFlow):
		return "BrokenFlow"
	case errors.Is(err, ErrDialogMismatch):
		return "DialogMismatch"
	case errors.Is(err, ErrStepExecution):
		return "StepExecutionError"
	default:
		return ""
	}
}
