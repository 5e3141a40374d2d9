package interpreter

import (
	"errors"
	"fmt"
)

var (
	ErrFlowNotFound       = errors.New("flow not found")
	ErrInvalidFlow        = errors.New("invalid flow")
	ErrSessionClosed      = errors.New("session is closed")
	ErrHandlerFailure     = errors.New("node handler failed")
	ErrPersistenceFailure = errors.New("storing session failed")
)

// RunError reports a failed run. Kind is one of the sentinel errors above;
// ExecutedSteps counts the steps that succeeded before the failure.
type RunError struct {
	Kind          error
	ExecutedSteps int
	NodeID        string
	Err           error
}

func (e *RunError) Error() string {
	msg := e.Kind.Error()
	if e.NodeID != "" {
		msg = fmt.Sprintf("%s at node %q", msg, e.NodeID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RunError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ExecutedStepsOf returns the step count carried by a RunError in err's chain.
func ExecutedStepsOf(err error) int {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.ExecutedSteps
	}
	return 0
}
