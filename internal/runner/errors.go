package runner

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a run stopped
type ErrorKind string

const (
	KindBrowser    ErrorKind = "browser"
	KindNavigation ErrorKind = "navigation"
	KindAction     ErrorKind = "action"
	KindWait       ErrorKind = "wait"
	KindAssertion  ErrorKind = "assertion"
	KindScreenshot ErrorKind = "screenshot"
)

// ErrAssertionFailed is wrapped by assertion failures where the page was
// reachable but an element's visibility was wrong.
var ErrAssertionFailed = errors.New("assertion failed")

// StepError is returned by Run when a step aborts the run
type StepError struct {
	Index int // -1 when no step had started
	Step  string
	Kind  ErrorKind
	Err   error
}

func (e *StepError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("step %d (%s): %s: %v", e.Index, e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the StepError in err's chain, or "" if there is none
func KindOf(err error) ErrorKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
