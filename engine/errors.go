package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for error classification.
var (
	// ErrUnavailable indicates the engine could not be started or the
	// running engine process went away.
	ErrUnavailable = errors.New("engine unavailable")

	// ErrRuntime indicates code raised an error inside the engine.
	ErrRuntime = errors.New("engine runtime error")

	// ErrProtocol indicates a malformed or unexpected reply from the helper.
	ErrProtocol = errors.New("engine protocol error")
)

// UnavailableError describes a failed startup. First holds the reason of
// the earliest failed attempt when this error comes from a retry.
type UnavailableError struct {
	Err   error
	First error
}

func (e *UnavailableError) Error() string {
	if e.First != nil && e.First.Error() != e.Err.Error() {
		return fmt.Sprintf("%v: %v (first failure: %v)", ErrUnavailable, e.Err, e.First)
	}
	return fmt.Sprintf("%v: %v", ErrUnavailable, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// StackFrame is one entry of a MATLAB error stack.
type StackFrame struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// RuntimeError is an MException raised by user code, as reported by the helper.
type RuntimeError struct {
	Identifier string       `json:"identifier"`
	Message    string       `json:"message"`
	Stack      []StackFrame `json:"stack,omitempty"`
}

func (e *RuntimeError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if e.Identifier != "" {
		msg = e.Identifier + ": " + msg
	}
	if len(e.Stack) > 0 && e.Stack[0].Name != "" {
		msg = fmt.Sprintf("%s (in %s at line %d)", msg, e.Stack[0].Name, e.Stack[0].Line)
	}
	return msg
}

// Is lets callers match any RuntimeError with errors.Is(err, ErrRuntime).
func (e *RuntimeError) Is(target error) bool {
	return target == ErrRuntime
}
