package assemble

import "fmt"

// Kind classifies assembly failures for logging and user display.
type Kind string

const (
	// KindInterpretation: the oracle could not extract a task.
	KindInterpretation Kind = "interpretation"
	// KindValidation: the extracted time is invalid or in the past
	// after the single recompute retry.
	KindValidation Kind = "validation"
	// KindPersistence: the store write failed.
	KindPersistence Kind = "persistence"
	// KindTransport: sending or editing the reply failed. Logged, not
	// retried.
	KindTransport Kind = "transport"
)

// Error is an assembly failure with its taxonomy kind.
type Error struct {
	Kind   Kind
	Reason string // human-readable cause, shown to the user where applicable
	Err    error  // underlying error, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }
