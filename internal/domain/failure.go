package domain

import "errors"

type FailureClass string

const (
	FailureTransient FailureClass = "transient"
	FailurePermanent FailureClass = "permanent"
)

// Failure tags an error with a retry class. Transforms and infra
// clients classify their own errors; nothing downstream inspects
// message text to guess permanence.
type Failure struct {
	Class FailureClass
	Err   error
}

func (f *Failure) Error() string { return string(f.Class) + ": " + f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Failure{Class: FailureTransient, Err: err}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Failure{Class: FailurePermanent, Err: err}
}

// ClassOf resolves the retry class of an error. Unclassified errors
// count as transient: retrying is safe, giving up is not.
func ClassOf(err error) FailureClass {
	var f *Failure
	if errors.As(err, &f) {
		return f.Class
	}
	var d *DecodeError
	if errors.As(err, &d) {
		return FailurePermanent
	}
	return FailureTransient
}

// ShouldDeadLetter decides whether a failed delivery terminates the
// envelope. AttemptCount reflects the delivery that observed the
// failure.
func ShouldDeadLetter(e Envelope, cause error) bool {
	return ClassOf(cause) == FailurePermanent || e.AttemptCount >= e.MaxAttempts
}
