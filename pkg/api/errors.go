package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the stable tag of a classified failure.
type ErrorKind string

const (
	KindOutOfServiceArea          ErrorKind = "OutOfServiceArea"
	KindInvalidChargeAmount       ErrorKind = "InvalidChargeAmount"
	KindCreditCardProcessingError ErrorKind = "CreditCardProcessingError"
	KindStalled                   ErrorKind = "Stalled"
	KindTimeout                   ErrorKind = "Timeout"
	KindCanceled                  ErrorKind = "Canceled"
	KindUnknown                   ErrorKind = "Unknown"
)

// DefaultNonRetryable reports whether failures of this kind are terminal
// unless the caller says otherwise.
func (k ErrorKind) DefaultNonRetryable() bool {
	switch k {
	case KindOutOfServiceArea, KindInvalidChargeAmount, KindCreditCardProcessingError, KindCanceled:
		return true
	default:
		return false
	}
}

// ErrRunCanceled is returned for runs stopped by an external cancellation.
// Canceled runs do not unwind their compensations.
var ErrRunCanceled = errors.New("run canceled")

// Error is a classified step failure.
type Error struct {
	Kind         ErrorKind
	Message      string
	NonRetryable bool

	cause error
}

// NewError returns an Error of the given kind with the kind's default
// retryability.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{
		Kind:         kind,
		Message:      fmt.Sprintf(format, args...),
		NonRetryable: kind.DefaultNonRetryable(),
	}
}

// NewNonRetryableError returns an Error that is terminal regardless of kind.
func NewNonRetryableError(kind ErrorKind, format string, args ...any) *Error {
	e := NewError(kind, format, args...)
	e.NonRetryable = true
	return e
}

// WrapError classifies cause under kind, keeping it reachable via errors.Unwrap.
func WrapError(kind ErrorKind, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Kind:         kind,
		Message:      msg,
		NonRetryable: kind.DefaultNonRetryable(),
		cause:        cause,
	}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable is the classifier's verdict before any retry policy applies.
func (e *Error) Retryable() bool { return !e.NonRetryable }

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, &api.Error{Kind: api.KindStalled}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Classify maps any error onto an *Error.
//
// Errors that already carry a classification keep it. Context deadline
// errors become KindTimeout, context cancellation becomes KindCanceled and
// everything else is KindUnknown, which is retryable.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		out := *e
		return &out
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(KindTimeout, err)
	case errors.Is(err, context.Canceled), errors.Is(err, ErrRunCanceled):
		return WrapError(KindCanceled, err)
	default:
		return WrapError(KindUnknown, err)
	}
}

// KindOf returns the classified kind of err, or "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}

// TerminalError is returned by Engine.Run when a run fails. Err is the
// failure of the step that stopped the run, never a compensation failure.
type TerminalError struct {
	RunID    string
	Workflow string
	Step     string
	Err      *Error

	Compensations []CompensationRecord
}

func (e *TerminalError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %s run %s failed", e.Workflow, e.RunID)
	if e.Step != "" {
		fmt.Fprintf(&b, " at step %s", e.Step)
	}
	fmt.Fprintf(&b, ": %v", e.Err)

	if n := len(e.Compensations); n > 0 {
		failed := 0
		for _, c := range e.Compensations {
			if !c.Succeeded() {
				failed++
			}
		}
		fmt.Fprintf(&b, " (%d compensations, %d failed)", n, failed)
	}
	return b.String()
}

func (e *TerminalError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}
