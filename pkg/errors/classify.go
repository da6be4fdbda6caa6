package errors

import (
	"context"
	stderrors "errors"
)

// IsTransient reports whether retrying the failed operation later may succeed.
// Uncoded errors count as transient (network noise from lower layers);
// context cancellation and deadline errors never do.
func IsTransient(err error) bool {
	if err == nil || IsContext(err) {
		return false
	}
	var e *Error
	if !stderrors.As(err, &e) {
		return true
	}
	return e.Code.IsTransient()
}

// IsFatal reports whether the error must end the current submission without retry.
func IsFatal(err error) bool {
	if err == nil || IsContext(err) {
		return false
	}
	return !IsTransient(err)
}

// IsContext reports whether err comes from context cancellation or deadline expiry.
// A coded error decides by its own code, so a transport timeout wrapped as
// JudgeUnavailable stays transient.
func IsContext(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == Canceled
	}
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
