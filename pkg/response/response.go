package response

import (
	"errors"
)

type Error struct {
	Code   int
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Is(target error) bool {
	var t *Error
	ok := errors.As(target, &t)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Err.Error() == t.Err.Error()
}

func NewError(code int, err string) error {
	return &Error{Code: code, Err: errors.New(err)}
}

// NewCodedError attaches a machine-readable reason that clients can switch on.
func NewCodedError(code int, reason string, err string) error {
	return &Error{Code: code, Reason: reason, Err: errors.New(err)}
}
