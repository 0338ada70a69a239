package response

import (
	"errors"
)

const (
	KindConfig         = "CONFIG_ERROR"
	KindInvalidInput   = "INVALID_INPUT"
	KindValidation     = "VALIDATION_ERROR"
	KindUpstream       = "UPSTREAM_ERROR"
	KindResponseFormat = "RESPONSE_FORMAT_ERROR"
	KindRateLimited    = "TOO_MANY_REQUESTS"
	KindInternal       = "INTERNAL_ERROR"
)

type Error struct {
	Code int
	Kind string
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	ok := errors.As(target, &t)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Kind == t.Kind && e.Err.Error() == t.Err.Error()
}

func NewError(code int, kind string, err string) error {
	return &Error{code, kind, errors.New(err)}
}
