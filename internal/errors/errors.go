package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on the error code so wrapped instances compare equal to their
// sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

var (
	ErrNotFound   = &AppError{Code: "STORE_001", Message: "record not found"}
	ErrConflict   = &AppError{Code: "STORE_002", Message: "record conflict"}
	ErrForbidden  = &AppError{Code: "AUTH_001", Message: "forbidden"}
	ErrValidation = &AppError{Code: "API_001", Message: "invalid request payload"}

	// Push delivery taxonomy: transient failures keep the subscription,
	// permanent ones (404/410 from the push service) get it pruned.
	ErrTransientDelivery = &AppError{Code: "PUSH_001", Message: "transient push delivery failure"}
	ErrPermanentDelivery = &AppError{Code: "PUSH_002", Message: "push endpoint gone"}

	ErrConfigInvalid = &AppError{Code: "CONFIG_001", Message: "invalid configuration"}
)

func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err}
}

// WrapAs attaches a cause to a sentinel, preserving its code and message.
func WrapAs(sentinel *AppError, cause error) *AppError {
	return &AppError{Code: sentinel.Code, Message: sentinel.Message, Cause: cause}
}

func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}
