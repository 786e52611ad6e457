package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound        = "NOT_FOUND"
	CodeBadRequest      = "BAD_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeInternal        = "INTERNAL_ERROR"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"

	// Failure taxonomy shared by the server and the sync client.
	CodePrecondition = "PRECONDITION_FAILED"
	CodeValidation   = "VALIDATION_ERROR"
	CodeTransport    = "TRANSPORT_ERROR"
	CodeConflict     = "CONFLICT"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func TooManyRequests(message string) *AppError {
	return &AppError{
		Code:    CodeTooManyRequests,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

// Precondition reports a transition attempted from the wrong state or by the
// wrong role. Nothing was mutated.
func Precondition(message string) *AppError {
	return &AppError{
		Code:    CodePrecondition,
		Message: message,
		Status:  http.StatusPreconditionFailed,
	}
}

// Validation reports malformed input. Nothing was mutated.
func Validation(message string, err error) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

// Transport reports that the network or event channel was unavailable.
func Transport(message string, err error) *AppError {
	return &AppError{
		Code:    CodeTransport,
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// Conflict reports that a concurrent mutation invalidated the caller's view.
// The caller has to refetch before retrying.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// FromResponse rebuilds an AppError from a decoded error envelope.
func FromResponse(code, message string, status int) *AppError {
	if code == "" {
		code = CodeInternal
	}
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsRetryable(err error) bool {
	return Is(err, CodeTransport)
}

func RequiresRefresh(err error) bool {
	return Is(err, CodeConflict)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// AsAppError unwraps err to the first AppError in its chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
