package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingColumns = errors.New("missing required columns")
	ErrInvalidInput   = errors.New("invalid input")
	ErrSuperseded     = errors.New("superseded by a newer request")
	ErrNotReady       = errors.New("no snapshot loaded")
	ErrNotFound       = errors.New("not found")
	ErrInternal       = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// MissingColumns builds the user-facing error raised when the snapshot lacks
// one of the logical fields the engine needs.
func MissingColumns(fields []string) *AppError {
	return Newf(ErrMissingColumns, http.StatusUnprocessableEntity,
		"snapshot is missing columns for %v", fields)
}

// UserMessage returns the message safe to show in the panel.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	switch {
	case errors.Is(err, ErrSuperseded):
		return ErrSuperseded.Error()
	case errors.Is(err, ErrNotReady):
		return ErrNotReady.Error()
	default:
		return "internal error"
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrMissingColumns):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
