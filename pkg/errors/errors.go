// Package errors defines the detector's error sentinels and how each maps to
// an HTTP response.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrDiseaseNotFound      = errors.New("disease not found")
	ErrDetectionNotFound    = errors.New("detection not found")
	ErrCatalogueUnavailable = errors.New("disease catalogue unavailable")
	ErrInternal             = errors.New("internal error")
	ErrTimeout              = errors.New("operation timed out")
)

// statuses is checked in order; the first sentinel err matches wins.
var statuses = []struct {
	target error
	status int
}{
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrDiseaseNotFound, http.StatusNotFound},
	{ErrDetectionNotFound, http.StatusNotFound},
	{ErrTimeout, http.StatusGatewayTimeout},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
	{ErrCatalogueUnavailable, http.StatusServiceUnavailable},
}

// AppError is an error with a client-facing message and an explicit status.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// HTTPStatusCode maps err to a response status; unknown errors are 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, s := range statuses {
		if errors.Is(err, s.target) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// Describe returns the status and the message safe to show a client. Server
// errors get only the status text, so internals never leak.
func Describe(err error) (int, string) {
	status := HTTPStatusCode(err)
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return status, appErr.Message
	case status >= http.StatusInternalServerError:
		return status, http.StatusText(status)
	default:
		return status, err.Error()
	}
}
