package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrAlreadyExists        = errors.New("resource already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrInternal             = errors.New("internal error")
	ErrConflict             = errors.New("conflict")
	ErrServiceUnavail       = errors.New("service unavailable")
	ErrTicketCreationFailed = errors.New("ticket creation failed")
	ErrPersistence          = errors.New("persistence failure")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// NotFoundOf creates a 404 error that also matches kind with errors.Is, so
// callers can tell apart which resource was missing.
func NotFoundOf(resource, id string, kind error) *AppError {
	err := NotFound(resource, id)
	if kind != nil {
		err.Err = errors.Join(ErrNotFound, kind)
	}
	return err
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// InvalidInputOf creates a 400 error with its own code that also matches kind.
func InvalidInputOf(code, message string, kind error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     errors.Join(ErrInvalidInput, kind),
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Conflict creates a 409 error for optimistic concurrency failures.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// ConflictOf creates a 409 error that also matches kind with errors.Is.
func ConflictOf(message string, kind error) *AppError {
	err := Conflict(message)
	if kind != nil {
		err.Err = errors.Join(ErrConflict, kind)
	}
	return err
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// TicketCreationFailed creates a 422 error for a purchase that could not be
// attempted at all.
func TicketCreationFailed(message string, cause error) *AppError {
	err := &AppError{
		Code:    "TICKET_CREATION_FAILED",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrTicketCreationFailed,
	}
	if cause != nil {
		err.Err = errors.Join(ErrTicketCreationFailed, cause)
	}
	return err
}

// Persistence creates a 503 error for a store that could not be read or written.
func Persistence(op string, cause error) *AppError {
	return &AppError{
		Code:    "PERSISTENCE_ERROR",
		Message: "storage is temporarily unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%s: %w", op, errors.Join(ErrPersistence, cause)),
	}
}

// ServiceUnavailable creates a 503 error for an unreachable downstream.
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     ErrServiceUnavail,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrPersistence) || errors.Is(err, ErrServiceUnavail)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrTicketCreationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrPersistence), errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
