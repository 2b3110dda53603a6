package errs

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Sentinel errors for the chat core. Use cases wrap these with %w so the
// transport edge can map them without string matching.
var (
	// ErrUnauthenticated missing or invalid credential, connection is rejected
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound conversation, message or user absent
	ErrNotFound = errors.New("not found")
	// ErrForbidden caller is not a participant of the target conversation
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidArgument malformed or ambiguous request payload
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict duplicate creation race surfaced by the store
	ErrConflict = errors.New("conflict")
)

// Unauthenticated wrap ErrUnauthenticated with detail
func Unauthenticated(format string, args ...interface{}) error {
	return wrap(ErrUnauthenticated, format, args...)
}

// NotFound wrap ErrNotFound with detail
func NotFound(format string, args ...interface{}) error {
	return wrap(ErrNotFound, format, args...)
}

// Forbidden wrap ErrForbidden with detail
func Forbidden(format string, args ...interface{}) error {
	return wrap(ErrForbidden, format, args...)
}

// InvalidArgument wrap ErrInvalidArgument with detail
func InvalidArgument(format string, args ...interface{}) error {
	return wrap(ErrInvalidArgument, format, args...)
}

// Conflict wrap ErrConflict with detail
func Conflict(format string, args ...interface{}) error {
	return wrap(ErrConflict, format, args...)
}

func wrap(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// HTTPStatus maps a core error onto the REST edge. Unknown errors are
// treated as retryable store failures.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrInvalidArgument):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
