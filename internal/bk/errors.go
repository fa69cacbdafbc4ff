package bk

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an operation addresses a key that must exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a create collides with an existing key.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDuplicateCheckIn is returned when a room checks in twice on the same day.
	ErrDuplicateCheckIn = errors.New("duplicate check-in")
	// ErrUnavailable marks transient storage failures. Callers own the retry policy.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrInvalidDate is returned for dates that are not a YYYY-MM-DD calendar date.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidKey is returned for empty record keys.
	ErrInvalidKey = errors.New("invalid key")
)

// Unavailable wraps a backend failure so that it matches ErrUnavailable while
// keeping the cause inspectable with errors.Is / errors.As.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// ErrorKind maps an error to a stable label for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrDuplicateCheckIn):
		return "duplicate_check_in"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "unexpected"
	}
}
