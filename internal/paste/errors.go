package paste

import (
	"errors"
	"fmt"

	"ephemeral-paste/internal/storage"
)

var (
	// ErrNotFound covers both missing and logically expired pastes. Callers
	// must not be able to tell the two apart.
	ErrNotFound = storage.ErrNotFound
	// ErrViewLimitReached is returned by RecordView when no views are left.
	ErrViewLimitReached = storage.ErrViewLimitReached
	// ErrUnavailable matches every *UnavailableError via errors.Is.
	ErrUnavailable = errors.New("paste store unavailable")
)

// ValidationError reports a rejected creation request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UnavailableError wraps a persistence failure.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnavailable) match.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUnavailable reports whether err came from a failing store.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}
