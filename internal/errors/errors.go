package errors

import (
	"errors"
	"fmt"
)

// Domain outcomes. Each one is terminal for the current action and is
// returned to the caller as-is; none of them are retried.
var (
	ErrValidation           = errors.New("validation failed")
	ErrDuplicateEmail       = errors.New("email already registered")
	ErrSelfLike             = errors.New("cannot like yourself")
	ErrAlreadyLiked         = errors.New("participant already liked")
	ErrRateLimitExceeded    = errors.New("daily like limit reached")
	ErrTargetNotFound       = errors.New("participant not found")
	ErrGeocodingUnavailable = errors.New("geocoding unavailable")
)

// StorageError wraps an infrastructure failure of the store. The whole action is
// safe to retry by the caller.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError unless it is nil or already a domain error.
func Storage(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Validation builds an ErrValidation carrying a human readable reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsDomain reports whether err is one of the user-presentable outcomes.
func IsDomain(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrDuplicateEmail, ErrSelfLike, ErrAlreadyLiked,
		ErrRateLimitExceeded, ErrTargetNotFound, ErrGeocodingUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsStorage reports whether err carries a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
