package storage

import "errors"

var (
	ErrNotFound        = errors.New("appointment not found")
	ErrInvalidState    = errors.New("appointment is not in a state that allows this change")
	ErrDuplicateIntake = errors.New("intake form already recorded for appointment")
	ErrPersistence     = errors.New("persistence failure")
	ErrStudioNotFound  = errors.New("studio not found")
)

// IsDomainError reports whether err is one of the store's domain sentinels
// rather than an infrastructure failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) || errors.Is(err, ErrDuplicateIntake)
}
