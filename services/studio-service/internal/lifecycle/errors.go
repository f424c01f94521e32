package lifecycle

import (
	"fmt"

	"github.com/inkform/inkform/services/studio-service/internal/storage"
)

var (
	ErrNotFound        = storage.ErrNotFound
	ErrInvalidState    = storage.ErrInvalidState
	ErrDuplicateIntake = storage.ErrDuplicateIntake
	ErrPersistence     = storage.ErrPersistence
)

type Code string

const (
	MissingClientName Code = "missing_client_name"
	InvalidDate       Code = "invalid_date"
	InvalidAmount     Code = "invalid_amount"
)

// ValidationError rejects a booking request before anything is written.
type ValidationError struct {
	Code  Code
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Field)
}
