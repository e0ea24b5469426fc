package scheduling

import "errors"

var (
	ErrNotFound          = errors.New("Appointment not found")
	ErrUnknownPatient    = errors.New("Patient not found.")
	ErrInvalidStatus     = errors.New("invalid admit status")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrConflict          = errors.New("appointment was changed by another request, reload and try again")
	ErrValidation        = errors.New("validation failed")
)

// ValidationError carries a message meant for the client. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
