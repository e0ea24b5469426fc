package patient

import "errors"

var (
	ErrNotFound           = errors.New("Patient not found")
	ErrAttachmentNotFound = errors.New("Attachment not found")
	ErrDuplicateHN        = errors.New("duplicate hospital number")
	ErrValidation         = errors.New("validation failed")
)

// ValidationError carries a message fit for the API client. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
