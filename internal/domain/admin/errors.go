package admin

import "errors"

var (
	ErrUserNotFound       = errors.New("User not found")
	ErrDuplicateEmail     = errors.New("User with this email already exists.")
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrLinkNotFound       = errors.New("Link not found")
	ErrValidation         = errors.New("validation failed")
)

// ValidationError carries a message meant for the client. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
