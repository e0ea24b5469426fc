package scheduling

import "context"

// Repository is the Appointment Store. Reads join the owning patient and skip
// appointments whose patient has been soft deleted.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	// List orders by date ascending.
	List(ctx context.Context, f Filter) ([]*Appointment, int, error)
	// Update writes every mutable column when the stored version equals
	// a.Version, then increments a.Version. A stale version yields
	// ErrConflict.
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id int64) error
}

// PatientChecker resolves patient ids for appointment creation.
type PatientChecker interface {
	PatientExists(ctx context.Context, id int64) (bool, error)
}
