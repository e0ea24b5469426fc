package admin

import "context"

// UserRepository is the Credential Store.
type UserRepository interface {
	// Create fails with ErrDuplicateEmail when the email is taken.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)
	Count(ctx context.Context) (int, error)
}

type LinkRepository interface {
	Create(ctx context.Context, l *Link) error
	// List orders by creation time, oldest first.
	List(ctx context.Context) ([]*Link, error)
	Update(ctx context.Context, l *Link) error
	Delete(ctx context.Context, id int64) error
}
