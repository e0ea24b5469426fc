package patient

import (
	"context"

	"github.com/chemoward/api/pkg/pagination"
)

// Repository is the Patient Store. Lookups by id return soft-deleted rows
// too; callers decide whether IsDeleted hides them.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id int64) (*Patient, error)
	List(ctx context.Context, pg pagination.Params) ([]*Patient, int, error)
	Search(ctx context.Context, query string, pg pagination.Params) ([]*Patient, int, error)
	Update(ctx context.Context, p *Patient) error
	SetAttachments(ctx context.Context, id int64, attachments []Attachment) error
	SoftDelete(ctx context.Context, id int64) error
}
