package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByIdentification(ctx context.Context, identificationID string) (*Patient, error)
	GetByUserID(ctx context.Context, userID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Search matches name, identification id or phone, case-insensitively.
	Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error)
}
