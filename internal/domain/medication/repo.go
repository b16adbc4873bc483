package medication

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows medication searches. Query matches name or active ingredient.
type Filter struct {
	Query      string
	Form       string
	ActiveOnly bool
}

type Repository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	Update(ctx context.Context, m *Medication) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Medication, int, error)
	// AdjustStock adds delta to qty_available and returns the new level. It
	// fails with a validation error when the result would be negative.
	AdjustStock(ctx context.Context, id uuid.UUID, delta float64) (float64, error)
}
