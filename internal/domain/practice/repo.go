package practice

import (
	"context"

	"github.com/google/uuid"
)

type SpecialtyRepository interface {
	Create(ctx context.Context, s *Specialty) error
	GetByID(ctx context.Context, id uuid.UUID) (*Specialty, error)
	Update(ctx context.Context, s *Specialty) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Specialty, int, error)
}

// DoctorFilter narrows doctor searches. Zero values match everything.
type DoctorFilter struct {
	SpecialtyID *uuid.UUID
	ActiveOnly  bool
	Name        string
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID string) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error)
}
