package task

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows task listings. Zero values match everything.
type Filter struct {
	UserID        string
	AppointmentID *uuid.UUID
	Status        string
}

type Repository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	Update(ctx context.Context, t *Task) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Task, int, error)
}
