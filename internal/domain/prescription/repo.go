package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	SortDateDesc = "date"
	SortNumber   = "number"
)

type Filter struct {
	PatientID     *uuid.UUID
	DoctorID      *uuid.UUID
	AppointmentID *uuid.UUID
	Statuses      []Status
	// ExpiresBefore matches expiry_date < the given day.
	ExpiresBefore *time.Time
	Sort          string
}

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error)
	Count(ctx context.Context, f Filter) (int, error)

	AddLine(ctx context.Context, l *Line) error
	GetLine(ctx context.Context, id uuid.UUID) (*Line, error)
	UpdateLine(ctx context.Context, l *Line) error
	DeleteLine(ctx context.Context, id uuid.UUID) error
	GetLines(ctx context.Context, prescriptionID uuid.UUID) ([]*Line, error)
}
