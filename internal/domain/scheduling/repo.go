package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ScheduleRepository interface {
	Create(ctx context.Context, e *ScheduleEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduleEntry, error)
	Update(ctx context.Context, e *ScheduleEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]*ScheduleEntry, error)
}

// Sort orders for appointment searches.
const (
	SortDateDesc = "date"
	SortDateAsc  = "date_asc"
	SortNumber   = "number"
	SortDoctor   = "doctor"
)

// AppointmentFilter narrows appointment searches. Zero values match
// everything; StartFrom and StartTo are inclusive.
type AppointmentFilter struct {
	PatientID          *uuid.UUID
	DoctorID           *uuid.UUID
	Statuses           []Status
	StartFrom          *time.Time
	StartTo            *time.Time
	ExcludeID          *uuid.UUID
	Reminder24hPending bool
	Reminder2hPending  bool
	Sort               string
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	Count(ctx context.Context, f AppointmentFilter) (int, error)
}
