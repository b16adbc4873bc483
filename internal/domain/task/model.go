package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospital/appointments/internal/platform/apperr"
)

const (
	StatusOpen      = "open"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
)

// Task is a follow-up item on a staff member's to-do list.
type Task struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	Note          string     `db:"note" json:"note"`
	DueDate       time.Time  `db:"due_date" json:"due_date"`
	Status        string     `db:"status" json:"status"`
	DoneAt        *time.Time `db:"done_at" json:"done_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

func (t *Task) Validate() error {
	if t.UserID == "" {
		return apperr.Validation("user_id is required")
	}
	if t.Note == "" {
		return apperr.Validation("note is required")
	}
	switch t.Status {
	case StatusOpen, StatusDone, StatusCancelled:
	default:
		return apperr.Validation("invalid status %q", t.Status)
	}
	return nil
}

// Overdue reports whether an open task is past its due date.
func (t *Task) Overdue(today time.Time) bool {
	return t.Status == StatusOpen && truncateDay(t.DueDate).Before(truncateDay(today))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
