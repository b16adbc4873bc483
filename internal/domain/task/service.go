package task

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/appointments/internal/platform/apperr"
	"github.com/hospital/appointments/internal/platform/auth"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// ScheduleTask puts an open task on userID's list, optionally tied to an
// appointment.
func (s *Service) ScheduleTask(ctx context.Context, userID string, appointmentID uuid.UUID, note string, due time.Time) error {
	t := &Task{UserID: userID, Note: note, DueDate: due, Status: StatusOpen}
	if appointmentID != uuid.Nil {
		t.AppointmentID = &appointmentID
	}
	return s.CreateTask(ctx, t)
}

func (s *Service) CreateTask(ctx context.Context, t *Task) error {
	if t.Status == "" {
		t.Status = StatusOpen
	}
	if t.DueDate.IsZero() {
		t.DueDate = s.now()
	}
	if err := t.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, t)
}

// GetTask returns the task when the caller owns it or is an admin.
func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(ctx, t) {
		return nil, apperr.NotFound("task not found")
	}
	return t, nil
}

func canAccess(ctx context.Context, t *Task) bool {
	return t.UserID == auth.UserIDFromContext(ctx) || auth.HasRole(ctx, auth.RoleAdmin)
}

// ListForUser lists userID's tasks, open ones first by due date.
func (s *Service) ListForUser(ctx context.Context, userID, status string, limit, offset int) ([]*Task, int, error) {
	return s.repo.List(ctx, Filter{UserID: userID, Status: status}, limit, offset)
}

func (s *Service) MarkDone(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusOpen {
		return nil, apperr.Transition("task is %s; only open tasks can be marked done", t.Status)
	}
	now := s.now()
	t.Status = StatusDone
	t.DoneAt = &now
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CancelForAppointment cancels the open tasks of an appointment and returns
// how many were cancelled.
func (s *Service) CancelForAppointment(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	items, _, err := s.repo.List(ctx, Filter{AppointmentID: &appointmentID, Status: StatusOpen}, 1000, 0)
	if err != nil {
		return 0, err
	}
	for i, t := range items {
		t.Status = StatusCancelled
		if err := s.repo.Update(ctx, t); err != nil {
			return i, err
		}
	}
	return len(items), nil
}
