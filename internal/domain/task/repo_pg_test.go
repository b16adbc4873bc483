package task

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestRepoPG_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewRepoPG(mock)
	now := time.Now()
	due := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO task").
		WithArgs(pgxmock.AnyArg(), "u-1", pgxmock.AnyArg(), "Call back", due, StatusOpen).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	task := &Task{UserID: "u-1", Note: "Call back", DueDate: due, Status: StatusOpen}
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepoPG_List(t *testing.T) {
	mock := newMock(t)
	repo := NewRepoPG(mock)
	now := time.Now()
	cols := []string{"id", "user_id", "appointment_id", "note", "due_date", "status", "done_at", "created_at", "updated_at"}

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("u-1", StatusOpen).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT .+ FROM task WHERE 1=1 AND user_id").
		WithArgs("u-1", StatusOpen, 20, 0).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(uuid.New(), "u-1", nil, "Call back", now, StatusOpen, nil, now, now))

	items, total, err := repo.List(context.Background(), Filter{UserID: "u-1", Status: StatusOpen}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Note != "Call back" {
		t.Errorf("unexpected result %d %+v", total, items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
