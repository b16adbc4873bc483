package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"

	"github.com/hospital/appointments/pkg/circuitbreaker"
)

func sampleEvent() Event {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return Event{
		Title:    "Appointment: Ana Ruiz - Dr. Lopez",
		Start:    start,
		Stop:     start.Add(30 * time.Minute),
		Location: "Room 3",
		Invitees: []string{"user-lopez"},
	}
}

func TestEvent_Validate(t *testing.T) {
	e := sampleEvent()
	if err := e.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.Stop = e.Start
	if err := e.Validate(); err == nil {
		t.Error("expected error when stop equals start")
	}
	e = sampleEvent()
	e.Title = ""
	if err := e.Validate(); err == nil {
		t.Error("expected error for empty title")
	}
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, err := s.CreateEvent(ctx, sampleEvent())
	if err != nil || id == "" {
		t.Fatalf("create failed: id=%q err=%v", id, err)
	}

	e, _ := s.GetEvent(ctx, id)
	e.Location = "Room 9"
	if err := s.UpdateEvent(ctx, *e); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if got, _ := s.GetEvent(ctx, id); got.Location != "Room 9" {
		t.Errorf("expected updated location, got %q", got.Location)
	}

	if err := s.DeleteEvent(ctx, id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.GetEvent(ctx, id); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
	if err := s.DeleteEvent(ctx, id); err != nil {
		t.Errorf("delete must be idempotent, got %v", err)
	}
	if err := s.UpdateEvent(ctx, *e); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound on update of deleted event, got %v", err)
	}
}

func TestPGStore_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	e := sampleEvent()
	e.ID = "evt-1"
	mock.ExpectExec("INSERT INTO calendar_event").
		WithArgs("evt-1", e.Title, e.Start, e.Stop, "", "Room 3", []string{"user-lopez"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := NewPGStore(mock).CreateEvent(context.Background(), e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "evt-1" {
		t.Errorf("expected evt-1, got %s", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPGStore_UpdateMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	e := sampleEvent()
	e.ID = "evt-gone"
	mock.ExpectExec("UPDATE calendar_event").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := NewPGStore(mock).UpdateEvent(context.Background(), e); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestPGStore_GetMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM calendar_event").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	if _, err := NewPGStore(mock).GetEvent(context.Background(), "nope"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

type failingStore struct {
	*MemoryStore
	calls int
}

func (f *failingStore) CreateEvent(context.Context, Event) (string, error) {
	f.calls++
	return "", errors.New("calendar backend unavailable")
}

func TestGuarded_OpensAfterFailures(t *testing.T) {
	cfg := circuitbreaker.DefaultConfig("calendar")
	cfg.ConsecutiveFailures = 2
	cfg.Timeout = time.Minute
	inner := &failingStore{MemoryStore: NewMemoryStore()}
	g := NewGuarded(inner, circuitbreaker.New(cfg, zerolog.Nop()))

	for i := 0; i < 2; i++ {
		if _, err := g.CreateEvent(context.Background(), sampleEvent()); err == nil {
			t.Fatal("expected backend error")
		}
	}
	_, err := g.CreateEvent(context.Background(), sampleEvent())
	if !circuitbreaker.IsOpen(err) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected backend to be skipped while open, got %d calls", inner.calls)
	}
}
