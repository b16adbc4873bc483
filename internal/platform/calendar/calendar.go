// Package calendar stores the calendar events mirrored from confirmed
// appointments. The scheduling service only keeps the returned event id.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hospital/appointments/internal/platform/db"
	"github.com/hospital/appointments/pkg/circuitbreaker"
)

var ErrEventNotFound = errors.New("calendar event not found")

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	Stop        time.Time `json:"stop"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	// Invitees are user account ids.
	Invitees []string `json:"invitees,omitempty"`
}

func (e Event) Validate() error {
	if e.Title == "" {
		return fmt.Errorf("event title is required")
	}
	if !e.Stop.After(e.Start) {
		return fmt.Errorf("event stop must be after start")
	}
	return nil
}

// Store is the calendar collaborator used by appointment confirmation.
type Store interface {
	CreateEvent(ctx context.Context, e Event) (string, error)
	UpdateEvent(ctx context.Context, e Event) error
	DeleteEvent(ctx context.Context, id string) error
	GetEvent(ctx context.Context, id string) (*Event, error)
}

type PGStore struct {
	pool db.Querier
}

func NewPGStore(pool db.Querier) *PGStore {
	return &PGStore{pool: pool}
}

const eventCols = `id, title, start_at, stop_at, description, location, invitees`

func (s *PGStore) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

func (s *PGStore) CreateEvent(ctx context.Context, e Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO calendar_event (`+eventCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Title, e.Start, e.Stop, e.Description, e.Location, e.Invitees)
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	return e.ID, nil
}

func (s *PGStore) UpdateEvent(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE calendar_event SET title = $2, start_at = $3, stop_at = $4,
			description = $5, location = $6, invitees = $7, updated_at = NOW()
		WHERE id = $1`,
		e.ID, e.Title, e.Start, e.Stop, e.Description, e.Location, e.Invitees)
	if err != nil {
		return fmt.Errorf("update calendar event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// DeleteEvent is idempotent: deleting a missing event succeeds.
func (s *PGStore) DeleteEvent(ctx context.Context, id string) error {
	if _, err := s.conn(ctx).Exec(ctx, `DELETE FROM calendar_event WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

func (s *PGStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	var e Event
	err := s.conn(ctx).QueryRow(ctx, `SELECT `+eventCols+` FROM calendar_event WHERE id = $1`, id).
		Scan(&e.ID, &e.Title, &e.Start, &e.Stop, &e.Description, &e.Location, &e.Invitees)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get calendar event: %w", err)
	}
	return &e, nil
}

type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]Event)}
}

func (s *MemoryStore) CreateEvent(_ context.Context, e Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.events[e.ID] = e
	s.mu.Unlock()
	return e.ID, nil
}

func (s *MemoryStore) UpdateEvent(_ context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; !ok {
		return ErrEventNotFound
	}
	s.events[e.ID] = e
	return nil
}

func (s *MemoryStore) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.events, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &e, nil
}

// Events returns a snapshot ordered by start.
func (s *MemoryStore) Events() []Event {
	s.mu.RLock()
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Guarded routes writes through a circuit breaker so an unavailable calendar
// backend fails fast.
type Guarded struct {
	Store
	breaker *circuitbreaker.Breaker
}

func NewGuarded(store Store, breaker *circuitbreaker.Breaker) *Guarded {
	return &Guarded{Store: store, breaker: breaker}
}

func (g *Guarded) CreateEvent(ctx context.Context, e Event) (string, error) {
	var id string
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		id, err = g.Store.CreateEvent(ctx, e)
		return err
	})
	return id, err
}

func (g *Guarded) UpdateEvent(ctx context.Context, e Event) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.Store.UpdateEvent(ctx, e)
	})
}

func (g *Guarded) DeleteEvent(ctx context.Context, id string) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.Store.DeleteEvent(ctx, id)
	})
}
