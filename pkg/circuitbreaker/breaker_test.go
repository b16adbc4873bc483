package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testConfig() Config {
	cfg := DefaultConfig("calendar")
	cfg.ConsecutiveFailures = 2
	cfg.Timeout = 20 * time.Millisecond
	return cfg
}

func TestBreaker_PassesThrough(t *testing.T) {
	b := New(testConfig(), zerolog.Nop())
	calls := 0
	err := b.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected one successful call, got calls=%d err=%v", calls, err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_TripsAndRecovers(t *testing.T) {
	b := New(testConfig(), zerolog.Nop())
	boom := errors.New("provider down")
	fail := func(ctx context.Context) error { return boom }

	for i := 0; i < 2; i++ {
		if err := b.Do(context.Background(), fail); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected provider error, got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after consecutive failures, got %s", b.State())
	}

	called := false
	err := b.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !IsOpen(err) {
		t.Fatalf("expected open-circuit rejection, got %v", err)
	}
	if called {
		t.Error("fn must not run while the breaker is open")
	}

	time.Sleep(30 * time.Millisecond)
	if err := b.Do(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to succeed, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	b := New(testConfig(), zerolog.Nop())
	for i := 0; i < 3; i++ {
		_ = b.Do(context.Background(), func(ctx context.Context) error { return context.Canceled })
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}
