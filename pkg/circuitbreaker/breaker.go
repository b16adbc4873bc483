// Package circuitbreaker guards calls to external providers (calendar,
// email) so a failing dependency is skipped quickly instead of stalling
// every request and sweep that touches it.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

type Config struct {
	Name string
	// MaxRequests is how many trial calls pass while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counts; zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker below MinRequests.
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.6,
		MinRequests:         10,
	}
}

type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger zerolog.Logger
	tracer trace.Tracer
}

func New(cfg Config, logger zerolog.Logger) *Breaker {
	b := &Breaker{
		name:   cfg.Name,
		logger: logger.With().Str("breaker", cfg.Name).Logger(),
		tracer: otel.Tracer("circuit-breaker"),
	}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			b.logger.Warn().
				Str("from", string(mapState(from))).
				Str("to", string(mapState(to))).
				Msg("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about the provider's health
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return b
}

// Do runs fn unless the breaker is open, in which case it returns an error
// satisfying IsOpen without calling fn.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := b.tracer.Start(ctx, "circuit_breaker.do",
		trace.WithAttributes(
			attribute.String("breaker_name", b.name),
			attribute.String("state", string(b.State())),
		))
	defer span.End()

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		if IsOpen(err) {
			span.SetAttributes(attribute.Bool("circuit_open", true))
		}
		span.RecordError(err)
	}
	return err
}

func (b *Breaker) State() State {
	return mapState(b.cb.State())
}

func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// IsOpen reports whether err is a rejection by an open or saturated
// half-open breaker.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
