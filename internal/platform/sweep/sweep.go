// Package sweep runs the periodic maintenance jobs: appointment reminders,
// auto-cancellation and prescription expiry. Jobs receive "now" explicitly and
// must be idempotent; the runner adds locking, metrics, tracing and logging.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hospital/appointments/internal/platform/apperr"
	"github.com/hospital/appointments/internal/platform/lock"
	"github.com/hospital/appointments/internal/platform/telemetry"
)

// Result counts what one run touched. Matched records that failed are
// counted in Failed and left for the next run. Skipped ones no longer
// matched by the time they were handled.
type Result struct {
	Matched   int `json:"matched"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Add records the outcome of one record.
func (r *Result) Add(err error) {
	if err != nil {
		r.Failed++
		return
	}
	r.Processed++
}

// Skip records a matched record that was left alone.
func (r *Result) Skip() { r.Skipped++ }

// Func is a sweep job.
type Func func(ctx context.Context, now time.Time) (Result, error)

// ErrSkipped is returned when another instance holds the sweep's lock.
var ErrSkipped = errors.New("sweep skipped: held by another instance")

// Report is the outcome of a single job in RunAll.
type Report struct {
	Name    string        `json:"name"`
	Result  Result        `json:"result"`
	Skipped bool          `json:"skipped,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

const defaultLockTTL = 5 * time.Minute

type Runner struct {
	mu      sync.RWMutex
	jobs    map[string]Func
	locker  lock.Locker
	lockTTL time.Duration
	metrics *telemetry.Metrics
	logger  zerolog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewRunner builds a runner. A nil locker runs jobs unguarded.
func NewRunner(locker lock.Locker, metrics *telemetry.Metrics, logger zerolog.Logger) *Runner {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Runner{
		jobs:    make(map[string]Func),
		locker:  locker,
		lockTTL: defaultLockTTL,
		metrics: metrics,
		logger:  logger.With().Str("component", "sweep").Logger(),
		tracer:  telemetry.Tracer(),
		now:     time.Now,
	}
}

func (r *Runner) Register(name string, fn Func) {
	r.mu.Lock()
	r.jobs[name] = fn
	r.mu.Unlock()
}

// Names returns the registered jobs in alphabetical order.
func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes one job under its lock.
func (r *Runner) Run(ctx context.Context, name string, now time.Time) (Result, error) {
	r.mu.RLock()
	fn, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, apperr.NotFound("unknown sweep %q", name)
	}

	lease, err := r.locker.Acquire(ctx, "sweep:"+name, r.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		r.logger.Debug().Str("sweep", name).Msg("sweep held elsewhere, skipping")
		return Result{}, ErrSkipped
	}
	if err != nil {
		return Result{}, fmt.Errorf("acquire sweep lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn().Err(err).Str("sweep", name).Msg("release sweep lock")
		}
	}()

	ctx, span := r.tracer.Start(ctx, "sweep."+name,
		trace.WithAttributes(attribute.String("sweep", name), attribute.String("now", now.UTC().Format(time.RFC3339))))
	defer span.End()

	start := r.now()
	res, err := fn(ctx, now)
	elapsed := r.now().Sub(start)

	span.SetAttributes(
		attribute.Int("matched", res.Matched),
		attribute.Int("processed", res.Processed),
		attribute.Int("failed", res.Failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	r.metrics.ObserveSweep(name, res.Processed, res.Failed, elapsed, err)

	ev := r.logger.Info()
	if err != nil {
		ev = r.logger.Error().Err(err)
	} else if res.Failed > 0 {
		ev = r.logger.Warn()
	}
	ev.Str("sweep", name).
		Int("matched", res.Matched).
		Int("processed", res.Processed).
		Int("failed", res.Failed).
		Dur("elapsed", elapsed).
		Msg("sweep finished")
	return res, err
}

// RunAll runs every job once. A failing job does not stop the others.
func (r *Runner) RunAll(ctx context.Context, now time.Time) []Report {
	names := r.Names()
	reports := make([]Report, 0, len(names))
	for _, name := range names {
		start := r.now()
		res, err := r.Run(ctx, name, now)
		rep := Report{Name: name, Result: res, Elapsed: r.now().Sub(start)}
		switch {
		case errors.Is(err, ErrSkipped):
			rep.Skipped = true
		case err != nil:
			rep.Error = err.Error()
		}
		reports = append(reports, rep)
	}
	return reports
}

// Start runs all jobs every interval until ctx is cancelled.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	r.logger.Info().Dur("interval", interval).Strs("sweeps", r.Names()).Msg("sweep scheduler started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("sweep scheduler stopped")
			return
		case <-ticker.C:
			r.RunAll(ctx, r.now())
		}
	}
}
