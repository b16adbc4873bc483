// Package sequence hands out per-series document numbers such as APT-00042.
package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hospital/appointments/internal/platform/db"
)

const (
	SeriesAppointment  = "appointment"
	SeriesPrescription = "prescription"
)

var prefixes = map[string]string{
	SeriesAppointment:  "APT",
	SeriesPrescription: "RX",
}

// Generator returns the next value of a series. Values are unique and
// strictly increasing per series; gaps are allowed.
type Generator interface {
	Next(ctx context.Context, series string) (int64, error)
}

// Format renders n with the series prefix and five digit padding.
func Format(series string, n int64) string {
	prefix, ok := prefixes[series]
	if !ok {
		prefix = series
	}
	return fmt.Sprintf("%s-%05d", prefix, n)
}

// NextNumber draws the next value of series and formats it.
func NextNumber(ctx context.Context, g Generator, series string) (string, error) {
	n, err := g.Next(ctx, series)
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", series, err)
	}
	return Format(series, n), nil
}

// PGGenerator keeps counters in the document_sequence table. Inside a
// transaction the increment commits or rolls back with the caller's write.
type PGGenerator struct {
	pool db.Querier
}

func NewPGGenerator(pool db.Querier) *PGGenerator {
	return &PGGenerator{pool: pool}
}

func (g *PGGenerator) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return g.pool
}

func (g *PGGenerator) Next(ctx context.Context, series string) (int64, error) {
	var n int64
	err := g.conn(ctx).QueryRow(ctx, `
		INSERT INTO document_sequence (series, last_value) VALUES ($1, 1)
		ON CONFLICT (series) DO UPDATE SET last_value = document_sequence.last_value + 1
		RETURNING last_value`, series).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", series, err)
	}
	return n, nil
}

// RedisGenerator uses INCR on sequence:<series>. It is not transactional: a
// rolled back write leaves a gap.
type RedisGenerator struct {
	client redis.Cmdable
}

func NewRedisGenerator(client redis.Cmdable) *RedisGenerator {
	return &RedisGenerator{client: client}
}

func (g *RedisGenerator) Next(ctx context.Context, series string) (int64, error) {
	n, err := g.client.Incr(ctx, "sequence:"+series).Result()
	if err != nil {
		return 0, fmt.Errorf("incr sequence %s: %w", series, err)
	}
	return n, nil
}

type MemoryGenerator struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryGenerator() *MemoryGenerator {
	return &MemoryGenerator{counters: make(map[string]int64)}
}

func (g *MemoryGenerator) Next(_ context.Context, series string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[series]++
	return g.counters[series], nil
}
