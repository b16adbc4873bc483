package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		series string
		n      int64
		want   string
	}{
		{SeriesAppointment, 1, "APT-00001"},
		{SeriesPrescription, 42, "RX-00042"},
		{SeriesAppointment, 123456, "APT-123456"},
		{"invoice", 7, "invoice-00007"},
	}
	for _, tt := range tests {
		if got := Format(tt.series, tt.n); got != tt.want {
			t.Errorf("Format(%s, %d) = %q, want %q", tt.series, tt.n, got, tt.want)
		}
	}
}

func TestMemoryGenerator_Concurrent(t *testing.T) {
	g := NewMemoryGenerator()
	var wg sync.WaitGroup
	seen := make(chan int64, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, _ := g.Next(context.Background(), SeriesAppointment)
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int64]bool{}
	for n := range seen {
		unique[n] = true
	}
	if len(unique) != 50 {
		t.Errorf("expected 50 unique numbers, got %d", len(unique))
	}
	if n, _ := g.Next(context.Background(), SeriesPrescription); n != 1 {
		t.Errorf("series must be independent, got %d", n)
	}
}

func TestRedisGenerator(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	g := NewRedisGenerator(client)

	ctx := context.Background()
	var last int64
	for i := 0; i < 3; i++ {
		n, err := g.Next(ctx, SeriesPrescription)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if n <= last {
			t.Fatalf("expected strictly increasing numbers, got %d after %d", n, last)
		}
		last = n
	}

	got, err := NextNumber(ctx, g, SeriesAppointment)
	if err != nil {
		t.Fatalf("NextNumber failed: %v", err)
	}
	if got != "APT-00001" {
		t.Errorf("expected APT-00001, got %s", got)
	}
	if v, _ := mr.Get("sequence:prescription"); v != "3" {
		t.Errorf("expected counter 3 in redis, got %q", v)
	}
}

func TestPGGenerator(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO document_sequence").
		WithArgs(SeriesAppointment).
		WillReturnRows(pgxmock.NewRows([]string{"last_value"}).AddRow(int64(7)))

	got, err := NextNumber(context.Background(), NewPGGenerator(mock), SeriesAppointment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "APT-00007" {
		t.Errorf("expected APT-00007, got %s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPGGenerator_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO document_sequence").
		WithArgs(SeriesPrescription).
		WillReturnError(errors.New("relation does not exist"))

	if _, err := NewPGGenerator(mock).Next(context.Background(), SeriesPrescription); err == nil {
		t.Fatal("expected error")
	}
}
