package prescription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/hospital/appointments/internal/platform/apperr"
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

var rxColumns = []string{"id", "number", "patient_id", "doctor_id", "appointment_id", "issue_date",
	"validity_days", "expiry_date", "status", "diagnosis", "general_instructions", "notes",
	"access_token", "created_at", "updated_at"}

var lineColumns = []string{"id", "prescription_id", "sequence", "medication_id", "quantity", "dosage",
	"frequency", "duration", "instructions"}

func TestRepoPG_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewRepoPG(mock)
	issued := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	now := time.Now()

	p := &Prescription{
		Number: "RX-00001", PatientID: uuid.New(), DoctorID: uuid.New(), IssueDate: issued,
		ValidityDays: 30, ExpiryDate: issued.AddDate(0, 0, 30), Status: StatusDraft, AccessToken: "tok",
	}
	mock.ExpectQuery("INSERT INTO prescription").
		WithArgs(pgxmock.AnyArg(), "RX-00001", p.PatientID, p.DoctorID, p.AppointmentID, issued,
			30, p.ExpiryDate, StatusDraft, p.Diagnosis, p.GeneralInstructions, p.Notes, "tok").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil || !p.CreatedAt.Equal(now) {
		t.Errorf("unexpected prescription %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepoPG_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewRepoPG(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM prescription p WHERE p.id").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	if !apperr.Is(err, apperr.KindNotFound) || err.Error() != "prescription not found" {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepoPG_Search(t *testing.T) {
	mock := newMock(t)
	repo := NewRepoPG(mock)
	pat := uuid.New()
	cutoff := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	now := time.Now()

	f := Filter{PatientID: &pat, Statuses: []Status{StatusIssued}, ExpiresBefore: &cutoff, Sort: SortNumber}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM prescription p WHERE 1=1 AND p.patient_id = \\$1 AND p.status = ANY\\(\\$2\\) AND p.expiry_date < \\$3").
		WithArgs(pat, []string{"issued"}, cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("ORDER BY p.number DESC LIMIT \\$4 OFFSET \\$5").
		WithArgs(pat, []string{"issued"}, cutoff, 20, 0).
		WillReturnRows(pgxmock.NewRows(rxColumns).AddRow(
			uuid.New(), "RX-00003", pat, uuid.New(), nil, cutoff.AddDate(0, 0, -31),
			30, cutoff.AddDate(0, 0, -1), StatusIssued, nil, nil, nil,
			"tok", now, now))

	items, total, err := repo.Search(context.Background(), f, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Number != "RX-00003" || items[0].Status != StatusIssued {
		t.Errorf("unexpected result total=%d items=%+v", total, items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepoPG_GetLines(t *testing.T) {
	mock := newMock(t)
	repo := NewRepoPG(mock)
	rx := uuid.New()
	dosage := "1 tablet"

	mock.ExpectQuery("SELECT .+ FROM prescription_line WHERE prescription_id = \\$1 ORDER BY sequence, id").
		WithArgs(rx).
		WillReturnRows(pgxmock.NewRows(lineColumns).
			AddRow(uuid.New(), rx, 10, uuid.New(), 2.0, &dosage, nil, nil, nil).
			AddRow(uuid.New(), rx, 20, uuid.New(), 1.0, nil, nil, nil, nil))

	lines, err := repo.GetLines(context.Background(), rx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 || lines[0].Quantity != 2 || lines[0].Dosage == nil || *lines[0].Dosage != dosage {
		t.Errorf("unexpected lines %+v", lines)
	}
}

func TestRepoPG_UpdateLine_Missing(t *testing.T) {
	mock := newMock(t)
	repo := NewRepoPG(mock)
	l := &Line{ID: uuid.New(), Sequence: 10, MedicationID: uuid.New(), Quantity: 1}

	mock.ExpectExec("UPDATE prescription_line").
		WithArgs(l.ID, 10, l.MedicationID, 1.0, l.Dosage, l.Frequency, l.Duration, l.Instructions).
		WillReturnResult(pgconn.NewCommandTag("UPDATE 0"))

	if err := repo.UpdateLine(context.Background(), l); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderBy(t *testing.T) {
	tests := map[string]string{
		"":           " ORDER BY p.issue_date DESC, p.number DESC",
		SortDateDesc: " ORDER BY p.issue_date DESC, p.number DESC",
		SortNumber:   " ORDER BY p.number DESC",
		"1; --":      " ORDER BY p.issue_date DESC, p.number DESC",
	}
	for in, want := range tests {
		if got := orderBy(in); got != want {
			t.Errorf("orderBy(%q) = %q, want %q", in, got, want)
		}
	}
}
