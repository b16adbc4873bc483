package prescription

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/appointments/internal/domain/medication"
	"github.com/hospital/appointments/internal/domain/patient"
	"github.com/hospital/appointments/internal/domain/practice"
	"github.com/hospital/appointments/internal/platform/apperr"
	"github.com/hospital/appointments/internal/platform/notification"
	"github.com/hospital/appointments/internal/platform/sequence"
)

type mockRepo struct {
	items      map[uuid.UUID]*Prescription
	lines      map[uuid.UUID]*Line
	failUpdate map[uuid.UUID]error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items:      make(map[uuid.UUID]*Prescription),
		lines:      make(map[uuid.UUID]*Line),
		failUpdate: make(map[uuid.UUID]error),
	}
}

func (m *mockRepo) Create(_ context.Context, p *Prescription) error {
	p.ID = uuid.New()
	cp := *p
	cp.Lines = nil
	m.items[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("prescription not found")
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, p *Prescription) error {
	if err := m.failUpdate[p.ID]; err != nil {
		return err
	}
	if _, ok := m.items[p.ID]; !ok {
		return apperr.NotFound("prescription not found")
	}
	cp := *p
	cp.Lines = nil
	m.items[p.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	for lid, l := range m.lines {
		if l.PrescriptionID == id {
			delete(m.lines, lid)
		}
	}
	return nil
}

func (m *mockRepo) match(f Filter) []*Prescription {
	var out []*Prescription
	for _, p := range m.items {
		if f.PatientID != nil && p.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && p.DoctorID != *f.DoctorID {
			continue
		}
		if f.AppointmentID != nil && (p.AppointmentID == nil || *p.AppointmentID != *f.AppointmentID) {
			continue
		}
		if len(f.Statuses) > 0 {
			found := false
			for _, s := range f.Statuses {
				found = found || p.Status == s
			}
			if !found {
				continue
			}
		}
		if f.ExpiresBefore != nil && !civilDate(p.ExpiryDate).Before(civilDate(*f.ExpiresBefore)) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (m *mockRepo) Search(_ context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	all := m.match(f)
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) Count(_ context.Context, f Filter) (int, error) {
	return len(m.match(f)), nil
}

func (m *mockRepo) AddLine(_ context.Context, l *Line) error {
	l.ID = uuid.New()
	cp := *l
	m.lines[l.ID] = &cp
	return nil
}

func (m *mockRepo) GetLine(_ context.Context, id uuid.UUID) (*Line, error) {
	l, ok := m.lines[id]
	if !ok {
		return nil, apperr.NotFound("prescription line not found")
	}
	cp := *l
	return &cp, nil
}

func (m *mockRepo) UpdateLine(_ context.Context, l *Line) error {
	if _, ok := m.lines[l.ID]; !ok {
		return apperr.NotFound("prescription line not found")
	}
	cp := *l
	m.lines[l.ID] = &cp
	return nil
}

func (m *mockRepo) DeleteLine(_ context.Context, id uuid.UUID) error {
	delete(m.lines, id)
	return nil
}

func (m *mockRepo) GetLines(_ context.Context, prescriptionID uuid.UUID) ([]*Line, error) {
	var out []*Line
	for _, l := range m.lines {
		if l.PrescriptionID == prescriptionID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

type mockDirectory struct {
	doctors  map[uuid.UUID]*practice.Doctor
	patients map[uuid.UUID]*patient.Patient
}

func (m *mockDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*practice.Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor not found")
	}
	return d, nil
}

func (m *mockDirectory) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient not found")
	}
	return p, nil
}

type mockPharmacy struct {
	meds map[uuid.UUID]*medication.Medication
}

func (m *mockPharmacy) GetMedication(_ context.Context, id uuid.UUID) (*medication.Medication, error) {
	med, ok := m.meds[id]
	if !ok {
		return nil, apperr.NotFound("medication not found")
	}
	return med, nil
}

func (m *mockPharmacy) CheckStock(ctx context.Context, reqs []medication.StockRequest) ([]medication.StockWarning, error) {
	var out []medication.StockWarning
	for _, r := range reqs {
		med, err := m.GetMedication(ctx, r.MedicationID)
		if err != nil {
			return nil, err
		}
		if med.Shortfall(r.Quantity) > 0 {
			out = append(out, medication.StockWarning{MedicationID: med.ID, Name: med.DisplayName(), Available: med.QtyAvailable, Requested: r.Quantity})
		}
	}
	return out, nil
}

type recordingNotifier struct {
	sent []notification.Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg notification.Message) error {
	n.sent = append(n.sent, msg)
	return nil
}

var fixedNow = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	repo     *mockRepo
	notifier *recordingNotifier
	doctor   *practice.Doctor
	patient  *patient.Patient
	amox     *medication.Medication
	insulin  *medication.Medication
}

func strPtr(s string) *string { return &s }

func newFixture() *fixture {
	doc := &practice.Doctor{ID: uuid.New(), Name: "Lisa Cuddy", Active: true}
	pat := &patient.Patient{ID: uuid.New(), Name: "John Doe", Email: strPtr("john@example.com")}
	amox := &medication.Medication{ID: uuid.New(), Name: "Amoxicillin", Concentration: strPtr("500mg"), QtyAvailable: 40}
	insulin := &medication.Medication{ID: uuid.New(), Name: "Insulin", QtyAvailable: 1}

	f := &fixture{
		repo:     newMockRepo(),
		notifier: &recordingNotifier{},
		doctor:   doc,
		patient:  pat,
		amox:     amox,
		insulin:  insulin,
	}
	dir := &mockDirectory{
		doctors:  map[uuid.UUID]*practice.Doctor{doc.ID: doc},
		patients: map[uuid.UUID]*patient.Patient{pat.ID: pat},
	}
	f.svc = NewService(Deps{
		Repo:      f.repo,
		Doctors:   dir,
		Patients:  dir,
		Pharmacy:  &mockPharmacy{meds: map[uuid.UUID]*medication.Medication{amox.ID: amox, insulin.ID: insulin}},
		Sequence:  sequence.NewMemoryGenerator(),
		Notifier:  f.notifier,
		Logger:    zerolog.Nop(),
		PortalURL: "https://clinic.example.com",
	})
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) draft(t *testing.T, lines ...*Line) *Prescription {
	t.Helper()
	p := &Prescription{PatientID: f.patient.ID, DoctorID: f.doctor.ID, Lines: lines}
	if err := f.svc.CreatePrescription(context.Background(), p); err != nil {
		t.Fatalf("create prescription: %v", err)
	}
	return p
}

func TestService_CreatePrescription_Defaults(t *testing.T) {
	f := newFixture()
	p := f.draft(t, &Line{MedicationID: f.amox.ID, Quantity: 2})

	if p.Number != "RX-00001" || p.Status != StatusDraft || p.AccessToken == "" {
		t.Errorf("unexpected prescription %+v", p)
	}
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if !p.IssueDate.Equal(today) {
		t.Errorf("expected issue date %v, got %v", today, p.IssueDate)
	}
	if p.ValidityDays != DefaultValidityDays || !p.ExpiryDate.Equal(today.AddDate(0, 0, 30)) {
		t.Errorf("unexpected validity %d / expiry %v", p.ValidityDays, p.ExpiryDate)
	}
	got, err := f.svc.GetPrescription(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Lines) != 1 || got.Lines[0].Sequence != DefaultLineSequence {
		t.Errorf("expected one line with default sequence, got %+v", got.Lines)
	}
}

func TestService_CreatePrescription_Rejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name string
		p    *Prescription
		kind apperr.Kind
	}{
		{"validity too long", &Prescription{PatientID: f.patient.ID, DoctorID: f.doctor.ID, ValidityDays: 366}, apperr.KindValidation},
		{"negative validity", &Prescription{PatientID: f.patient.ID, DoctorID: f.doctor.ID, ValidityDays: -1}, apperr.KindValidation},
		{"unknown doctor", &Prescription{PatientID: f.patient.ID, DoctorID: uuid.New()}, apperr.KindNotFound},
		{"zero quantity line", &Prescription{PatientID: f.patient.ID, DoctorID: f.doctor.ID,
			Lines: []*Line{{MedicationID: f.amox.ID}}}, apperr.KindValidation},
		{"unknown medication", &Prescription{PatientID: f.patient.ID, DoctorID: f.doctor.ID,
			Lines: []*Line{{MedicationID: uuid.New(), Quantity: 1}}}, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.svc.CreatePrescription(ctx, tt.p); !apperr.Is(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestService_CreateFromAppointment(t *testing.T) {
	f := newFixture()
	apptID := uuid.New()
	id, err := f.svc.CreateFromAppointment(context.Background(), apptID, f.patient.ID, f.doctor.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := f.repo.items[id]
	if p == nil || p.AppointmentID == nil || *p.AppointmentID != apptID || p.Status != StatusDraft {
		t.Errorf("unexpected prescription %+v", p)
	}
	n, _ := f.svc.CountByDoctor(context.Background(), f.doctor.ID)
	if n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}
}

func TestService_UpdatePrescription_RecomputesExpiry(t *testing.T) {
	f := newFixture()
	p := f.draft(t)

	edit := &Prescription{
		ID: p.ID, PatientID: uuid.New(), DoctorID: f.doctor.ID,
		IssueDate: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), ValidityDays: 10,
		ExpiryDate: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), Status: StatusDispensed,
	}
	if err := f.svc.UpdatePrescription(context.Background(), edit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored := f.repo.items[p.ID]
	if !stored.ExpiryDate.Equal(time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected derived expiry, got %v", stored.ExpiryDate)
	}
	if stored.Status != StatusDraft || stored.PatientID != f.patient.ID || stored.Number != p.Number {
		t.Errorf("protected fields changed: %+v", stored)
	}
}

func TestService_EditsAfterIssueRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.draft(t, &Line{MedicationID: f.amox.ID, Quantity: 1})
	if _, _, err := f.svc.Issue(ctx, p.ID); err != nil {
		t.Fatalf("issue: %v", err)
	}

	edit := &Prescription{ID: p.ID, DoctorID: f.doctor.ID, ValidityDays: 10}
	if err := f.svc.UpdatePrescription(ctx, edit); !apperr.Is(err, apperr.KindStateTransition) {
		t.Errorf("update: expected transition error, got %v", err)
	}
	if err := f.svc.AddLine(ctx, p.ID, &Line{MedicationID: f.amox.ID, Quantity: 1}); !apperr.Is(err, apperr.KindStateTransition) {
		t.Errorf("add line: expected transition error, got %v", err)
	}
	lines, _ := f.repo.GetLines(ctx, p.ID)
	if err := f.svc.RemoveLine(ctx, lines[0].ID); !apperr.Is(err, apperr.KindStateTransition) {
		t.Errorf("remove line: expected transition error, got %v", err)
	}
	if err := f.svc.DeletePrescription(ctx, p.ID); !apperr.Is(err, apperr.KindStateTransition) {
		t.Errorf("delete: expected transition error, got %v", err)
	}
}

func TestService_LineCRUD(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.draft(t)

	l := &Line{MedicationID: f.amox.ID, Quantity: 3, Dosage: strPtr("1 capsule")}
	if err := f.svc.AddLine(ctx, p.ID, l); err != nil {
		t.Fatalf("add: %v", err)
	}
	l.Quantity = 6
	l.Sequence = 0
	if err := f.svc.UpdateLine(ctx, l); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := f.repo.GetLine(ctx, l.ID)
	if got.Quantity != 6 || got.Sequence != DefaultLineSequence || got.PrescriptionID != p.ID {
		t.Errorf("unexpected line %+v", got)
	}
	if err := f.svc.RemoveLine(ctx, l.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := f.repo.GetLine(ctx, l.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Error("expected line removed")
	}
}

func TestService_Issue(t *testing.T) {
	f := newFixture()
	p := f.draft(t,
		&Line{MedicationID: f.amox.ID, Quantity: 2, Dosage: strPtr("1 capsule"), Frequency: strPtr("every 8 hours")},
		&Line{MedicationID: f.insulin.ID, Quantity: 5, Sequence: 20},
	)

	got, warnings, err := f.svc.Issue(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusIssued || f.repo.items[p.ID].Status != StatusIssued {
		t.Errorf("expected issued, got %s", got.Status)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 stock warning, got %+v", warnings)
	}
	if want := "Insulin has insufficient stock. Available: 1.00 Requested: 5.00"; warnings[0].String() != want {
		t.Errorf("expected %q, got %q", want, warnings[0].String())
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.notifier.sent))
	}
	msg := f.notifier.sent[0]
	if msg.Kind != notification.KindPrescriptionIssued || msg.To != "john@example.com" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Data["doctor"] != "Dr. Lisa Cuddy" || msg.Data["expiry_date"] != "2026-04-09" {
		t.Errorf("unexpected data %v", msg.Data)
	}
	wantLines := "- Amoxicillin 500mg x 2: 1 capsule, every 8 hours\n- Insulin x 5"
	if msg.Data["lines"] != wantLines {
		t.Errorf("expected lines %q, got %q", wantLines, msg.Data["lines"])
	}
	if !strings.HasSuffix(msg.Data["link"], "/portal/prescriptions/"+p.ID.String()+"?access_token="+p.AccessToken) {
		t.Errorf("unexpected link %s", msg.Data["link"])
	}
}

func TestService_Issue_Rejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	empty := f.draft(t)
	if _, _, err := f.svc.Issue(ctx, empty.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty prescription, got %v", err)
	}

	p := f.draft(t, &Line{MedicationID: f.amox.ID, Quantity: 1})
	_, _, _ = f.svc.Issue(ctx, p.ID)
	_, _, err := f.svc.Issue(ctx, p.ID)
	if !apperr.Is(err, apperr.KindStateTransition) {
		t.Fatalf("expected transition error, got %v", err)
	}
	if err.Error() != "cannot issue a issued prescription: it must be draft" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("expected a single notification, got %d", len(f.notifier.sent))
	}
}

func TestService_Dispense(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.draft(t, &Line{MedicationID: f.amox.ID, Quantity: 1})

	if _, err := f.svc.Dispense(ctx, p.ID); !apperr.Is(err, apperr.KindStateTransition) {
		t.Fatalf("expected transition error dispensing a draft, got %v", err)
	}
	_, _, _ = f.svc.Issue(ctx, p.ID)
	got, err := f.svc.Dispense(ctx, p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusDispensed {
		t.Errorf("expected dispensed, got %s", got.Status)
	}
}

func TestService_Dispense_Expired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := &Prescription{PatientID: f.patient.ID, DoctorID: f.doctor.ID, IssueDate: fixedNow.AddDate(0, 0, -40),
		Lines: []*Line{{MedicationID: f.amox.ID, Quantity: 1}}}
	if err := f.svc.CreatePrescription(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _, _ = f.svc.Issue(ctx, p.ID)

	_, err := f.svc.Dispense(ctx, p.ID)
	if !errors.Is(err, ErrPrescriptionExpired) {
		t.Fatalf("expected ErrPrescriptionExpired, got %v", err)
	}
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict kind, got %s", apperr.KindOf(err))
	}
	if f.repo.items[p.ID].Status != StatusIssued {
		t.Error("expected status unchanged")
	}
}

func TestService_Dispense_OnExpiryDay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := &Prescription{PatientID: f.patient.ID, DoctorID: f.doctor.ID, IssueDate: fixedNow.AddDate(0, 0, -30),
		Lines: []*Line{{MedicationID: f.amox.ID, Quantity: 1}}}
	_ = f.svc.CreatePrescription(ctx, p)
	_, _, _ = f.svc.Issue(ctx, p.ID)
	if _, err := f.svc.Dispense(ctx, p.ID); err != nil {
		t.Fatalf("the expiry day itself is still valid: %v", err)
	}
}

func TestService_Dispense_ClinicWestOfUTC(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	lima := time.FixedZone("PET", -5*60*60)
	f.svc.loc = lima

	// DATE columns come back from pgx as midnight UTC.
	stored := func() *Prescription {
		p := &Prescription{ID: uuid.New(), PatientID: f.patient.ID, DoctorID: f.doctor.ID,
			IssueDate: time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC), ValidityDays: 30,
			ExpiryDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), Status: StatusIssued}
		f.repo.items[p.ID] = p
		return p
	}

	tests := []struct {
		name    string
		now     time.Time
		expired bool
	}{
		{"expiry day noon", time.Date(2026, 3, 10, 12, 0, 0, 0, lima), false},
		{"expiry day late evening", time.Date(2026, 3, 10, 23, 30, 0, 0, lima), false},
		{"day after", time.Date(2026, 3, 11, 0, 30, 0, 0, lima), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.svc.now = func() time.Time { return tt.now }
			p := stored()
			_, err := f.svc.Dispense(ctx, p.ID)
			if tt.expired != errors.Is(err, ErrPrescriptionExpired) {
				t.Fatalf("expired=%v, got %v", tt.expired, err)
			}
			if !tt.expired && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestExpireOverdue_Pages(t *testing.T) {
	f := newFixture()
	f.svc.batchSize = 2
	ctx := context.Background()
	var all []*Prescription
	for i := 0; i < 5; i++ {
		p := &Prescription{PatientID: f.patient.ID, DoctorID: f.doctor.ID, IssueDate: fixedNow.AddDate(0, 0, -40-i),
			Lines: []*Line{{MedicationID: f.amox.ID, Quantity: 1}}}
		_ = f.svc.CreatePrescription(ctx, p)
		_, _, _ = f.svc.Issue(ctx, p.ID)
		all = append(all, p)
	}
	// RX-00001 sorts first and keeps failing.
	f.repo.failUpdate[all[0].ID] = errors.New("connection reset")

	res, err := f.svc.ExpireOverdue(ctx, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched != 5 || res.Processed != 4 || res.Failed != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	for _, p := range all[1:] {
		if f.repo.items[p.ID].Status != StatusExpired {
			t.Errorf("expected %s expired", p.Number)
		}
	}
}

func TestExpireOverdue_ClinicWestOfUTC(t *testing.T) {
	f := newFixture()
	lima := time.FixedZone("PET", -5*60*60)
	f.svc.loc = lima
	p := &Prescription{ID: uuid.New(), PatientID: f.patient.ID, DoctorID: f.doctor.ID,
		IssueDate: time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC), ValidityDays: 30,
		ExpiryDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), Status: StatusIssued}
	f.repo.items[p.ID] = p

	res, err := f.svc.ExpireOverdue(context.Background(), time.Date(2026, 3, 10, 23, 30, 0, 0, lima))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched != 0 || f.repo.items[p.ID].Status != StatusIssued {
		t.Errorf("expected the prescription to stay issued on its expiry day, got %+v", res)
	}

	res, _ = f.svc.ExpireOverdue(context.Background(), time.Date(2026, 3, 11, 0, 30, 0, 0, lima))
	if res.Processed != 1 || f.repo.items[p.ID].Status != StatusExpired {
		t.Errorf("expected the prescription expired the next day, got %+v", res)
	}
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	issue := func(issued time.Time) *Prescription {
		p := &Prescription{PatientID: f.patient.ID, DoctorID: f.doctor.ID, IssueDate: issued,
			Lines: []*Line{{MedicationID: f.amox.ID, Quantity: 1}}}
		_ = f.svc.CreatePrescription(ctx, p)
		_, _, _ = f.svc.Issue(ctx, p.ID)
		return p
	}
	overdue := issue(fixedNow.AddDate(0, 0, -31))
	broken := issue(fixedNow.AddDate(0, 0, -45))
	onTime := issue(fixedNow.AddDate(0, 0, -30))
	draft := &Prescription{PatientID: f.patient.ID, DoctorID: f.doctor.ID, IssueDate: fixedNow.AddDate(0, 0, -60)}
	_ = f.svc.CreatePrescription(ctx, draft)
	f.repo.failUpdate[broken.ID] = errors.New("connection reset")

	res, err := f.svc.ExpireOverdue(ctx, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched != 2 || res.Processed != 1 || res.Failed != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if f.repo.items[overdue.ID].Status != StatusExpired {
		t.Error("expected overdue prescription expired")
	}
	if f.repo.items[onTime.ID].Status != StatusIssued {
		t.Error("prescription expiring today must stay issued")
	}
	if f.repo.items[draft.ID].Status != StatusDraft {
		t.Error("draft must not be touched")
	}

	delete(f.repo.failUpdate, broken.ID)
	res, _ = f.svc.ExpireOverdue(ctx, fixedNow)
	if res.Matched != 1 || res.Processed != 1 {
		t.Errorf("expected the failed record to be retried, got %+v", res)
	}
}
