package prescription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/appointments/internal/domain/medication"
	"github.com/hospital/appointments/internal/domain/patient"
	"github.com/hospital/appointments/internal/domain/practice"
	"github.com/hospital/appointments/internal/platform/apperr"
	"github.com/hospital/appointments/internal/platform/db"
	"github.com/hospital/appointments/internal/platform/notification"
	"github.com/hospital/appointments/internal/platform/sequence"
	"github.com/hospital/appointments/internal/platform/telemetry"
)

// ErrPrescriptionExpired is returned by Dispense once the expiry date has
// passed.
var ErrPrescriptionExpired = apperr.Conflict("the prescription has expired")

type DoctorDirectory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*practice.Doctor, error)
}

type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Pharmacy resolves medications and reports stock shortfalls.
type Pharmacy interface {
	GetMedication(ctx context.Context, id uuid.UUID) (*medication.Medication, error)
	CheckStock(ctx context.Context, reqs []medication.StockRequest) ([]medication.StockWarning, error)
}

type Notifier interface {
	Notify(ctx context.Context, msg notification.Message) error
}

type Deps struct {
	Repo      Repository
	Doctors   DoctorDirectory
	Patients  PatientDirectory
	Pharmacy  Pharmacy
	Sequence  sequence.Generator
	Notifier  Notifier
	Tx        db.TxManager
	Metrics   *telemetry.Metrics
	Logger    zerolog.Logger
	Location  *time.Location
	PortalURL string
}

type Service struct {
	repo      Repository
	doctors   DoctorDirectory
	patients  PatientDirectory
	pharmacy  Pharmacy
	seq       sequence.Generator
	notifier  Notifier
	tx        db.TxManager
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	loc       *time.Location
	portalURL string
	batchSize int
	now       func() time.Time
}

func NewService(d Deps) *Service {
	if d.Tx == nil {
		d.Tx = db.NoopTxManager{}
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return &Service{
		repo:      d.Repo,
		doctors:   d.Doctors,
		patients:  d.Patients,
		pharmacy:  d.Pharmacy,
		seq:       d.Sequence,
		notifier:  d.Notifier,
		tx:        d.Tx,
		metrics:   d.Metrics,
		logger:    d.Logger.With().Str("component", "prescription").Logger(),
		loc:       d.Location,
		portalURL: strings.TrimRight(d.PortalURL, "/"),
		batchSize: sweepBatchSize,
		now:       time.Now,
	}
}

// today is the current calendar day in the clinic time zone.
func (s *Service) today() time.Time {
	return civilDate(s.now().In(s.loc))
}

// normalize fills defaults and derives the expiry date.
func (s *Service) normalize(p *Prescription) {
	if p.IssueDate.IsZero() {
		p.IssueDate = s.today()
	} else {
		p.IssueDate = civilDate(p.IssueDate)
	}
	if p.ValidityDays == 0 {
		p.ValidityDays = DefaultValidityDays
	}
	p.RecomputeExpiry()
}

// CreatePrescription stores a draft together with any lines it carries.
func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	p.Status = StatusDraft
	s.normalize(p)
	if err := p.Validate(); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetPatient(ctx, p.PatientID); err != nil {
			return fmt.Errorf("patient: %w", err)
		}
		if _, err := s.doctors.GetDoctor(ctx, p.DoctorID); err != nil {
			return fmt.Errorf("doctor: %w", err)
		}
		number, err := sequence.NextNumber(ctx, s.seq, sequence.SeriesPrescription)
		if err != nil {
			return err
		}
		p.Number = number
		p.AccessToken = uuid.NewString()
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		for _, l := range p.Lines {
			l.PrescriptionID = p.ID
			if err := s.addLine(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateFromAppointment opens an empty draft for the appointment's patient
// and doctor.
func (s *Service) CreateFromAppointment(ctx context.Context, appointmentID, patientID, doctorID uuid.UUID) (uuid.UUID, error) {
	p := &Prescription{PatientID: patientID, DoctorID: doctorID, AppointmentID: &appointmentID}
	if err := s.CreatePrescription(ctx, p); err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

// GetPrescription loads a prescription with its lines.
func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Lines, err = s.repo.GetLines(ctx, id); err != nil {
		return nil, err
	}
	if p.Lines == nil {
		p.Lines = []*Line{}
	}
	return p, nil
}

func (s *Service) SearchPrescriptions(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.Search(ctx, f, limit, offset)
}

func (s *Service) CountPrescriptions(ctx context.Context, f Filter) (int, error) {
	return s.repo.Count(ctx, f)
}

func (s *Service) CountByDoctor(ctx context.Context, doctorID uuid.UUID) (int, error) {
	return s.repo.Count(ctx, Filter{DoctorID: &doctorID})
}

// UpdatePrescription saves header edits of a draft. Number, patient,
// appointment and status are kept from the stored record.
func (s *Service) UpdatePrescription(ctx context.Context, p *Prescription) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := requireDraft(current, "edit"); err != nil {
			return err
		}
		p.Number = current.Number
		p.PatientID = current.PatientID
		p.AppointmentID = current.AppointmentID
		p.Status = current.Status
		p.AccessToken = current.AccessToken
		p.CreatedAt = current.CreatedAt
		if p.IssueDate.IsZero() {
			p.IssueDate = current.IssueDate
		}
		s.normalize(p)
		if err := p.Validate(); err != nil {
			return err
		}
		if _, err := s.doctors.GetDoctor(ctx, p.DoctorID); err != nil {
			return fmt.Errorf("doctor: %w", err)
		}
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		p.Lines, err = s.repo.GetLines(ctx, p.ID)
		return err
	})
}

// DeletePrescription removes a draft and its lines.
func (s *Service) DeletePrescription(ctx context.Context, id uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := requireDraft(p, "delete"); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func requireDraft(p *Prescription, verb string) error {
	if p.Status != StatusDraft {
		return apperr.Transition("cannot %s a %s prescription: it must be draft", verb, p.Status)
	}
	return nil
}

// -- Lines --

func (s *Service) AddLine(ctx context.Context, prescriptionID uuid.UUID, l *Line) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, prescriptionID)
		if err != nil {
			return err
		}
		if err := requireDraft(p, "edit"); err != nil {
			return err
		}
		l.PrescriptionID = prescriptionID
		return s.addLine(ctx, l)
	})
}

func (s *Service) addLine(ctx context.Context, l *Line) error {
	if l.Sequence == 0 {
		l.Sequence = DefaultLineSequence
	}
	if err := s.checkLine(ctx, l); err != nil {
		return err
	}
	return s.repo.AddLine(ctx, l)
}

func (s *Service) checkLine(ctx context.Context, l *Line) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if _, err := s.pharmacy.GetMedication(ctx, l.MedicationID); err != nil {
		return fmt.Errorf("medication: %w", err)
	}
	return nil
}

func (s *Service) UpdateLine(ctx context.Context, l *Line) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetLine(ctx, l.ID)
		if err != nil {
			return err
		}
		p, err := s.repo.GetByID(ctx, current.PrescriptionID)
		if err != nil {
			return err
		}
		if err := requireDraft(p, "edit"); err != nil {
			return err
		}
		l.PrescriptionID = current.PrescriptionID
		if l.Sequence == 0 {
			l.Sequence = current.Sequence
		}
		if err := s.checkLine(ctx, l); err != nil {
			return err
		}
		return s.repo.UpdateLine(ctx, l)
	})
}

func (s *Service) RemoveLine(ctx context.Context, lineID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		l, err := s.repo.GetLine(ctx, lineID)
		if err != nil {
			return err
		}
		p, err := s.repo.GetByID(ctx, l.PrescriptionID)
		if err != nil {
			return err
		}
		if err := requireDraft(p, "edit"); err != nil {
			return err
		}
		return s.repo.DeleteLine(ctx, lineID)
	})
}

// -- Lifecycle --

// Issue moves a draft with at least one line to issued. Lines asking for more
// than the available stock come back as warnings; they do not block.
func (s *Service) Issue(ctx context.Context, id uuid.UUID) (*Prescription, []medication.StockWarning, error) {
	var p *Prescription
	var warnings []medication.StockWarning
	var effects []Effect
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.GetPrescription(ctx, id)
		if err != nil {
			return err
		}
		next, fx, err := Transition(p.Status, ActionIssue)
		if err != nil {
			return err
		}
		if len(p.Lines) == 0 {
			return apperr.Validation("add at least one medication before issuing the prescription")
		}
		reqs := make([]medication.StockRequest, len(p.Lines))
		for i, l := range p.Lines {
			reqs[i] = medication.StockRequest{MedicationID: l.MedicationID, Quantity: l.Quantity}
		}
		if warnings, err = s.pharmacy.CheckStock(ctx, reqs); err != nil {
			return err
		}
		p.Status = next
		effects = fx
		return s.repo.Update(ctx, p)
	})
	s.metrics.ObserveTransition("prescription", string(ActionIssue), err)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range warnings {
		s.logger.Warn().Str("prescription_id", p.ID.String()).Str("medication_id", w.MedicationID.String()).
			Msg(w.String())
	}
	for _, fx := range effects {
		if fx == EffectNotifyIssued {
			s.notifyIssued(ctx, p)
		}
	}
	return p, warnings, nil
}

// Dispense marks an issued prescription as handed out. An expired one is
// refused with ErrPrescriptionExpired.
func (s *Service) Dispense(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	var p *Prescription
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		next, _, err := Transition(p.Status, ActionDispense)
		if err != nil {
			return err
		}
		if p.ExpiredOn(s.today()) {
			return fmt.Errorf("%w on %s", ErrPrescriptionExpired, p.ExpiryDate.Format("2006-01-02"))
		}
		p.Status = next
		return s.repo.Update(ctx, p)
	})
	s.metrics.ObserveTransition("prescription", string(ActionDispense), err)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) notifyIssued(ctx context.Context, p *Prescription) {
	if s.notifier == nil {
		return
	}
	msg, err := s.message(ctx, p)
	if err == nil {
		err = s.notifier.Notify(ctx, msg)
	}
	if err != nil {
		s.logger.Warn().Err(err).
			Str("prescription_id", p.ID.String()).
			Str("number", p.Number).
			Msg("issue notification failed")
	}
}

func (s *Service) message(ctx context.Context, p *Prescription) (notification.Message, error) {
	pat, err := s.patients.GetPatient(ctx, p.PatientID)
	if err != nil {
		return notification.Message{}, err
	}
	doc, err := s.doctors.GetDoctor(ctx, p.DoctorID)
	if err != nil {
		return notification.Message{}, err
	}
	to := ""
	if pat.Email != nil {
		to = *pat.Email
	}
	return notification.Message{
		Kind:       notification.KindPrescriptionIssued,
		To:         to,
		ToName:     pat.Name,
		RecordType: "prescription",
		RecordID:   p.ID.String(),
		Data: map[string]string{
			"number":      p.Number,
			"patient":     pat.Name,
			"doctor":      doc.DisplayName(),
			"issue_date":  p.IssueDate.Format("2006-01-02"),
			"expiry_date": p.ExpiryDate.Format("2006-01-02"),
			"lines":       s.renderLines(ctx, p.Lines),
			"link":        fmt.Sprintf("%s/portal/prescriptions/%s?access_token=%s", s.portalURL, p.ID, p.AccessToken),
		},
	}, nil
}

// renderLines lists one medication per line, e.g.
// "- Amoxicillin 500mg x 2: 1 capsule, every 8 hours, 7 days".
func (s *Service) renderLines(ctx context.Context, lines []*Line) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		name := l.MedicationID.String()
		if m, err := s.pharmacy.GetMedication(ctx, l.MedicationID); err == nil {
			name = m.DisplayName()
		}
		fmt.Fprintf(&b, "- %s x %g", name, l.Quantity)
		var parts []string
		for _, v := range []*string{l.Dosage, l.Frequency, l.Duration} {
			if v != nil && *v != "" {
				parts = append(parts, *v)
			}
		}
		if len(parts) > 0 {
			b.WriteString(": " + strings.Join(parts, ", "))
		}
	}
	return b.String()
}
