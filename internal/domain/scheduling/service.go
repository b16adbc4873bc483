package scheduling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/appointments/internal/domain/patient"
	"github.com/hospital/appointments/internal/domain/practice"
	"github.com/hospital/appointments/internal/platform/apperr"
	"github.com/hospital/appointments/internal/platform/calendar"
	"github.com/hospital/appointments/internal/platform/db"
	"github.com/hospital/appointments/internal/platform/notification"
	"github.com/hospital/appointments/internal/platform/sequence"
	"github.com/hospital/appointments/internal/platform/telemetry"
)

var (
	// ErrDoctorUnavailable is returned by Confirm when the doctor already has a
	// busy appointment in the conflict window.
	ErrDoctorUnavailable = apperr.Conflict("the doctor already has an appointment scheduled at this time")
	ErrReasonRequired    = apperr.Validation("a cancellation reason is required")
)

// DoctorDirectory resolves doctors and specialties.
type DoctorDirectory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*practice.Doctor, error)
	GetSpecialty(ctx context.Context, id uuid.UUID) (*practice.Specialty, error)
}

type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// CalendarClient mirrors confirmed appointments into the doctors' calendars.
type CalendarClient interface {
	CreateEvent(ctx context.Context, e calendar.Event) (string, error)
	UpdateEvent(ctx context.Context, e calendar.Event) error
	DeleteEvent(ctx context.Context, id string) error
}

type Notifier interface {
	Notify(ctx context.Context, msg notification.Message) error
}

// TaskScheduler puts follow-up items on a user's to-do list.
type TaskScheduler interface {
	ScheduleTask(ctx context.Context, userID string, appointmentID uuid.UUID, note string, due time.Time) error
	CancelForAppointment(ctx context.Context, appointmentID uuid.UUID) (int, error)
}

// Prescriber creates the prescription written during an appointment.
type Prescriber interface {
	CreateFromAppointment(ctx context.Context, appointmentID, patientID, doctorID uuid.UUID) (uuid.UUID, error)
	CountByDoctor(ctx context.Context, doctorID uuid.UUID) (int, error)
}

// Deps wires the scheduling service. Calendar, Notifier, Tasks and
// Prescriber may be nil; Location defaults to UTC.
type Deps struct {
	Schedules    ScheduleRepository
	Appointments AppointmentRepository
	Doctors      DoctorDirectory
	Patients     PatientDirectory
	Sequence     sequence.Generator
	Calendar     CalendarClient
	Notifier     Notifier
	Tasks        TaskScheduler
	Prescriber   Prescriber
	Tx           db.TxManager
	Metrics      *telemetry.Metrics
	Logger       zerolog.Logger
	Location     *time.Location
	// PortalURL prefixes the links put in patient emails.
	PortalURL string
}

type Service struct {
	schedules    ScheduleRepository
	appointments AppointmentRepository
	doctors      DoctorDirectory
	patients     PatientDirectory
	seq          sequence.Generator
	calendar     CalendarClient
	notifier     Notifier
	tasks        TaskScheduler
	prescriber   Prescriber
	tx           db.TxManager
	metrics      *telemetry.Metrics
	logger       zerolog.Logger
	loc          *time.Location
	portalURL    string
	batchSize    int
	now          func() time.Time
}

func NewService(d Deps) *Service {
	if d.Tx == nil {
		d.Tx = db.NoopTxManager{}
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return &Service{
		schedules:    d.Schedules,
		appointments: d.Appointments,
		doctors:      d.Doctors,
		patients:     d.Patients,
		seq:          d.Sequence,
		calendar:     d.Calendar,
		notifier:     d.Notifier,
		tasks:        d.Tasks,
		prescriber:   d.Prescriber,
		tx:           d.Tx,
		metrics:      d.Metrics,
		logger:       d.Logger.With().Str("component", "scheduling").Logger(),
		loc:          d.Location,
		portalURL:    strings.TrimRight(d.PortalURL, "/"),
		batchSize:    sweepBatchSize,
		now:          time.Now,
	}
}

// Location is the clinic time zone used for dates and slot labels.
func (s *Service) Location() *time.Location { return s.loc }

// -- Schedule --

func (s *Service) CreateScheduleEntry(ctx context.Context, e *ScheduleEntry) error {
	if e.SlotDuration == 0 {
		e.SlotDuration = DefaultSlotDuration
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkSchedule(ctx, e); err != nil {
			return err
		}
		return s.schedules.Create(ctx, e)
	})
}

func (s *Service) UpdateScheduleEntry(ctx context.Context, e *ScheduleEntry) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkSchedule(ctx, e); err != nil {
			return err
		}
		return s.schedules.Update(ctx, e)
	})
}

func (s *Service) checkSchedule(ctx context.Context, e *ScheduleEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, err := s.doctors.GetDoctor(ctx, e.DoctorID); err != nil {
		return err
	}
	existing, err := s.schedules.ListByDoctor(ctx, e.DoctorID, true)
	if err != nil {
		return err
	}
	return ValidateScheduleEntry(e, existing)
}

func (s *Service) GetScheduleEntry(ctx context.Context, id uuid.UUID) (*ScheduleEntry, error) {
	return s.schedules.GetByID(ctx, id)
}

func (s *Service) DeleteScheduleEntry(ctx context.Context, id uuid.UUID) error {
	return s.schedules.Delete(ctx, id)
}

func (s *Service) ListSchedule(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]*ScheduleEntry, error) {
	return s.schedules.ListByDoctor(ctx, doctorID, activeOnly)
}

// -- Slots --

// AvailableSlots lists the free slots of doctorID on the calendar day of
// date in the clinic time zone.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, s.loc)

	entries, err := s.schedules.ListByDoctor(ctx, doctorID, true)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []Slot{}, nil
	}

	// Appointments starting up to MaxDuration before midnight can still
	// reach into the day.
	from := day.Add(-hours(MaxDuration))
	to := day.AddDate(0, 0, 1)
	booked, _, err := s.appointments.Search(ctx, AppointmentFilter{
		DoctorID:  &doctorID,
		Statuses:  BookedStatuses,
		StartFrom: &from,
		StartTo:   &to,
		Sort:      SortDateAsc,
	}, 1000, 0)
	if err != nil {
		return nil, err
	}
	slots := ComputeSlots(day, entries, s.now(), booked)
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

// -- Appointment --

// CreateAppointment stores a new draft. Duration defaults to the specialty's
// default duration.
func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	a.Status = StatusDraft
	a.PrescriptionID = nil
	a.CalendarEventID = nil
	a.ConfirmedAt = nil
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkReferences(ctx, a); err != nil {
			return err
		}
		if err := a.ValidateFields(s.now()); err != nil {
			return err
		}
		number, err := sequence.NextNumber(ctx, s.seq, sequence.SeriesAppointment)
		if err != nil {
			return err
		}
		a.Number = number
		a.AccessToken = uuid.NewString()
		return s.appointments.Create(ctx, a)
	})
}

// checkReferences resolves the patient, doctor and specialty, and fills the
// default duration.
func (s *Service) checkReferences(ctx context.Context, a *Appointment) error {
	if _, err := s.patients.GetPatient(ctx, a.PatientID); err != nil {
		return fmt.Errorf("patient: %w", err)
	}
	doc, err := s.doctors.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		return fmt.Errorf("doctor: %w", err)
	}
	sp, err := s.doctors.GetSpecialty(ctx, a.SpecialtyID)
	if err != nil {
		return fmt.Errorf("specialty: %w", err)
	}
	if !doc.Active {
		return apperr.Validation("doctor %s is not active", doc.DisplayName())
	}
	if !doc.Practises(sp.ID) {
		return apperr.Validation("the selected doctor does not practise %s", sp.Name)
	}
	if a.Duration == 0 {
		a.Duration = sp.DefaultDuration
	}
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) SearchAppointments(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.Search(ctx, f, limit, offset)
}

func (s *Service) CountAppointments(ctx context.Context, f AppointmentFilter) (int, error) {
	return s.appointments.Count(ctx, f)
}

// UpdateAppointment saves edits to doctor, specialty, date, duration, reason
// and notes. Lifecycle fields are kept from the stored record. A confirmed
// appointment's calendar event is re-synced after the write.
func (s *Service) UpdateAppointment(ctx context.Context, a *Appointment) error {
	var current *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		current, err = s.appointments.GetByID(ctx, a.ID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return apperr.Transition("cannot edit a %s appointment", current.Status)
		}
		a.Number = current.Number
		a.PatientID = current.PatientID
		a.Status = current.Status
		a.PrescriptionID = current.PrescriptionID
		a.CalendarEventID = current.CalendarEventID
		a.ConfirmedAt = current.ConfirmedAt
		a.CancellationReason = current.CancellationReason
		a.Reminder24hSentAt = current.Reminder24hSentAt
		a.Reminder2hSentAt = current.Reminder2hSentAt
		a.AccessToken = current.AccessToken
		a.CreatedAt = current.CreatedAt

		if err := s.checkReferences(ctx, a); err != nil {
			return err
		}
		if err := a.ValidateFields(s.now()); err != nil {
			return err
		}
		return s.appointments.Update(ctx, a)
	})
	if err != nil {
		return err
	}
	if a.Status == StatusConfirmed && a.CalendarEventID != nil && needsResync(current, a) {
		s.syncCalendarEvent(ctx, a)
	}
	return nil
}

func needsResync(before, after *Appointment) bool {
	return !before.AppointmentDate.Equal(after.AppointmentDate) ||
		before.Duration != after.Duration ||
		before.DoctorID != after.DoctorID ||
		deref(before.Reason) != deref(after.Reason)
}

// DeleteAppointment removes a draft or cancelled appointment.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != StatusDraft && a.Status != StatusCancelled {
		return apperr.Transition("cannot delete a %s appointment: it must be draft or cancelled", a.Status)
	}
	return s.appointments.Delete(ctx, id)
}

// -- Lifecycle --

// Confirm moves a draft to confirmed after re-checking the doctor's
// availability, then creates the calendar event and emails the patient.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var a *Appointment
	var effects []Effect
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.appointments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		next, fx, err := Transition(a.Status, ActionConfirm)
		if err != nil {
			return err
		}
		if err := s.checkAvailability(ctx, a); err != nil {
			return err
		}
		now := s.now()
		a.Status = next
		a.ConfirmedAt = &now
		effects = fx
		return s.appointments.Update(ctx, a)
	})
	s.metrics.ObserveTransition("appointment", string(ActionConfirm), err)
	if err != nil {
		return nil, err
	}
	s.applyEffects(ctx, a, effects)
	return a, nil
}

func (s *Service) checkAvailability(ctx context.Context, a *Appointment) error {
	from := a.AppointmentDate.Add(-ConfirmLeadBuffer)
	to := a.End()
	others, _, err := s.appointments.Search(ctx, AppointmentFilter{
		DoctorID:  &a.DoctorID,
		Statuses:  BusyStatuses,
		StartFrom: &from,
		StartTo:   &to,
		ExcludeID: &a.ID,
	}, 100, 0)
	if err != nil {
		return err
	}
	if c := FindConflict(a, others); c != nil {
		return fmt.Errorf("%w (%s at %s)", ErrDoctorUnavailable, c.Number, c.AppointmentDate.In(s.loc).Format("2006-01-02 15:04"))
	}
	return nil
}

func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.simpleTransition(ctx, id, ActionStart)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.simpleTransition(ctx, id, ActionComplete)
}

func (s *Service) simpleTransition(ctx context.Context, id uuid.UUID, action Action) (*Appointment, error) {
	var a *Appointment
	var effects []Effect
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.appointments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		next, fx, err := Transition(a.Status, action)
		if err != nil {
			return err
		}
		a.Status = next
		effects = fx
		return s.appointments.Update(ctx, a)
	})
	s.metrics.ObserveTransition("appointment", string(action), err)
	if err != nil {
		return nil, err
	}
	s.applyEffects(ctx, a, effects)
	return a, nil
}

// Cancel cancels a draft, confirmed or in-progress appointment. reason must
// not be blank.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return s.cancel(ctx, id, reason)
}

// errStatusChanged is returned by cancel when the appointment left the
// statuses the caller expected between its search and the transaction.
var errStatusChanged = errors.New("appointment status changed")

// cancel loads and cancels the appointment in one transaction. With only
// set, the stored status must be one of them.
func (s *Service) cancel(ctx context.Context, id uuid.UUID, reason string, only ...Status) (*Appointment, error) {
	var a *Appointment
	var effects []Effect
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.appointments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if len(only) > 0 && !statusIn(a.Status, only) {
			return errStatusChanged
		}
		next, fx, err := Transition(a.Status, ActionCancel)
		if err != nil {
			return err
		}
		a.Status = next
		a.CancellationReason = &reason
		effects = fx
		return s.appointments.Update(ctx, a)
	})
	if errors.Is(err, errStatusChanged) {
		return nil, err
	}
	s.metrics.ObserveTransition("appointment", string(ActionCancel), err)
	if err != nil {
		return nil, err
	}
	s.applyEffects(ctx, a, effects)
	return a, nil
}

func statusIn(st Status, set []Status) bool {
	for _, x := range set {
		if x == st {
			return true
		}
	}
	return false
}

// CreatePrescription opens the prescription of an in-progress or done
// appointment. When one is already linked it is returned and created is
// false.
func (s *Service) CreatePrescription(ctx context.Context, id uuid.UUID) (prescriptionID uuid.UUID, created bool, err error) {
	if s.prescriber == nil {
		return uuid.Nil, false, fmt.Errorf("create prescription: no prescriber configured")
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusInProgress && a.Status != StatusDone {
			return apperr.Transition("cannot create a prescription for a %s appointment: it must be in_progress or done", a.Status)
		}
		if a.PrescriptionID != nil {
			prescriptionID = *a.PrescriptionID
			return nil
		}
		pid, err := s.prescriber.CreateFromAppointment(ctx, a.ID, a.PatientID, a.DoctorID)
		if err != nil {
			return err
		}
		a.PrescriptionID = &pid
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		prescriptionID, created = pid, true
		return nil
	})
	s.metrics.ObserveTransition("appointment", "create_prescription", err)
	return prescriptionID, created, err
}

// -- Side effects --

func (s *Service) applyEffects(ctx context.Context, a *Appointment, effects []Effect) {
	for _, fx := range effects {
		switch fx {
		case EffectCreateCalendarEvent:
			s.createCalendarEvent(ctx, a)
		case EffectDeleteCalendarEvent:
			s.deleteCalendarEvent(ctx, a)
		case EffectNotifyConfirmation:
			s.notify(ctx, a, notification.KindAppointmentConfirmation)
		case EffectCancelTasks:
			s.cancelTasks(ctx, a)
		}
	}
}

func (s *Service) buildEvent(ctx context.Context, a *Appointment) (calendar.Event, error) {
	doc, err := s.doctors.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		return calendar.Event{}, err
	}
	pat, err := s.patients.GetPatient(ctx, a.PatientID)
	if err != nil {
		return calendar.Event{}, err
	}
	e := calendar.Event{
		Title:       fmt.Sprintf("Appointment: %s - %s", pat.Name, doc.Name),
		Start:       a.AppointmentDate,
		Stop:        a.End(),
		Description: deref(a.Reason),
		Location:    doc.Room(),
	}
	if u := doc.LinkedUser(); u != "" {
		e.Invitees = []string{u}
	}
	if a.CalendarEventID != nil {
		e.ID = *a.CalendarEventID
	}
	return e, nil
}

func (s *Service) createCalendarEvent(ctx context.Context, a *Appointment) {
	if s.calendar == nil || a.CalendarEventID != nil {
		return
	}
	e, err := s.buildEvent(ctx, a)
	if err == nil {
		var eventID string
		eventID, err = s.calendar.CreateEvent(ctx, e)
		if err == nil {
			a.CalendarEventID = &eventID
			err = s.appointments.Update(ctx, a)
		}
	}
	if err != nil {
		s.logSideEffect(a, "calendar create", err)
	}
}

func (s *Service) syncCalendarEvent(ctx context.Context, a *Appointment) {
	if s.calendar == nil {
		return
	}
	e, err := s.buildEvent(ctx, a)
	if err == nil {
		err = s.calendar.UpdateEvent(ctx, e)
	}
	if err != nil {
		s.logSideEffect(a, "calendar update", err)
	}
}

func (s *Service) deleteCalendarEvent(ctx context.Context, a *Appointment) {
	if a.CalendarEventID == nil {
		return
	}
	if s.calendar != nil {
		if err := s.calendar.DeleteEvent(ctx, *a.CalendarEventID); err != nil && !errors.Is(err, calendar.ErrEventNotFound) {
			s.logSideEffect(a, "calendar delete", err)
		}
	}
	a.CalendarEventID = nil
	if err := s.appointments.Update(ctx, a); err != nil {
		s.logSideEffect(a, "clear calendar reference", err)
	}
}

func (s *Service) cancelTasks(ctx context.Context, a *Appointment) {
	if s.tasks == nil {
		return
	}
	if _, err := s.tasks.CancelForAppointment(ctx, a.ID); err != nil {
		s.logSideEffect(a, "cancel tasks", err)
	}
}

// notify sends kind to the patient. Failures are logged and returned for
// the sweeps' accounting.
func (s *Service) notify(ctx context.Context, a *Appointment, kind notification.Kind) error {
	if s.notifier == nil {
		return nil
	}
	msg, err := s.message(ctx, a, kind)
	if err == nil {
		err = s.notifier.Notify(ctx, msg)
	}
	if err != nil {
		s.logSideEffect(a, "notify "+string(kind), err)
	}
	return err
}

func (s *Service) message(ctx context.Context, a *Appointment, kind notification.Kind) (notification.Message, error) {
	pat, err := s.patients.GetPatient(ctx, a.PatientID)
	if err != nil {
		return notification.Message{}, err
	}
	doc, err := s.doctors.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		return notification.Message{}, err
	}
	specialty := ""
	if sp, err := s.doctors.GetSpecialty(ctx, a.SpecialtyID); err == nil {
		specialty = sp.Name
	}
	return notification.Message{
		Kind:       kind,
		To:         deref(pat.Email),
		ToName:     pat.Name,
		RecordType: "appointment",
		RecordID:   a.ID.String(),
		Data: map[string]string{
			"number":    a.Number,
			"patient":   pat.Name,
			"doctor":    doc.DisplayName(),
			"specialty": specialty,
			"date":      a.AppointmentDate.In(s.loc).Format("2006-01-02 15:04"),
			"room":      doc.Room(),
			"duration":  durationLabel(a.Duration),
			"link":      fmt.Sprintf("%s/portal/appointments/%s?access_token=%s", s.portalURL, a.ID, a.AccessToken),
		},
	}, nil
}

func (s *Service) logSideEffect(a *Appointment, what string, err error) {
	s.logger.Warn().Err(err).
		Str("appointment_id", a.ID.String()).
		Str("number", a.Number).
		Msgf("%s failed", what)
}

// -- Stats --

// DoctorStats counts today's confirmed or in-progress appointments, the
// pending drafts and the prescriptions written by the doctor.
func (s *Service) DoctorStats(ctx context.Context, doctorID uuid.UUID) (*DoctorStats, error) {
	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	y, m, d := s.now().In(s.loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)

	today, err := s.appointments.Count(ctx, AppointmentFilter{
		DoctorID: &doctorID, Statuses: BusyStatuses, StartFrom: &start, StartTo: &end,
	})
	if err != nil {
		return nil, err
	}
	pending, err := s.appointments.Count(ctx, AppointmentFilter{
		DoctorID: &doctorID, Statuses: []Status{StatusDraft},
	})
	if err != nil {
		return nil, err
	}
	stats := &DoctorStats{DoctorID: doctorID, TodayCount: today, PendingCount: pending}
	if s.prescriber != nil {
		if stats.PrescriptionCount, err = s.prescriber.CountByDoctor(ctx, doctorID); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// durationLabel renders fractional hours as "30 min", "1 h" or "1 h 30 min".
func durationLabel(h float64) string {
	mins := int(math.Round(h * 60))
	switch {
	case mins < 60:
		return fmt.Sprintf("%d min", mins)
	case mins%60 == 0:
		return fmt.Sprintf("%d h", mins/60)
	default:
		return fmt.Sprintf("%d h %d min", mins/60, mins%60)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
