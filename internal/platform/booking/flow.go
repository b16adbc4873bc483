// Package booking implements the public self-service booking flow: pick a
// specialty, then a doctor, then a free slot, then submit the patient's
// contact details to get a draft appointment.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hospital/appointments/internal/domain/patient"
	"github.com/hospital/appointments/internal/domain/practice"
	"github.com/hospital/appointments/internal/domain/scheduling"
	"github.com/hospital/appointments/internal/platform/apperr"
	"github.com/hospital/appointments/internal/platform/db"
	"github.com/hospital/appointments/internal/platform/telemetry"
	"github.com/hospital/appointments/internal/platform/validation"
)

// Steps, used as metric labels.
const (
	StepSpecialties  = "specialties"
	StepDoctors      = "doctors"
	StepSlots        = "slots"
	StepAppointments = "appointments"
)

// DateTimeLayout is the layout of Request.AppointmentDateTime. RFC 3339 is
// accepted too.
const DateTimeLayout = "2006-01-02 15:04:05"

// Error is what every step returns on failure: a readable message and, for
// request validation, the failing fields.
type Error struct {
	Kind    apperr.Kind             `json:"-"`
	Message string                  `json:"error"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
	Err     error                   `json:"-"`
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// fail turns any error into an *Error. Internal failures keep a generic
// message; the cause is logged by the caller.
func fail(err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.KindInternal {
		msg = "the booking could not be completed, please try again later"
	}
	return &Error{Kind: kind, Message: msg, Fields: validation.FieldsOf(err), Err: err}
}

type Practice interface {
	ListSpecialties(ctx context.Context, activeOnly bool, limit, offset int) ([]*practice.Specialty, int, error)
	GetSpecialty(ctx context.Context, id uuid.UUID) (*practice.Specialty, error)
	ActiveDoctorsFor(ctx context.Context, specialtyID uuid.UUID) ([]*practice.Doctor, error)
}

type Patients interface {
	FindOrCreate(ctx context.Context, cd patient.ContactDetails) (*patient.Patient, bool, error)
}

type Scheduler interface {
	Location() *time.Location
	AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]scheduling.Slot, error)
	CreateAppointment(ctx context.Context, a *scheduling.Appointment) error
}

type Deps struct {
	Practice  Practice
	Patients  Patients
	Scheduler Scheduler
	Validator *validation.Validator
	Tx        db.TxManager
	Metrics   *telemetry.Metrics
	Logger    zerolog.Logger
}

type Flow struct {
	practice  Practice
	patients  Patients
	scheduler Scheduler
	validator *validation.Validator
	tx        db.TxManager
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
}

func NewFlow(d Deps) *Flow {
	if d.Tx == nil {
		d.Tx = db.NoopTxManager{}
	}
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	return &Flow{
		practice:  d.Practice,
		patients:  d.Patients,
		scheduler: d.Scheduler,
		validator: d.Validator,
		tx:        d.Tx,
		metrics:   d.Metrics,
		logger:    d.Logger.With().Str("component", "booking").Logger(),
	}
}

// finish records the outcome of a step and converts err for the caller.
func (f *Flow) finish(step string, err error) error {
	f.metrics.ObserveBooking(step, err)
	if err == nil {
		return nil
	}
	be := fail(err)
	if be.Kind == apperr.KindInternal {
		f.logger.Error().Err(err).Str("step", step).Msg("booking step failed")
	}
	return be
}

// SpecialtyOption is one entry of the first step.
type SpecialtyOption struct {
	ID              uuid.UUID `json:"id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	DefaultDuration float64   `json:"default_duration"`
}

func (f *Flow) Specialties(ctx context.Context) ([]SpecialtyOption, error) {
	items, _, err := f.practice.ListSpecialties(ctx, true, 1000, 0)
	if err != nil {
		return nil, f.finish(StepSpecialties, err)
	}
	out := make([]SpecialtyOption, 0, len(items))
	for _, sp := range items {
		out = append(out, SpecialtyOption{ID: sp.ID, Code: sp.Code, Name: sp.Name, DefaultDuration: sp.DefaultDuration})
	}
	return out, f.finish(StepSpecialties, nil)
}

// DoctorOption is one entry of the second step. Specialty lists the names of
// every specialty the doctor offers, comma separated.
type DoctorOption struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	ConsultationRoom string    `json:"consultation_room"`
	Specialty        string    `json:"specialty"`
}

type DoctorsRequest struct {
	SpecialtyID uuid.UUID `json:"specialty_id" validate:"required"`
}

func (f *Flow) Doctors(ctx context.Context, req DoctorsRequest) ([]DoctorOption, error) {
	if err := f.validator.Validate(req); err != nil {
		return nil, f.finish(StepDoctors, err)
	}
	doctors, err := f.practice.ActiveDoctorsFor(ctx, req.SpecialtyID)
	if err != nil {
		return nil, f.finish(StepDoctors, err)
	}
	names := make(map[uuid.UUID]string)
	out := make([]DoctorOption, 0, len(doctors))
	for _, d := range doctors {
		var specs []string
		for _, id := range d.SpecialtyIDs {
			name, ok := names[id]
			if !ok {
				sp, err := f.practice.GetSpecialty(ctx, id)
				if err != nil {
					return nil, f.finish(StepDoctors, err)
				}
				name = sp.Name
				names[id] = name
			}
			specs = append(specs, name)
		}
		out = append(out, DoctorOption{
			ID:               d.ID,
			Name:             d.Name,
			ConsultationRoom: d.Room(),
			Specialty:        strings.Join(specs, ", "),
		})
	}
	return out, f.finish(StepDoctors, nil)
}

type SlotsRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" validate:"required"`
	Date     string    `json:"date" validate:"required,isodate"`
}

func (f *Flow) Slots(ctx context.Context, req SlotsRequest) ([]scheduling.Slot, error) {
	if err := f.validator.Validate(req); err != nil {
		return nil, f.finish(StepSlots, err)
	}
	day, err := time.ParseInLocation("2006-01-02", req.Date, f.scheduler.Location())
	if err != nil {
		return nil, f.finish(StepSlots, apperr.Validation("date must be a date in YYYY-MM-DD format"))
	}
	slots, err := f.scheduler.AvailableSlots(ctx, req.DoctorID, day)
	return slots, f.finish(StepSlots, err)
}

// Request is the final submission.
type Request struct {
	IdentificationID    string    `json:"identification_id" validate:"notblank,max=32"`
	PatientName         string    `json:"patient_name" validate:"notblank,max=128"`
	Phone               string    `json:"phone" validate:"max=32"`
	Email               string    `json:"email" validate:"omitempty,email"`
	DoctorID            uuid.UUID `json:"doctor_id" validate:"required"`
	SpecialtyID         uuid.UUID `json:"specialty_id" validate:"required"`
	AppointmentDateTime string    `json:"appointment_datetime" validate:"notblank"`
	Reason              string    `json:"reason" validate:"max=2000"`
}

// Confirmation is returned by a successful Submit.
type Confirmation struct {
	AppointmentID  uuid.UUID         `json:"appointment_id"`
	Number         string            `json:"number"`
	Status         scheduling.Status `json:"status"`
	PatientID      uuid.UUID         `json:"patient_id"`
	PatientCreated bool              `json:"patient_created"`
	Start          time.Time         `json:"start"`
	Duration       float64           `json:"duration"`
}

// parseDateTime reads s as wall time in loc, or as an RFC 3339 instant.
func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DateTimeLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, &Error{
		Kind:    apperr.KindValidation,
		Message: fmt.Sprintf("appointment_datetime must use the format %s", "YYYY-MM-DD HH:MM:SS"),
		Fields: []validation.FieldError{{
			Field:   "appointment_datetime",
			Rule:    "datetime",
			Message: "appointment_datetime must use the format YYYY-MM-DD HH:MM:SS",
		}},
	}
}

// Submit finds the patient by identification id, creating one from the
// contact fields when none exists, then books a draft appointment. Both
// writes share one transaction.
func (f *Flow) Submit(ctx context.Context, req Request) (*Confirmation, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "booking.Submit")
	defer span.End()

	conf, err := f.submit(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "booking failed")
		return nil, f.finish(StepAppointments, err)
	}
	span.SetAttributes(
		attribute.String("appointment.id", conf.AppointmentID.String()),
		attribute.Bool("patient.created", conf.PatientCreated),
	)
	f.logger.Info().
		Str("appointment_id", conf.AppointmentID.String()).
		Str("number", conf.Number).
		Bool("patient_created", conf.PatientCreated).
		Msg("appointment booked")
	return conf, f.finish(StepAppointments, nil)
}

func (f *Flow) submit(ctx context.Context, req Request) (*Confirmation, error) {
	if err := f.validator.Validate(req); err != nil {
		return nil, err
	}
	start, err := parseDateTime(req.AppointmentDateTime, f.scheduler.Location())
	if err != nil {
		return nil, err
	}

	conf := &Confirmation{}
	err = f.tx.WithTx(ctx, func(ctx context.Context) error {
		p, created, err := f.patients.FindOrCreate(ctx, patient.ContactDetails{
			IdentificationID: req.IdentificationID,
			Name:             req.PatientName,
			Phone:            req.Phone,
			Email:            req.Email,
		})
		if err != nil {
			return err
		}
		a := &scheduling.Appointment{
			PatientID:       p.ID,
			DoctorID:        req.DoctorID,
			SpecialtyID:     req.SpecialtyID,
			AppointmentDate: start,
		}
		if r := strings.TrimSpace(req.Reason); r != "" {
			a.Reason = &r
		}
		if err := f.scheduler.CreateAppointment(ctx, a); err != nil {
			return err
		}
		*conf = Confirmation{
			AppointmentID:  a.ID,
			Number:         a.Number,
			Status:         a.Status,
			PatientID:      p.ID,
			PatientCreated: created,
			Start:          a.AppointmentDate,
			Duration:       a.Duration,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conf, nil
}
