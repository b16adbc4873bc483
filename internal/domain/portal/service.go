// Package portal serves the patient-facing views: a patient linked to the
// caller's account sees their own appointments and prescriptions, and anyone
// holding a record's access token can open that record.
package portal

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/appointments/internal/domain/patient"
	"github.com/hospital/appointments/internal/domain/practice"
	"github.com/hospital/appointments/internal/domain/prescription"
	"github.com/hospital/appointments/internal/domain/scheduling"
	"github.com/hospital/appointments/internal/platform/apperr"
)

// ErrNoPatient is returned when the caller's account is not linked to a
// patient record.
var ErrNoPatient = apperr.NotFound("no patient record is linked to this account")

// Sort keys accepted by the list views.
const (
	SortDate   = "date"
	SortNumber = "number"
	SortDoctor = "doctor"
)

type Patients interface {
	GetPatientByUser(ctx context.Context, userID string) (*patient.Patient, error)
}

type Doctors interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*practice.Doctor, error)
}

type Appointments interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
	SearchAppointments(ctx context.Context, f scheduling.AppointmentFilter, limit, offset int) ([]*scheduling.Appointment, int, error)
	CountAppointments(ctx context.Context, f scheduling.AppointmentFilter) (int, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*scheduling.Appointment, error)
}

type Prescriptions interface {
	GetPrescription(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error)
	SearchPrescriptions(ctx context.Context, f prescription.Filter, limit, offset int) ([]*prescription.Prescription, int, error)
	CountPrescriptions(ctx context.Context, f prescription.Filter) (int, error)
}

type Deps struct {
	Patients      Patients
	Doctors       Doctors
	Appointments  Appointments
	Prescriptions Prescriptions
	Logger        zerolog.Logger
}

type Service struct {
	patients      Patients
	doctors       Doctors
	appointments  Appointments
	prescriptions Prescriptions
	logger        zerolog.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		patients:      d.Patients,
		doctors:       d.Doctors,
		appointments:  d.Appointments,
		prescriptions: d.Prescriptions,
		logger:        d.Logger.With().Str("component", "portal").Logger(),
	}
}

// Summary is the portal home: the caller's patient and record counts.
type Summary struct {
	PatientID         uuid.UUID `json:"patient_id"`
	PatientName       string    `json:"patient_name"`
	AppointmentCount  int       `json:"appointment_count"`
	UpcomingCount     int       `json:"upcoming_count"`
	PrescriptionCount int       `json:"prescription_count"`
}

// AppointmentView is an appointment with its doctor's display name.
type AppointmentView struct {
	*scheduling.Appointment
	DoctorName string `json:"doctor_name"`
	CanCancel  bool   `json:"can_cancel"`
}

// PrescriptionView is a prescription with its doctor's display name.
type PrescriptionView struct {
	*prescription.Prescription
	DoctorName string `json:"doctor_name"`
}

func (s *Service) patientFor(ctx context.Context, userID string) (*patient.Patient, error) {
	p, err := s.patients.GetPatientByUser(ctx, userID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, ErrNoPatient
	}
	return p, err
}

func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	p, err := s.patientFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	apptCount, err := s.appointments.CountAppointments(ctx, scheduling.AppointmentFilter{PatientID: &p.ID})
	if err != nil {
		return nil, err
	}
	upcoming, err := s.appointments.CountAppointments(ctx, scheduling.AppointmentFilter{
		PatientID: &p.ID,
		Statuses:  []scheduling.Status{scheduling.StatusDraft, scheduling.StatusConfirmed},
	})
	if err != nil {
		return nil, err
	}
	rxCount, err := s.prescriptions.CountPrescriptions(ctx, prescription.Filter{PatientID: &p.ID})
	if err != nil {
		return nil, err
	}
	return &Summary{
		PatientID:         p.ID,
		PatientName:       p.Name,
		AppointmentCount:  apptCount,
		UpcomingCount:     upcoming,
		PrescriptionCount: rxCount,
	}, nil
}

func appointmentSort(sortby string) string {
	switch sortby {
	case SortNumber:
		return scheduling.SortNumber
	case SortDoctor:
		return scheduling.SortDoctor
	default:
		return scheduling.SortDateDesc
	}
}

func prescriptionSort(sortby string) string {
	if sortby == SortNumber {
		return prescription.SortNumber
	}
	return prescription.SortDateDesc
}

// ListAppointments pages through the caller's appointments.
func (s *Service) ListAppointments(ctx context.Context, userID, sortby string, limit, offset int) ([]*AppointmentView, int, error) {
	p, err := s.patientFor(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.appointments.SearchAppointments(ctx, scheduling.AppointmentFilter{
		PatientID: &p.ID,
		Sort:      appointmentSort(sortby),
	}, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	names := make(map[uuid.UUID]string)
	out := make([]*AppointmentView, 0, len(items))
	for _, a := range items {
		out = append(out, s.appointmentView(ctx, a, names))
	}
	return out, total, nil
}

// ListPrescriptions pages through the caller's prescriptions.
func (s *Service) ListPrescriptions(ctx context.Context, userID, sortby string, limit, offset int) ([]*PrescriptionView, int, error) {
	p, err := s.patientFor(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.prescriptions.SearchPrescriptions(ctx, prescription.Filter{
		PatientID: &p.ID,
		Sort:      prescriptionSort(sortby),
	}, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	names := make(map[uuid.UUID]string)
	out := make([]*PrescriptionView, 0, len(items))
	for _, rx := range items {
		out = append(out, &PrescriptionView{Prescription: rx, DoctorName: s.doctorName(ctx, rx.DoctorID, names)})
	}
	return out, total, nil
}

// GetAppointment opens one appointment for its owning patient, or for anyone
// presenting the record's access token. Other callers get NotFound.
func (s *Service) GetAppointment(ctx context.Context, userID string, id uuid.UUID, token string) (*AppointmentView, error) {
	a, err := s.appointments.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canAccess(ctx, userID, a.PatientID, token, a.AccessToken) {
		return nil, apperr.NotFound("appointment not found")
	}
	return s.appointmentView(ctx, a, nil), nil
}

// GetPrescription is GetAppointment for prescriptions; lines are included.
func (s *Service) GetPrescription(ctx context.Context, userID string, id uuid.UUID, token string) (*PrescriptionView, error) {
	rx, err := s.prescriptions.GetPrescription(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canAccess(ctx, userID, rx.PatientID, token, rx.AccessToken) {
		return nil, apperr.NotFound("prescription not found")
	}
	return &PrescriptionView{Prescription: rx, DoctorName: s.doctorName(ctx, rx.DoctorID, nil)}, nil
}

// CancelAppointment cancels a draft or confirmed appointment of the caller.
// The access token is not accepted here.
func (s *Service) CancelAppointment(ctx context.Context, userID string, id uuid.UUID, reason string) (*AppointmentView, error) {
	p, err := s.patientFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	a, err := s.appointments.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.PatientID != p.ID {
		return nil, apperr.NotFound("appointment not found")
	}
	if !cancellable(a.Status) {
		return nil, apperr.Transition("cannot cancel a %s appointment from the portal: it must be draft or confirmed", a.Status)
	}
	a, err = s.appointments.Cancel(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", a.ID.String()).Str("patient_id", p.ID.String()).
		Msg("appointment cancelled by patient")
	return s.appointmentView(ctx, a, nil), nil
}

func cancellable(st scheduling.Status) bool {
	return st == scheduling.StatusDraft || st == scheduling.StatusConfirmed
}

func (s *Service) canAccess(ctx context.Context, userID string, ownerID uuid.UUID, token, recordToken string) bool {
	if token = strings.TrimSpace(token); token != "" && recordToken != "" {
		if subtle.ConstantTimeCompare([]byte(token), []byte(recordToken)) == 1 {
			return true
		}
	}
	if userID == "" {
		return false
	}
	p, err := s.patients.GetPatientByUser(ctx, userID)
	return err == nil && p.ID == ownerID
}

func (s *Service) appointmentView(ctx context.Context, a *scheduling.Appointment, names map[uuid.UUID]string) *AppointmentView {
	return &AppointmentView{
		Appointment: a,
		DoctorName:  s.doctorName(ctx, a.DoctorID, names),
		CanCancel:   cancellable(a.Status),
	}
}

// doctorName resolves a display name, caching into names when given. A
// lookup failure leaves the name empty.
func (s *Service) doctorName(ctx context.Context, id uuid.UUID, names map[uuid.UUID]string) string {
	if name, ok := names[id]; ok {
		return name
	}
	name := ""
	if d, err := s.doctors.GetDoctor(ctx, id); err == nil {
		name = d.DisplayName()
	} else {
		s.logger.Warn().Err(err).Str("doctor_id", id.String()).Msg("doctor lookup failed")
	}
	if names != nil {
		names[id] = name
	}
	return name
}
