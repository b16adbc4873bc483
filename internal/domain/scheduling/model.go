package scheduling

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/appointments/internal/platform/apperr"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusConfirmed, StatusInProgress, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Terminal states accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// BookedStatuses occupy the doctor's time for slot computation.
var BookedStatuses = []Status{StatusDraft, StatusConfirmed, StatusInProgress}

// BusyStatuses block confirmation of an overlapping appointment.
var BusyStatuses = []Status{StatusConfirmed, StatusInProgress}

const (
	DefaultSlotDuration = 30.0
	MaxSlotDuration     = 480.0
	MaxDuration         = 8.0

	// ConfirmLeadBuffer is how far before a candidate's start another busy
	// appointment still conflicts with it.
	ConfirmLeadBuffer = time.Hour

	AutoCancelReason = "Automatically cancelled: not confirmed in time."
)

var dayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// DayOfWeek numbers t's weekday with Monday = 0 and Sunday = 6.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ScheduleEntry is a weekly availability window of a doctor. Hours are
// fractional (14.5 = 14:30); SlotDuration is in minutes.
type ScheduleEntry struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DoctorID     uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DayOfWeek    int       `db:"day_of_week" json:"day_of_week"`
	HourFrom     float64   `db:"hour_from" json:"hour_from"`
	HourTo       float64   `db:"hour_to" json:"hour_to"`
	SlotDuration float64   `db:"slot_duration" json:"slot_duration"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (e *ScheduleEntry) Validate() error {
	if e.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required")
	}
	if e.DayOfWeek < 0 || e.DayOfWeek > 6 {
		return apperr.Validation("day_of_week must be between 0 (Monday) and 6 (Sunday)")
	}
	if e.HourTo <= e.HourFrom {
		return apperr.Validation("hour_to must be after hour_from")
	}
	if e.HourFrom < 0 || e.HourFrom >= 24 {
		return apperr.Validation("hour_from must be between 0 and 24")
	}
	if e.HourTo < 0 || e.HourTo > 24 {
		return apperr.Validation("hour_to must be between 0 and 24")
	}
	if e.SlotDuration <= 0 {
		return apperr.Validation("slot_duration must be greater than 0")
	}
	if e.SlotDuration > MaxSlotDuration {
		return apperr.Validation("slot_duration cannot exceed 8 hours")
	}
	return nil
}

// Overlaps reports whether e shares any time with the existing entry o of
// the same doctor and day. Only an active o counts; e is checked whether or
// not it is active itself. Ranges are half-open, so 8-12 and 12-14 do not
// overlap.
func (e *ScheduleEntry) Overlaps(o *ScheduleEntry) bool {
	if e.ID != uuid.Nil && e.ID == o.ID {
		return false
	}
	if !o.Active {
		return false
	}
	if e.DoctorID != o.DoctorID || e.DayOfWeek != o.DayOfWeek {
		return false
	}
	return e.HourFrom < o.HourTo && o.HourFrom < e.HourTo
}

// ValidateScheduleEntry checks e's own fields and rejects it when it
// overlaps any of the doctor's existing entries.
func ValidateScheduleEntry(e *ScheduleEntry, existing []*ScheduleEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	for _, o := range existing {
		if e.Overlaps(o) {
			return apperr.Validation("schedule %s overlaps existing schedule %s", e.Label(), o.Label())
		}
	}
	return nil
}

// Label renders e as "Monday 08:00 - 12:30".
func (e *ScheduleEntry) Label() string {
	day := "?"
	if e.DayOfWeek >= 0 && e.DayOfWeek < 7 {
		day = dayNames[e.DayOfWeek]
	}
	return fmt.Sprintf("%s %s - %s", day, clock(e.HourFrom*60), clock(e.HourTo*60))
}

// clock formats a minute offset from midnight as HH:MM, flooring seconds.
func clock(minutes float64) string {
	m := int(math.Floor(minutes))
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// hours converts a fractional hour count to a duration.
func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	Number             string     `db:"number" json:"number"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID           uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	SpecialtyID        uuid.UUID  `db:"specialty_id" json:"specialty_id"`
	AppointmentDate    time.Time  `db:"appointment_date" json:"appointment_date"`
	Duration           float64    `db:"duration" json:"duration"`
	Status             Status     `db:"status" json:"status"`
	Reason             *string    `db:"reason" json:"reason,omitempty"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	PrescriptionID     *uuid.UUID `db:"prescription_id" json:"prescription_id,omitempty"`
	CalendarEventID    *string    `db:"calendar_event_id" json:"calendar_event_id,omitempty"`
	ConfirmedAt        *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	Reminder24hSentAt  *time.Time `db:"reminder_24h_sent_at" json:"reminder_24h_sent_at,omitempty"`
	Reminder2hSentAt   *time.Time `db:"reminder_2h_sent_at" json:"reminder_2h_sent_at,omitempty"`
	AccessToken        string     `db:"access_token" json:"-"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// End is the moment the appointment stops occupying the doctor.
func (a *Appointment) End() time.Time {
	return a.AppointmentDate.Add(hours(a.Duration))
}

// Intersects reports whether [start, end) meets the appointment's interval.
func (a *Appointment) Intersects(start, end time.Time) bool {
	return a.AppointmentDate.Before(end) && start.Before(a.End())
}

// ValidateFields checks the rules that hold regardless of transitions.
func (a *Appointment) ValidateFields(now time.Time) error {
	if a.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	if a.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required")
	}
	if a.SpecialtyID == uuid.Nil {
		return apperr.Validation("specialty_id is required")
	}
	if a.AppointmentDate.IsZero() {
		return apperr.Validation("appointment_date is required")
	}
	if a.Duration <= 0 {
		return apperr.Validation("duration must be greater than 0")
	}
	if a.Duration > MaxDuration {
		return apperr.Validation("duration cannot exceed %g hours", MaxDuration)
	}
	if a.Status == StatusDraft && !a.AppointmentDate.After(now) {
		return apperr.Validation("appointment date must be in the future")
	}
	return nil
}

// FindConflict returns the first busy appointment of the same doctor that
// starts strictly inside (start - 1h, start + duration) of candidate.
func FindConflict(candidate *Appointment, others []*Appointment) *Appointment {
	lower := candidate.AppointmentDate.Add(-ConfirmLeadBuffer)
	upper := candidate.End()
	for _, o := range others {
		if o.ID == candidate.ID || o.DoctorID != candidate.DoctorID {
			continue
		}
		if o.Status != StatusConfirmed && o.Status != StatusInProgress {
			continue
		}
		if o.AppointmentDate.After(lower) && o.AppointmentDate.Before(upper) {
			return o
		}
	}
	return nil
}

// DoctorStats are the dashboard counters of a doctor.
type DoctorStats struct {
	DoctorID          uuid.UUID `json:"doctor_id"`
	TodayCount        int       `json:"appointments_today"`
	PendingCount      int       `json:"appointments_pending"`
	PrescriptionCount int       `json:"prescriptions"`
}
