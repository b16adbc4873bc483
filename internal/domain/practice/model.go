package practice

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospital/appointments/internal/platform/apperr"
)

const (
	DefaultAppointmentDuration = 0.5
	MaxAppointmentDuration     = 8.0
	MaxYearsExperience         = 70
)

// Specialty maps to the specialty table.
type Specialty struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Code            string    `db:"code" json:"code"`
	Name            string    `db:"name" json:"name"`
	Description     *string   `db:"description" json:"description,omitempty"`
	DefaultDuration float64   `db:"default_duration" json:"default_duration"`
	Color           int       `db:"color" json:"color"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

func (s *Specialty) Validate() error {
	if s.Code == "" {
		return apperr.Validation("code is required")
	}
	if s.Name == "" {
		return apperr.Validation("name is required")
	}
	return ValidateDuration(s.DefaultDuration)
}

func (s *Specialty) DisplayName() string {
	return s.Code + " - " + s.Name
}

// ValidateDuration checks an appointment length in hours.
func ValidateDuration(hours float64) error {
	if hours <= 0 {
		return apperr.Validation("appointment duration must be greater than 0")
	}
	if hours > MaxAppointmentDuration {
		return apperr.Validation("appointment duration cannot exceed %g hours", MaxAppointmentDuration)
	}
	return nil
}

// Doctor maps to the doctor table. SpecialtyIDs is stored in doctor_specialty.
type Doctor struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	Name             string      `db:"name" json:"name"`
	LicenseNumber    string      `db:"license_number" json:"license_number"`
	SpecialtyIDs     []uuid.UUID `db:"-" json:"specialty_ids"`
	Phone            *string     `db:"phone" json:"phone,omitempty"`
	Email            *string     `db:"email" json:"email,omitempty"`
	ConsultationRoom *string     `db:"consultation_room" json:"consultation_room,omitempty"`
	Biography        *string     `db:"biography" json:"biography,omitempty"`
	YearsExperience  int         `db:"years_experience" json:"years_experience"`
	// UserID is the auth subject of the doctor's account, used for tasks and
	// calendar invitations.
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Color     int       `db:"color" json:"color"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (d *Doctor) Validate() error {
	if d.Name == "" {
		return apperr.Validation("name is required")
	}
	if d.LicenseNumber == "" {
		return apperr.Validation("license_number is required")
	}
	if d.YearsExperience < 0 {
		return apperr.Validation("years_experience cannot be negative")
	}
	if d.YearsExperience > MaxYearsExperience {
		return apperr.Validation("years_experience cannot exceed %d", MaxYearsExperience)
	}
	return nil
}

// Practises reports whether the doctor offers the specialty.
func (d *Doctor) Practises(specialtyID uuid.UUID) bool {
	for _, id := range d.SpecialtyIDs {
		if id == specialtyID {
			return true
		}
	}
	return false
}

func (d *Doctor) DisplayName() string {
	return "Dr. " + d.Name
}

// Room returns the consultation room or an empty string.
func (d *Doctor) Room() string {
	if d.ConsultationRoom == nil {
		return ""
	}
	return *d.ConsultationRoom
}

func (d *Doctor) LinkedUser() string {
	if d.UserID == nil {
		return ""
	}
	return *d.UserID
}
