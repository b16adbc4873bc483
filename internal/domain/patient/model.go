package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/appointments/internal/platform/apperr"
)

var validGenders = map[string]bool{"male": true, "female": true, "other": true}

var validBloodTypes = map[string]bool{
	"a+": true, "a-": true, "b+": true, "b-": true,
	"ab+": true, "ab-": true, "o+": true, "o-": true,
}

// Patient maps to the patient table. Age is derived from BirthDate on every
// read and is never stored.
type Patient struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	IdentificationID string     `db:"identification_id" json:"identification_id"`
	BirthDate        *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Age              int        `db:"-" json:"age"`
	Gender           *string    `db:"gender" json:"gender,omitempty"`
	BloodType        *string    `db:"blood_type" json:"blood_type,omitempty"`
	Phone            *string    `db:"phone" json:"phone,omitempty"`
	Email            *string    `db:"email" json:"email,omitempty"`
	Address          *string    `db:"address" json:"address,omitempty"`
	Allergies        *string    `db:"allergies" json:"allergies,omitempty"`
	MedicalHistory   *string    `db:"medical_history" json:"medical_history,omitempty"`
	EmergencyContact *string    `db:"emergency_contact" json:"emergency_contact,omitempty"`
	EmergencyPhone   *string    `db:"emergency_phone" json:"emergency_phone,omitempty"`
	// UserID links the patient to a portal account (auth subject).
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Validate checks field rules relative to today.
func (p *Patient) Validate(today time.Time) error {
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Validation("name is required")
	}
	if strings.TrimSpace(p.IdentificationID) == "" {
		return apperr.Validation("identification_id is required")
	}
	if p.BirthDate != nil && dateOnly(*p.BirthDate).After(dateOnly(today)) {
		return apperr.Validation("birth date cannot be in the future")
	}
	if p.Email != nil && *p.Email != "" && !strings.Contains(*p.Email, "@") {
		return apperr.Validation("email format is not valid")
	}
	if p.Gender != nil && !validGenders[*p.Gender] {
		return apperr.Validation("invalid gender: %s", *p.Gender)
	}
	if p.BloodType != nil && !validBloodTypes[*p.BloodType] {
		return apperr.Validation("invalid blood type: %s", *p.BloodType)
	}
	return nil
}

// AgeOn returns the patient's age in whole years on the given day, or 0 when
// the birth date is unknown.
func (p *Patient) AgeOn(today time.Time) int {
	if p.BirthDate == nil {
		return 0
	}
	b := dateOnly(*p.BirthDate)
	t := dateOnly(today)
	age := t.Year() - b.Year()
	if t.Month() < b.Month() || (t.Month() == b.Month() && t.Day() < b.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

func (p *Patient) DisplayName() string {
	return p.Name + " (" + p.IdentificationID + ")"
}

// Contact returns the email address or an empty string.
func (p *Patient) Contact() string {
	if p.Email == nil {
		return ""
	}
	return *p.Email
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
