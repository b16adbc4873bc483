package medication

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospital/appointments/internal/platform/apperr"
)

// Pharmaceutical forms accepted for a medication.
const (
	FormTablet      = "tablet"
	FormCapsule     = "capsule"
	FormSyrup       = "syrup"
	FormInjection   = "injection"
	FormCream       = "cream"
	FormOintment    = "ointment"
	FormDrops       = "drops"
	FormInhaler     = "inhaler"
	FormSuppository = "suppository"
	FormPatch       = "patch"
	FormOther       = "other"
)

var validForms = map[string]bool{
	FormTablet: true, FormCapsule: true, FormSyrup: true, FormInjection: true,
	FormCream: true, FormOintment: true, FormDrops: true, FormInhaler: true,
	FormSuppository: true, FormPatch: true, FormOther: true,
}

// Medication maps to the medication table.
type Medication struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	ActiveIngredient     *string   `db:"active_ingredient" json:"active_ingredient,omitempty"`
	Concentration        *string   `db:"concentration" json:"concentration,omitempty"`
	PharmaceuticalForm   *string   `db:"pharmaceutical_form" json:"pharmaceutical_form,omitempty"`
	RequiresPrescription bool      `db:"requires_prescription" json:"requires_prescription"`
	Contraindications    *string   `db:"contraindications" json:"contraindications,omitempty"`
	QtyAvailable         float64   `db:"qty_available" json:"qty_available"`
	Active               bool      `db:"active" json:"active"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

func (m *Medication) Validate() error {
	if m.Name == "" {
		return apperr.Validation("name is required")
	}
	if m.PharmaceuticalForm != nil && !validForms[*m.PharmaceuticalForm] {
		return apperr.Validation("invalid pharmaceutical_form %q", *m.PharmaceuticalForm)
	}
	if m.QtyAvailable < 0 {
		return apperr.Validation("qty_available cannot be negative")
	}
	return nil
}

// DisplayName is "Name Concentration", e.g. "Amoxicillin 500 mg".
func (m *Medication) DisplayName() string {
	if m.Concentration == nil || *m.Concentration == "" {
		return m.Name
	}
	return m.Name + " " + *m.Concentration
}

// Shortfall is how much of qty cannot be served from stock, or 0.
func (m *Medication) Shortfall(qty float64) float64 {
	if qty <= m.QtyAvailable {
		return 0
	}
	return qty - m.QtyAvailable
}
