package prescription

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospital/appointments/internal/platform/apperr"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusIssued    Status = "issued"
	StatusDispensed Status = "dispensed"
	StatusExpired   Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusDispensed, StatusExpired:
		return true
	}
	return false
}

const (
	DefaultValidityDays = 30
	MaxValidityDays     = 365
	DefaultLineSequence = 10
)

// Prescription maps to the prescription table. ExpiryDate is derived from
// IssueDate and ValidityDays and is never taken from input.
type Prescription struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	Number              string     `db:"number" json:"number"`
	PatientID           uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID            uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	AppointmentID       *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	IssueDate           time.Time  `db:"issue_date" json:"issue_date"`
	ValidityDays        int        `db:"validity_days" json:"validity_days"`
	ExpiryDate          time.Time  `db:"expiry_date" json:"expiry_date"`
	Status              Status     `db:"status" json:"status"`
	Diagnosis           *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	GeneralInstructions *string    `db:"general_instructions" json:"general_instructions,omitempty"`
	Notes               *string    `db:"notes" json:"notes,omitempty"`
	Lines               []*Line    `db:"-" json:"lines"`
	AccessToken         string     `db:"access_token" json:"-"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Prescription) Validate() error {
	if p.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	if p.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required")
	}
	if p.IssueDate.IsZero() {
		return apperr.Validation("issue_date is required")
	}
	if p.ValidityDays <= 0 {
		return apperr.Validation("validity_days must be greater than 0")
	}
	if p.ValidityDays > MaxValidityDays {
		return apperr.Validation("validity_days cannot exceed %d", MaxValidityDays)
	}
	return nil
}

// RecomputeExpiry sets ExpiryDate to IssueDate + ValidityDays.
func (p *Prescription) RecomputeExpiry() {
	p.ExpiryDate = p.IssueDate.AddDate(0, 0, p.ValidityDays)
}

// ExpiredOn reports whether the prescription is past its expiry date on the
// calendar day today. The expiry day itself is still valid. Only the
// year, month and day of either value are compared.
func (p *Prescription) ExpiredOn(today time.Time) bool {
	return civilDate(today).After(civilDate(p.ExpiryDate))
}

// Line is one medication of a prescription.
type Line struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	Sequence       int       `db:"sequence" json:"sequence"`
	MedicationID   uuid.UUID `db:"medication_id" json:"medication_id"`
	Quantity       float64   `db:"quantity" json:"quantity"`
	Dosage         *string   `db:"dosage" json:"dosage,omitempty"`
	Frequency      *string   `db:"frequency" json:"frequency,omitempty"`
	Duration       *string   `db:"duration" json:"duration,omitempty"`
	Instructions   *string   `db:"instructions" json:"instructions,omitempty"`
}

func (l *Line) Validate() error {
	if l.MedicationID == uuid.Nil {
		return apperr.Validation("medication_id is required")
	}
	if l.Quantity <= 0 {
		return apperr.Validation("quantity must be greater than 0")
	}
	return nil
}

// civilDate returns the calendar day of t as midnight UTC, the form pgx
// scans DATE columns into.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
