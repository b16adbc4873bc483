package practice

import (
	"testing"

	"github.com/google/uuid"

	"github.com/hospital/appointments/internal/platform/apperr"
)

func TestSpecialty_Validate(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		wantErr  bool
	}{
		{"default", 0.5, false},
		{"max", 8, false},
		{"zero", 0, true},
		{"negative", -1, true},
		{"too long", 8.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Specialty{Code: "CARD", Name: "Cardiology", DefaultDuration: tt.duration}
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("expected validation kind, got %v", err)
			}
		})
	}
}

func TestSpecialty_RequiredFields(t *testing.T) {
	if err := (&Specialty{Name: "x", DefaultDuration: 1}).Validate(); err == nil {
		t.Error("expected error for missing code")
	}
	if err := (&Specialty{Code: "x", DefaultDuration: 1}).Validate(); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestDoctor_Validate(t *testing.T) {
	d := &Doctor{Name: "Elena Vega", LicenseNumber: "LIC-1", YearsExperience: 12}
	if err := d.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, years := range []int{-1, 71} {
		d.YearsExperience = years
		if err := d.Validate(); err == nil {
			t.Errorf("expected error for years_experience=%d", years)
		}
	}
	d.YearsExperience = 70
	if err := d.Validate(); err != nil {
		t.Errorf("70 years must be accepted: %v", err)
	}
	if err := (&Doctor{Name: "x"}).Validate(); err == nil {
		t.Error("expected error for missing license")
	}
}

func TestDoctor_Practises(t *testing.T) {
	card, derm := uuid.New(), uuid.New()
	d := &Doctor{SpecialtyIDs: []uuid.UUID{card}}
	if !d.Practises(card) {
		t.Error("expected doctor to practise cardiology")
	}
	if d.Practises(derm) {
		t.Error("doctor must not practise dermatology")
	}
}

func TestDoctor_Helpers(t *testing.T) {
	room, user := "B-12", "user-9"
	d := &Doctor{Name: "Elena Vega", ConsultationRoom: &room, UserID: &user}
	if d.DisplayName() != "Dr. Elena Vega" || d.Room() != "B-12" || d.LinkedUser() != "user-9" {
		t.Errorf("unexpected helpers: %q %q %q", d.DisplayName(), d.Room(), d.LinkedUser())
	}
	empty := &Doctor{}
	if empty.Room() != "" || empty.LinkedUser() != "" {
		t.Error("expected empty helpers for unset fields")
	}
}
