package practice

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hospital/appointments/internal/platform/db"
)

type Service struct {
	specialties SpecialtyRepository
	doctors     DoctorRepository
	tx          db.TxManager
}

func NewService(sp SpecialtyRepository, doc DoctorRepository, tx db.TxManager) *Service {
	if tx == nil {
		tx = db.NoopTxManager{}
	}
	return &Service{specialties: sp, doctors: doc, tx: tx}
}

// -- Specialty --

func (s *Service) CreateSpecialty(ctx context.Context, sp *Specialty) error {
	if sp.DefaultDuration == 0 {
		sp.DefaultDuration = DefaultAppointmentDuration
	}
	if err := sp.Validate(); err != nil {
		return err
	}
	return s.specialties.Create(ctx, sp)
}

func (s *Service) GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	return s.specialties.GetByID(ctx, id)
}

func (s *Service) UpdateSpecialty(ctx context.Context, sp *Specialty) error {
	if err := sp.Validate(); err != nil {
		return err
	}
	return s.specialties.Update(ctx, sp)
}

func (s *Service) DeleteSpecialty(ctx context.Context, id uuid.UUID) error {
	return s.specialties.Delete(ctx, id)
}

func (s *Service) ListSpecialties(ctx context.Context, activeOnly bool, limit, offset int) ([]*Specialty, int, error) {
	return s.specialties.List(ctx, activeOnly, limit, offset)
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkSpecialties(ctx, d.SpecialtyIDs); err != nil {
			return err
		}
		return s.doctors.Create(ctx, d)
	})
}

func (s *Service) checkSpecialties(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		if _, err := s.specialties.GetByID(ctx, id); err != nil {
			return fmt.Errorf("specialty %s: %w", id, err)
		}
	}
	return nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

// GetDoctorByUser resolves the doctor linked to an auth subject.
func (s *Service) GetDoctorByUser(ctx context.Context, userID string) (*Doctor, error) {
	return s.doctors.GetByUserID(ctx, userID)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkSpecialties(ctx, d.SpecialtyIDs); err != nil {
			return err
		}
		return s.doctors.Update(ctx, d)
	})
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Delete(ctx, id)
}

func (s *Service) SearchDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.Search(ctx, f, limit, offset)
}

// ActiveDoctorsFor lists the active doctors offering a specialty.
func (s *Service) ActiveDoctorsFor(ctx context.Context, specialtyID uuid.UUID) ([]*Doctor, error) {
	items, _, err := s.doctors.Search(ctx, DoctorFilter{SpecialtyID: &specialtyID, ActiveOnly: true}, 1000, 0)
	return items, err
}
