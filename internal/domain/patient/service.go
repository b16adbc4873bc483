package patient

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/appointments/internal/platform/apperr"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) withAge(p *Patient) *Patient {
	if p != nil {
		p.Age = p.AgeOn(s.now())
	}
	return p
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.IdentificationID = strings.TrimSpace(p.IdentificationID)
	if err := p.Validate(s.now()); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.withAge(p)
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	return s.withAge(p), err
}

// GetPatientByUser resolves the patient linked to a portal account.
func (s *Service) GetPatientByUser(ctx context.Context, userID string) (*Patient, error) {
	if userID == "" {
		return nil, apperr.NotFound("patient not found")
	}
	p, err := s.repo.GetByUserID(ctx, userID)
	return s.withAge(p), err
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := p.Validate(s.now()); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return err
	}
	s.withAge(p)
	return nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	items, total, err := s.repo.Search(ctx, strings.TrimSpace(query), limit, offset)
	for _, p := range items {
		s.withAge(p)
	}
	return items, total, err
}

// ContactDetails identifies a person booking online.
type ContactDetails struct {
	IdentificationID string
	Name             string
	Phone            string
	Email            string
}

// FindOrCreate returns the patient with the given identification id, creating
// one from the contact details when none exists. Existing records are not
// modified.
func (s *Service) FindOrCreate(ctx context.Context, cd ContactDetails) (*Patient, bool, error) {
	ident := strings.TrimSpace(cd.IdentificationID)
	if ident == "" {
		return nil, false, apperr.Validation("identification_id is required")
	}
	existing, err := s.repo.GetByIdentification(ctx, ident)
	if err == nil {
		return s.withAge(existing), false, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, false, err
	}

	p := &Patient{
		Name:             strings.TrimSpace(cd.Name),
		IdentificationID: ident,
		Phone:            optional(cd.Phone),
		Email:            optional(cd.Email),
		Active:           true,
	}
	if err := s.CreatePatient(ctx, p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
