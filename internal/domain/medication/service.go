package medication

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hospital/appointments/internal/platform/apperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateMedication(ctx context.Context, m *Medication) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, m)
}

func (s *Service) GetMedication(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateMedication(ctx context.Context, m *Medication) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, m)
}

func (s *Service) DeleteMedication(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) SearchMedications(ctx context.Context, f Filter, limit, offset int) ([]*Medication, int, error) {
	return s.repo.Search(ctx, f, limit, offset)
}

// AdjustStock records a stock receipt (positive delta) or write-off (negative).
func (s *Service) AdjustStock(ctx context.Context, id uuid.UUID, delta float64) (float64, error) {
	if delta == 0 {
		return 0, apperr.Validation("delta must not be zero")
	}
	return s.repo.AdjustStock(ctx, id, delta)
}

// StockRequest asks for qty units of a medication.
type StockRequest struct {
	MedicationID uuid.UUID
	Quantity     float64
}

// StockWarning describes a request that exceeds the available stock.
type StockWarning struct {
	MedicationID uuid.UUID `json:"medication_id"`
	Name         string    `json:"name"`
	Available    float64   `json:"available"`
	Requested    float64   `json:"requested"`
}

func (w StockWarning) String() string {
	return fmt.Sprintf("%s has insufficient stock. Available: %.2f Requested: %.2f", w.Name, w.Available, w.Requested)
}

// CheckStock compares each request with the medication's qty_available.
// Shortfalls are reported, never enforced; a missing medication is an error.
func (s *Service) CheckStock(ctx context.Context, reqs []StockRequest) ([]StockWarning, error) {
	var warnings []StockWarning
	for _, r := range reqs {
		m, err := s.repo.GetByID(ctx, r.MedicationID)
		if err != nil {
			return nil, err
		}
		if m.Shortfall(r.Quantity) > 0 {
			warnings = append(warnings, StockWarning{
				MedicationID: m.ID,
				Name:         m.DisplayName(),
				Available:    m.QtyAvailable,
				Requested:    r.Quantity,
			})
		}
	}
	return warnings, nil
}
