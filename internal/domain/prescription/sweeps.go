package prescription

import (
	"context"
	"time"

	"github.com/hospital/appointments/internal/platform/sweep"
)

const (
	SweepExpiry    = "prescription-expiry"
	sweepBatchSize = 500
)

func (s *Service) RegisterSweeps(r *sweep.Runner) {
	r.Register(SweepExpiry, s.ExpireOverdue)
}

// ExpireOverdue marks issued prescriptions whose expiry date is before the
// calendar day of now as expired.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (sweep.Result, error) {
	var res sweep.Result
	today := civilDate(now.In(s.loc))
	f := Filter{Statuses: []Status{StatusIssued}, ExpiresBefore: &today}
	for {
		// Expired records leave the filter; only failures stay ahead of the next page.
		items, _, err := s.repo.Search(ctx, f, s.batchSize, res.Failed)
		if err != nil {
			return res, err
		}
		res.Matched += len(items)
		for _, p := range items {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			err := s.expire(ctx, p)
			if err != nil {
				s.logger.Error().Err(err).
					Str("prescription_id", p.ID.String()).
					Str("number", p.Number).
					Msg("sweep record failed")
			}
			res.Add(err)
		}
		if len(items) < s.batchSize {
			return res, nil
		}
	}
}

// expire reloads p inside the transaction so a concurrent dispense is
// not overwritten; the transition then rejects anything no longer issued.
func (s *Service) expire(ctx context.Context, p *Prescription) error {
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		next, _, err := Transition(current.Status, ActionExpire)
		if err != nil {
			return err
		}
		current.Status = next
		return s.repo.Update(ctx, current)
	})
	s.metrics.ObserveTransition("prescription", string(ActionExpire), err)
	return err
}
