package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/hospital/appointments/internal/platform/notification"
	"github.com/hospital/appointments/internal/platform/sweep"
)

// Sweep names as registered with the runner.
const (
	SweepReminders24h  = "appointment-reminders-24h"
	SweepReminders2h   = "appointment-reminders-2h"
	SweepAutoCancel    = "appointment-auto-cancel"
	sweepBatchSize     = 500
	reminder24hLead    = 24 * time.Hour
	reminder24hWindow  = time.Hour
	reminder2hLead     = 2 * time.Hour
	reminder2hWindow   = 30 * time.Minute
	autoCancelLeadTime = time.Hour
)

// RegisterSweeps adds the appointment sweeps to r.
func (s *Service) RegisterSweeps(r *sweep.Runner) {
	r.Register(SweepReminders24h, s.SendReminders24h)
	r.Register(SweepReminders2h, s.SendReminders2h)
	r.Register(SweepAutoCancel, s.AutoCancelUnconfirmed)
}

// SendReminders24h emails patients whose confirmed appointment starts in
// [now+24h, now+25h] and stamps the reminder so it goes out once.
func (s *Service) SendReminders24h(ctx context.Context, now time.Time) (sweep.Result, error) {
	from := now.Add(reminder24hLead)
	to := from.Add(reminder24hWindow)
	return s.forEach(ctx, AppointmentFilter{
		Statuses:           []Status{StatusConfirmed},
		StartFrom:          &from,
		StartTo:            &to,
		Reminder24hPending: true,
		Sort:               SortDateAsc,
	}, func(ctx context.Context, a *Appointment) error {
		if err := s.notify(ctx, a, notification.KindAppointmentReminder24h); err != nil && !errors.Is(err, notification.ErrNoRecipient) {
			return err
		}
		a.Reminder24hSentAt = &now
		return s.appointments.Update(ctx, a)
	})
}

// SendReminders2h emails patients whose confirmed appointment starts in
// [now+2h, now+2h30m] and puts a task on the doctor's list when the doctor
// has a linked user account.
func (s *Service) SendReminders2h(ctx context.Context, now time.Time) (sweep.Result, error) {
	from := now.Add(reminder2hLead)
	to := from.Add(reminder2hWindow)
	return s.forEach(ctx, AppointmentFilter{
		Statuses:          []Status{StatusConfirmed},
		StartFrom:         &from,
		StartTo:           &to,
		Reminder2hPending: true,
		Sort:              SortDateAsc,
	}, func(ctx context.Context, a *Appointment) error {
		if err := s.notify(ctx, a, notification.KindAppointmentReminder2h); err != nil && !errors.Is(err, notification.ErrNoRecipient) {
			return err
		}
		s.scheduleDoctorTask(ctx, a)
		a.Reminder2hSentAt = &now
		return s.appointments.Update(ctx, a)
	})
}

func (s *Service) scheduleDoctorTask(ctx context.Context, a *Appointment) {
	if s.tasks == nil {
		return
	}
	doc, err := s.doctors.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		s.logSideEffect(a, "doctor task", err)
		return
	}
	userID := doc.LinkedUser()
	if userID == "" {
		return
	}
	pat, err := s.patients.GetPatient(ctx, a.PatientID)
	if err != nil {
		s.logSideEffect(a, "doctor task", err)
		return
	}
	y, m, d := a.AppointmentDate.In(s.loc).Date()
	due := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	if err := s.tasks.ScheduleTask(ctx, userID, a.ID, "Appointment in 30 minutes with "+pat.Name, due); err != nil {
		s.logSideEffect(a, "doctor task", err)
	}
}

// AutoCancelUnconfirmed cancels drafts starting at or before now+1h.
func (s *Service) AutoCancelUnconfirmed(ctx context.Context, now time.Time) (sweep.Result, error) {
	to := now.Add(autoCancelLeadTime)
	return s.forEach(ctx, AppointmentFilter{
		Statuses: []Status{StatusDraft},
		StartTo:  &to,
		Sort:     SortDateAsc,
	}, func(ctx context.Context, a *Appointment) error {
		_, err := s.cancel(ctx, a.ID, AutoCancelReason, StatusDraft)
		return err
	})
}

// forEach applies fn to every appointment matching f, a page at a time. A
// handled or skipped record drops out of f, so the next page starts after
// the ones that failed. A failing record is logged and counted; the run
// goes on.
func (s *Service) forEach(ctx context.Context, f AppointmentFilter, fn func(context.Context, *Appointment) error) (sweep.Result, error) {
	var res sweep.Result
	for {
		items, _, err := s.appointments.Search(ctx, f, s.batchSize, res.Failed)
		if err != nil {
			return res, err
		}
		res.Matched += len(items)
		for _, a := range items {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			err := fn(ctx, a)
			switch {
			case errors.Is(err, errStatusChanged):
				res.Skip()
				continue
			case err != nil:
				s.logger.Error().Err(err).
					Str("appointment_id", a.ID.String()).
					Str("number", a.Number).
					Msg("sweep record failed")
			}
			res.Add(err)
		}
		if len(items) < s.batchSize {
			return res, nil
		}
	}
}
