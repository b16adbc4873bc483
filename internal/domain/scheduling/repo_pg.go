package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hospital/appointments/internal/platform/db"
)

// =========== Schedule Repository ===========

type scheduleRepoPG struct{ pool db.Querier }

func NewScheduleRepoPG(pool db.Querier) ScheduleRepository { return &scheduleRepoPG{pool: pool} }

func (r *scheduleRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const scheduleCols = `id, doctor_id, day_of_week, hour_from, hour_to, slot_duration, active, created_at, updated_at`

func (r *scheduleRepoPG) scanEntry(row pgx.Row) (*ScheduleEntry, error) {
	var e ScheduleEntry
	err := row.Scan(&e.ID, &e.DoctorID, &e.DayOfWeek, &e.HourFrom, &e.HourTo, &e.SlotDuration,
		&e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "schedule", "scan")
	}
	return &e, nil
}

func (r *scheduleRepoPG) Create(ctx context.Context, e *ScheduleEntry) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_schedule (id, doctor_id, day_of_week, hour_from, hour_to, slot_duration, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		e.ID, e.DoctorID, e.DayOfWeek, e.HourFrom, e.HourTo, e.SlotDuration, e.Active,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	return db.MapError(err, "schedule", "create")
}

func (r *scheduleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ScheduleEntry, error) {
	return r.scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+scheduleCols+` FROM doctor_schedule WHERE id = $1`, id))
}

func (r *scheduleRepoPG) Update(ctx context.Context, e *ScheduleEntry) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor_schedule SET day_of_week=$2, hour_from=$3, hour_to=$4, slot_duration=$5,
			active=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		e.ID, e.DayOfWeek, e.HourFrom, e.HourTo, e.SlotDuration, e.Active,
	).Scan(&e.UpdatedAt)
	return db.MapError(err, "schedule", "update")
}

func (r *scheduleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_schedule WHERE id = $1`, id)
	return db.MapError(err, "schedule", "delete")
}

func (r *scheduleRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]*ScheduleEntry, error) {
	query := `SELECT ` + scheduleCols + ` FROM doctor_schedule WHERE doctor_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY day_of_week, hour_from`
	rows, err := r.conn(ctx).Query(ctx, query, doctorID)
	if err != nil {
		return nil, db.MapError(err, "schedule", "list")
	}
	defer rows.Close()
	var items []*ScheduleEntry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool db.Querier }

func NewAppointmentRepoPG(pool db.Querier) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `a.id, a.number, a.patient_id, a.doctor_id, a.specialty_id, a.appointment_date,
	a.duration, a.status, a.reason, a.notes, a.prescription_id, a.calendar_event_id, a.confirmed_at,
	a.cancellation_reason, a.reminder_24h_sent_at, a.reminder_2h_sent_at, a.access_token,
	a.created_at, a.updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Number, &a.PatientID, &a.DoctorID, &a.SpecialtyID, &a.AppointmentDate,
		&a.Duration, &a.Status, &a.Reason, &a.Notes, &a.PrescriptionID, &a.CalendarEventID, &a.ConfirmedAt,
		&a.CancellationReason, &a.Reminder24hSentAt, &a.Reminder2hSentAt, &a.AccessToken,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "appointment", "scan")
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, number, patient_id, doctor_id, specialty_id, appointment_date,
			duration, status, reason, notes, access_token)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		a.ID, a.Number, a.PatientID, a.DoctorID, a.SpecialtyID, a.AppointmentDate,
		a.Duration, a.Status, a.Reason, a.Notes, a.AccessToken,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return db.MapError(err, "appointment", "create")
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment a WHERE a.id = $1`, id))
}

// Update writes every mutable column. number and access_token never change.
func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET doctor_id=$2, specialty_id=$3, appointment_date=$4, duration=$5,
			status=$6, reason=$7, notes=$8, prescription_id=$9, calendar_event_id=$10,
			confirmed_at=$11, cancellation_reason=$12, reminder_24h_sent_at=$13,
			reminder_2h_sent_at=$14, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.DoctorID, a.SpecialtyID, a.AppointmentDate, a.Duration,
		a.Status, a.Reason, a.Notes, a.PrescriptionID, a.CalendarEventID,
		a.ConfirmedAt, a.CancellationReason, a.Reminder24hSentAt,
		a.Reminder2hSentAt,
	).Scan(&a.UpdatedAt)
	return db.MapError(err, "appointment", "update")
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	return db.MapError(err, "appointment", "delete")
}

func buildAppointmentWhere(f AppointmentFilter) (string, []interface{}, int) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND a.doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		where += fmt.Sprintf(` AND a.status = ANY($%d)`, idx)
		args = append(args, statuses)
		idx++
	}
	if f.StartFrom != nil {
		where += fmt.Sprintf(` AND a.appointment_date >= $%d`, idx)
		args = append(args, *f.StartFrom)
		idx++
	}
	if f.StartTo != nil {
		where += fmt.Sprintf(` AND a.appointment_date <= $%d`, idx)
		args = append(args, *f.StartTo)
		idx++
	}
	if f.ExcludeID != nil {
		where += fmt.Sprintf(` AND a.id <> $%d`, idx)
		args = append(args, *f.ExcludeID)
		idx++
	}
	if f.Reminder24hPending {
		where += ` AND a.reminder_24h_sent_at IS NULL`
	}
	if f.Reminder2hPending {
		where += ` AND a.reminder_2h_sent_at IS NULL`
	}
	return where, args, idx
}

func orderBy(sort string) string {
	switch sort {
	case SortDateAsc:
		return ` ORDER BY a.appointment_date ASC, a.id`
	case SortNumber:
		return ` ORDER BY a.number DESC`
	case SortDoctor:
		return ` ORDER BY (SELECT d.name FROM doctor d WHERE d.id = a.doctor_id), a.appointment_date DESC`
	default:
		return ` ORDER BY a.appointment_date DESC`
	}
}

func (r *appointmentRepoPG) Count(ctx context.Context, f AppointmentFilter) (int, error) {
	where, args, _ := buildAppointmentWhere(f)
	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment a`+where, args...).Scan(&total)
	if err != nil {
		return 0, db.MapError(err, "appointment", "count")
	}
	return total, nil
}

func (r *appointmentRepoPG) Search(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	total, err := r.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	where, args, idx := buildAppointmentWhere(f)
	query := `SELECT ` + apptCols + ` FROM appointment a` + where + orderBy(f.Sort) +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err, "appointment", "search")
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
