package prescription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hospital/appointments/internal/platform/db"
)

type repoPG struct{ pool db.Querier }

func NewRepoPG(pool db.Querier) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const rxCols = `p.id, p.number, p.patient_id, p.doctor_id, p.appointment_id, p.issue_date,
	p.validity_days, p.expiry_date, p.status, p.diagnosis, p.general_instructions, p.notes,
	p.access_token, p.created_at, p.updated_at`

const lineCols = `id, prescription_id, sequence, medication_id, quantity, dosage, frequency,
	duration, instructions`

func (r *repoPG) scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.Number, &p.PatientID, &p.DoctorID, &p.AppointmentID, &p.IssueDate,
		&p.ValidityDays, &p.ExpiryDate, &p.Status, &p.Diagnosis, &p.GeneralInstructions, &p.Notes,
		&p.AccessToken, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "prescription", "scan")
	}
	return &p, nil
}

func (r *repoPG) scanLine(row pgx.Row) (*Line, error) {
	var l Line
	err := row.Scan(&l.ID, &l.PrescriptionID, &l.Sequence, &l.MedicationID, &l.Quantity,
		&l.Dosage, &l.Frequency, &l.Duration, &l.Instructions)
	if err != nil {
		return nil, db.MapError(err, "prescription line", "scan")
	}
	return &l, nil
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (id, number, patient_id, doctor_id, appointment_id, issue_date,
			validity_days, expiry_date, status, diagnosis, general_instructions, notes, access_token)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		p.ID, p.Number, p.PatientID, p.DoctorID, p.AppointmentID, p.IssueDate,
		p.ValidityDays, p.ExpiryDate, p.Status, p.Diagnosis, p.GeneralInstructions, p.Notes, p.AccessToken,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.MapError(err, "prescription", "create")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.scanPrescription(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescription p WHERE p.id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Prescription) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE prescription SET doctor_id=$2, issue_date=$3, validity_days=$4, expiry_date=$5,
			status=$6, diagnosis=$7, general_instructions=$8, notes=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.DoctorID, p.IssueDate, p.ValidityDays, p.ExpiryDate,
		p.Status, p.Diagnosis, p.GeneralInstructions, p.Notes,
	).Scan(&p.UpdatedAt)
	return db.MapError(err, "prescription", "update")
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM prescription WHERE id = $1`, id)
	return db.MapError(err, "prescription", "delete")
}

func buildWhere(f Filter) (string, []interface{}, int) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where += fmt.Sprintf(` AND p.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND p.doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.AppointmentID != nil {
		where += fmt.Sprintf(` AND p.appointment_id = $%d`, idx)
		args = append(args, *f.AppointmentID)
		idx++
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		where += fmt.Sprintf(` AND p.status = ANY($%d)`, idx)
		args = append(args, statuses)
		idx++
	}
	if f.ExpiresBefore != nil {
		where += fmt.Sprintf(` AND p.expiry_date < $%d`, idx)
		args = append(args, *f.ExpiresBefore)
		idx++
	}
	return where, args, idx
}

func orderBy(sort string) string {
	if sort == SortNumber {
		return ` ORDER BY p.number DESC`
	}
	return ` ORDER BY p.issue_date DESC, p.number DESC`
}

func (r *repoPG) Count(ctx context.Context, f Filter) (int, error) {
	where, args, _ := buildWhere(f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescription p`+where, args...).Scan(&total); err != nil {
		return 0, db.MapError(err, "prescription", "count")
	}
	return total, nil
}

func (r *repoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	total, err := r.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	where, args, idx := buildWhere(f)
	query := `SELECT ` + rxCols + ` FROM prescription p` + where + orderBy(f.Sort) +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err, "prescription", "search")
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := r.scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// -- Lines --

func (r *repoPG) AddLine(ctx context.Context, l *Line) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription_line (id, prescription_id, sequence, medication_id, quantity,
			dosage, frequency, duration, instructions)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		l.ID, l.PrescriptionID, l.Sequence, l.MedicationID, l.Quantity,
		l.Dosage, l.Frequency, l.Duration, l.Instructions)
	return db.MapError(err, "prescription line", "create")
}

func (r *repoPG) GetLine(ctx context.Context, id uuid.UUID) (*Line, error) {
	return r.scanLine(r.conn(ctx).QueryRow(ctx, `SELECT `+lineCols+` FROM prescription_line WHERE id = $1`, id))
}

func (r *repoPG) UpdateLine(ctx context.Context, l *Line) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription_line SET sequence=$2, medication_id=$3, quantity=$4, dosage=$5,
			frequency=$6, duration=$7, instructions=$8
		WHERE id = $1`,
		l.ID, l.Sequence, l.MedicationID, l.Quantity, l.Dosage, l.Frequency, l.Duration, l.Instructions)
	if err != nil {
		return db.MapError(err, "prescription line", "update")
	}
	if tag.RowsAffected() == 0 {
		return db.MapError(pgx.ErrNoRows, "prescription line", "update")
	}
	return nil
}

func (r *repoPG) DeleteLine(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM prescription_line WHERE id = $1`, id)
	return db.MapError(err, "prescription line", "delete")
}

func (r *repoPG) GetLines(ctx context.Context, prescriptionID uuid.UUID) ([]*Line, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+lineCols+` FROM prescription_line WHERE prescription_id = $1 ORDER BY sequence, id`, prescriptionID)
	if err != nil {
		return nil, db.MapError(err, "prescription line", "list")
	}
	defer rows.Close()
	var lines []*Line
	for rows.Next() {
		l, err := r.scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
