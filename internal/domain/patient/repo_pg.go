package patient

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

const patientCols = `id, name, identification_id, birth_date, gender, blood_type, phone, email,
	address, allergies, medical_history, emergency_contact, emergency_phone, user_id, active,
	created_at, updated_at`

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.IdentificationID, &p.BirthDate, &p.Gender, &p.BloodType,
		&p.Phone, &p.Email, &p.Address, &p.Allergies, &p.MedicalHistory,
		&p.EmergencyContact, &p.EmergencyPhone, &p.UserID, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "patient", "scan")
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, name, identification_id, birth_date, gender, blood_type, phone, email,
			address, allergies, medical_history, emergency_contact, emergency_phone, user_id, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.IdentificationID, p.BirthDate, p.Gender, p.BloodType, p.Phone, p.Email,
		p.Address, p.Allergies, p.MedicalHistory, p.EmergencyContact, p.EmergencyPhone, p.UserID, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.MapError(err, "patient", "create")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) GetByIdentification(ctx context.Context, identificationID string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE identification_id = $1`, identificationID))
}

func (r *repoPG) GetByUserID(ctx context.Context, userID string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE user_id = $1 AND active`, userID))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET name=$2, identification_id=$3, birth_date=$4, gender=$5, blood_type=$6,
			phone=$7, email=$8, address=$9, allergies=$10, medical_history=$11,
			emergency_contact=$12, emergency_phone=$13, user_id=$14, active=$15, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.IdentificationID, p.BirthDate, p.Gender, p.BloodType, p.Phone, p.Email,
		p.Address, p.Allergies, p.MedicalHistory, p.EmergencyContact, p.EmergencyPhone, p.UserID, p.Active,
	).Scan(&p.UpdatedAt)
	return db.MapError(err, "patient", "update")
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	return db.MapError(err, "patient", "delete")
}

func (r *repoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	if query != "" {
		where += ` AND (name ILIKE $1 OR identification_id ILIKE $1 OR phone ILIKE $1)`
		args = append(args, "%"+query+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "patient", "count")
	}

	n := len(args)
	sql := `SELECT ` + patientCols + ` FROM patient` + where + fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, db.MapError(err, "patient", "search")
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
