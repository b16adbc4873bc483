package practice

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hospital/appointments/internal/platform/db"
)

// =========== Specialty Repository ===========

type specialtyRepoPG struct{ pool db.Querier }

func NewSpecialtyRepoPG(pool db.Querier) SpecialtyRepository { return &specialtyRepoPG{pool: pool} }

func (r *specialtyRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const specialtyCols = `id, code, name, description, default_duration, color, active, created_at, updated_at`

func (r *specialtyRepoPG) scanSpecialty(row pgx.Row) (*Specialty, error) {
	var s Specialty
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Description, &s.DefaultDuration,
		&s.Color, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "specialty", "scan")
	}
	return &s, nil
}

func (r *specialtyRepoPG) Create(ctx context.Context, s *Specialty) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO specialty (id, code, name, description, default_duration, color, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		s.ID, s.Code, s.Name, s.Description, s.DefaultDuration, s.Color, s.Active,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return db.MapError(err, "specialty", "create")
}

func (r *specialtyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	return r.scanSpecialty(r.conn(ctx).QueryRow(ctx, `SELECT `+specialtyCols+` FROM specialty WHERE id = $1`, id))
}

func (r *specialtyRepoPG) Update(ctx context.Context, s *Specialty) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE specialty SET code=$2, name=$3, description=$4, default_duration=$5,
			color=$6, active=$7, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Code, s.Name, s.Description, s.DefaultDuration, s.Color, s.Active)
	if err != nil {
		return db.MapError(err, "specialty", "update")
	}
	if tag.RowsAffected() == 0 {
		return db.MapError(pgx.ErrNoRows, "specialty", "update")
	}
	return nil
}

func (r *specialtyRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM specialty WHERE id = $1`, id)
	return db.MapError(err, "specialty", "delete")
}

func (r *specialtyRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Specialty, int, error) {
	where := ` WHERE 1=1`
	if activeOnly {
		where += ` AND active`
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM specialty`+where).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "specialty", "count")
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+specialtyCols+` FROM specialty`+where+` ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err, "specialty", "list")
	}
	defer rows.Close()
	var items []*Specialty
	for rows.Next() {
		s, err := r.scanSpecialty(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool db.Querier }

func NewDoctorRepoPG(pool db.Querier) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const doctorCols = `d.id, d.name, d.license_number,
	ARRAY(SELECT ds.specialty_id FROM doctor_specialty ds WHERE ds.doctor_id = d.id ORDER BY ds.specialty_id),
	d.phone, d.email, d.consultation_room, d.biography, d.years_experience, d.user_id,
	d.color, d.active, d.created_at, d.updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.LicenseNumber, &d.SpecialtyIDs,
		&d.Phone, &d.Email, &d.ConsultationRoom, &d.Biography, &d.YearsExperience, &d.UserID,
		&d.Color, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "doctor", "scan")
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, name, license_number, phone, email, consultation_room,
			biography, years_experience, user_id, color, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.LicenseNumber, d.Phone, d.Email, d.ConsultationRoom,
		d.Biography, d.YearsExperience, d.UserID, d.Color, d.Active,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return db.MapError(err, "doctor", "create")
	}
	return r.setSpecialties(ctx, d.ID, d.SpecialtyIDs)
}

func (r *doctorRepoPG) setSpecialties(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_specialty WHERE doctor_id = $1`, doctorID); err != nil {
		return db.MapError(err, "doctor", "clear specialties")
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_specialty (doctor_id, specialty_id)
		SELECT $1, unnest($2::uuid[])`, doctorID, ids)
	return db.MapError(err, "doctor", "set specialties")
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor d WHERE d.id = $1`, id))
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID string) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor d WHERE d.user_id = $1`, userID))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET name=$2, license_number=$3, phone=$4, email=$5, consultation_room=$6,
			biography=$7, years_experience=$8, user_id=$9, color=$10, active=$11, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Name, d.LicenseNumber, d.Phone, d.Email, d.ConsultationRoom,
		d.Biography, d.YearsExperience, d.UserID, d.Color, d.Active,
	).Scan(&d.UpdatedAt)
	if err != nil {
		return db.MapError(err, "doctor", "update")
	}
	return r.setSpecialties(ctx, d.ID, d.SpecialtyIDs)
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	return db.MapError(err, "doctor", "delete")
}

func (r *doctorRepoPG) Search(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.SpecialtyID != nil {
		where += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM doctor_specialty ds WHERE ds.doctor_id = d.id AND ds.specialty_id = $%d)`, idx)
		args = append(args, *f.SpecialtyID)
		idx++
	}
	if f.ActiveOnly {
		where += ` AND d.active`
	}
	if f.Name != "" {
		where += fmt.Sprintf(` AND d.name ILIKE $%d`, idx)
		args = append(args, "%"+f.Name+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor d`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "doctor", "count")
	}

	query := `SELECT ` + doctorCols + ` FROM doctor d` + where +
		fmt.Sprintf(` ORDER BY d.name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err, "doctor", "search")
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
