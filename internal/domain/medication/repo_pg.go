package medication

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hospital/appointments/internal/platform/apperr"
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

const medCols = `id, name, active_ingredient, concentration, pharmaceutical_form,
	requires_prescription, contraindications, qty_available, active, created_at, updated_at`

func (r *repoPG) scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.Name, &m.ActiveIngredient, &m.Concentration, &m.PharmaceuticalForm,
		&m.RequiresPrescription, &m.Contraindications, &m.QtyAvailable, &m.Active,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "medication", "scan")
	}
	return &m, nil
}

func (r *repoPG) Create(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medication (id, name, active_ingredient, concentration, pharmaceutical_form,
			requires_prescription, contraindications, qty_available, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.ActiveIngredient, m.Concentration, m.PharmaceuticalForm,
		m.RequiresPrescription, m.Contraindications, m.QtyAvailable, m.Active,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	return db.MapError(err, "medication", "create")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return r.scanMedication(r.conn(ctx).QueryRow(ctx, `SELECT `+medCols+` FROM medication WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, m *Medication) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medication SET name=$2, active_ingredient=$3, concentration=$4, pharmaceutical_form=$5,
			requires_prescription=$6, contraindications=$7, qty_available=$8, active=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Name, m.ActiveIngredient, m.Concentration, m.PharmaceuticalForm,
		m.RequiresPrescription, m.Contraindications, m.QtyAvailable, m.Active,
	).Scan(&m.UpdatedAt)
	return db.MapError(err, "medication", "update")
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM medication WHERE id = $1`, id)
	return db.MapError(err, "medication", "delete")
}

func (r *repoPG) AdjustStock(ctx context.Context, id uuid.UUID, delta float64) (float64, error) {
	var qty float64
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medication SET qty_available = qty_available + $2, updated_at = NOW()
		WHERE id = $1 AND qty_available + $2 >= 0
		RETURNING qty_available`, id, delta).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the row is missing or the stock would go negative.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return 0, getErr
		}
		return 0, apperr.Validation("insufficient stock for adjustment of %.2f", delta)
	}
	if err != nil {
		return 0, db.MapError(err, "medication", "adjust stock")
	}
	return qty, nil
}

func (r *repoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Medication, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Query != "" {
		where += fmt.Sprintf(` AND (name ILIKE $%d OR active_ingredient ILIKE $%d)`, idx, idx)
		args = append(args, "%"+f.Query+"%")
		idx++
	}
	if f.Form != "" {
		where += fmt.Sprintf(` AND pharmaceutical_form = $%d`, idx)
		args = append(args, f.Form)
		idx++
	}
	if f.ActiveOnly {
		where += ` AND active`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medication`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "medication", "count")
	}

	query := `SELECT ` + medCols + ` FROM medication` + where +
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err, "medication", "search")
	}
	defer rows.Close()
	var items []*Medication
	for rows.Next() {
		m, err := r.scanMedication(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
