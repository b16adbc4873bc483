package task

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

const taskCols = `id, user_id, appointment_id, note, due_date, status, done_at, created_at, updated_at`

func (r *repoPG) scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.UserID, &t.AppointmentID, &t.Note, &t.DueDate, &t.Status,
		&t.DoneAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "task", "scan")
	}
	return &t, nil
}

func (r *repoPG) Create(ctx context.Context, t *Task) error {
	t.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO task (id, user_id, appointment_id, note, due_date, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		t.ID, t.UserID, t.AppointmentID, t.Note, t.DueDate, t.Status,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	return db.MapError(err, "task", "create")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	return r.scanTask(r.conn(ctx).QueryRow(ctx, `SELECT `+taskCols+` FROM task WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, t *Task) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE task SET note=$2, due_date=$3, status=$4, done_at=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Note, t.DueDate, t.Status, t.DoneAt,
	).Scan(&t.UpdatedAt)
	return db.MapError(err, "task", "update")
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Task, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.UserID != "" {
		where += fmt.Sprintf(` AND user_id = $%d`, idx)
		args = append(args, f.UserID)
		idx++
	}
	if f.AppointmentID != nil {
		where += fmt.Sprintf(` AND appointment_id = $%d`, idx)
		args = append(args, *f.AppointmentID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM task`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "task", "count")
	}

	query := `SELECT ` + taskCols + ` FROM task` + where +
		fmt.Sprintf(` ORDER BY due_date, created_at LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err, "task", "list")
	}
	defer rows.Close()
	var items []*Task
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}
