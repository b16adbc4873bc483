package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hospital/appointments/internal/platform/apperr"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// MapError translates driver errors into apperr kinds: a missing row becomes
// NotFound and constraint violations become Validation failures. Other
// errors are wrapped with op.
func MapError(err error, entity, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s not found", entity)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return apperr.Validation("%s %s must be unique", entity, constraintField(pgErr))
		case foreignKeyViolation:
			return apperr.Validation("%s references a record that does not exist", entity)
		case checkViolation:
			return apperr.Validation("%s violates %s", entity, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s %s: %w", op, entity, err)
}

// constraintField guesses the column from a "<table>_<column>_key" name.
func constraintField(pgErr *pgconn.PgError) string {
	name := pgErr.ConstraintName
	if name == "" {
		return "value"
	}
	const suffix = "_key"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		name = name[:len(name)-len(suffix)]
	}
	if pgErr.TableName != "" && len(name) > len(pgErr.TableName)+1 && name[:len(pgErr.TableName)+1] == pgErr.TableName+"_" {
		name = name[len(pgErr.TableName)+1:]
	}
	return name
}
