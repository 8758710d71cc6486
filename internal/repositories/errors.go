package repositories

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by repository methods when the requested record
// does not exist in the database. Callers should check for this error
// explicitly using errors.Is to distinguish missing records from other
// database errors.
//
//	target, err := repo.GetByID(ctx, id)
//	if errors.Is(err, repositories.ErrNotFound) {
//	    handle not found
//	}
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when an insert or update violates a unique
// constraint (e.g. a duplicate target name), or when a delete is refused
// because another entity still references the row (IN_USE, per spec §4.1).
var ErrConflict = errors.New("record already exists or is in use")

// isUniqueConstraintErr reports whether err is a unique-constraint violation
// from either supported driver: Postgres reports SQLSTATE 23505; the
// modernc sqlite driver surfaces it as a plain string from SQLite's own
// "UNIQUE constraint failed" message.
func isUniqueConstraintErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}