package store

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// ErrDuplicate is returned when an insert hits a uniqueness constraint —
// the unit was already recorded by an earlier attempt.
var ErrDuplicate = eris.New("store: already recorded")

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
