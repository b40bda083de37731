package pg

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"stockroom.org/internal/store"
)

const (
	pgErrInvalidText       = "22P02"
	pgErrCheckViolation    = "23514"
	pgErrNotNullViolation  = "23502"
	pgErrInvalidJSONSyntax = "22032"
)

// classify maps driver errors onto the store sentinels. Constraint and
// syntax failures are caller errors; everything else means the backend
// could not serve the request.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrInvalidText, pgErrCheckViolation, pgErrNotNullViolation, pgErrInvalidJSONSyntax:
			return fmt.Errorf("%w: %s", store.ErrInvalidDocument, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
