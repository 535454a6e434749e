package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation from
// Postgres (pgx or lib/pq) or sqlite. When names are given, the violation must
// reference one of them. Postgres reports the index name while sqlite reports
// table.column, so callers pass both.
func IsUniqueViolation(err error, names ...string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) && pgxErr.Code == uniqueViolationCode {
		return mentionsAny(names, pgxErr.ConstraintName, pgxErr.Message)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
		return mentionsAny(names, pqErr.Constraint, pqErr.Message)
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return mentionsAny(names, "", msg)
}

func mentionsAny(names []string, constraint, message string) bool {
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if name == "" || name == constraint || strings.Contains(message, name) {
			return true
		}
	}
	return false
}
