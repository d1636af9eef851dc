package pgbucket

import (
	"errors"
	"strings"
)

// ConstraintKind names the class of a violated constraint.
type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintCheck      ConstraintKind = "check"
	ConstraintNotNull    ConstraintKind = "not_null"
)

// ErrConstraint is the sentinel matched by every constraint violation.
// Constraint violations also match ErrDatabase: they are the one class of
// native failure bucket callers are expected to react to.
var ErrConstraint = errors.New("pgbucket: constraint violation")

// ConstraintError reports a database constraint violation. Like
// DatabaseError, Error() keeps the driver detail out of the message.
type ConstraintError struct {
	Op   string
	Kind ConstraintKind
	Err  error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return "pgbucket: " + string(e.Kind) + " constraint violation"
}

// Unwrap returns the underlying driver error.
func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches ErrConstraint or ErrDatabase.
func (e *ConstraintError) Is(err error) bool {
	return err == ErrConstraint || err == ErrDatabase
}

// sqlStateError is implemented by lib/pq's *pq.Error (and pgx) and yields
// the PostgreSQL SQLSTATE code.
type sqlStateError interface {
	SQLState() string
}

// errorCoder covers drivers that expose the code through Code() instead.
type errorCoder interface {
	Code() string
}

// PostgreSQL SQLSTATE codes for constraint violations (class 23).
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// ClassifyConstraint inspects a driver error and returns the kind of
// constraint it violated, or ok=false for non-constraint failures.
func ClassifyConstraint(err error) (ConstraintKind, bool) {
	if err == nil {
		return "", false
	}
	switch sqlState(err) {
	case pgUniqueViolation:
		return ConstraintUnique, true
	case pgForeignKeyViolation:
		return ConstraintForeignKey, true
	case pgCheckViolation:
		return ConstraintCheck, true
	case pgNotNullViolation:
		return ConstraintNotNull, true
	}
	// String fallback for wrapped or stringified driver errors.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "violates unique constraint"):
		return ConstraintUnique, true
	case strings.Contains(msg, "violates foreign key constraint"):
		return ConstraintForeignKey, true
	case strings.Contains(msg, "violates check constraint"):
		return ConstraintCheck, true
	case strings.Contains(msg, "violates not-null constraint"):
		return ConstraintNotNull, true
	}
	return "", false
}

// IsUniqueViolation reports whether err is a uniqueness violation.
func IsUniqueViolation(err error) bool {
	k, ok := ClassifyConstraint(err)
	return ok && k == ConstraintUnique
}

// IsForeignKeyViolation reports whether err is a foreign-key violation.
func IsForeignKeyViolation(err error) bool {
	k, ok := ClassifyConstraint(err)
	return ok && k == ConstraintForeignKey
}

// sqlState walks the error chain for a SQLSTATE code.
func sqlState(err error) string {
	for err != nil {
		if e, ok := err.(sqlStateError); ok {
			return e.SQLState()
		}
		if e, ok := err.(errorCoder); ok {
			return e.Code()
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// NewConstraintError wraps a classified driver error.
func NewConstraintError(op string, kind ConstraintKind, err error) *ConstraintError {
	return &ConstraintError{Op: op, Kind: kind, Err: err}
}
