// Package pgbucket plugs a generic bucket engine's storage abstraction onto
// PostgreSQL. It provides the schema-diff migration generator, the
// logical-to-native transaction bridge and the NQL-to-SQL query compiler,
// plus the thin adapter surface that wires them to a live database.
package pgbucket

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrDatabase is the generic error surfaced to bucket-level callers when
	// a native statement fails. The driver error is logged, never leaked.
	ErrDatabase = errors.New("pgbucket: database error")

	// ErrUnknownFieldType is returned when an "unknown"-typed field is
	// requested for SQL persistence.
	ErrUnknownFieldType = errors.New("pgbucket: an unknown field cannot be stored on SQL")

	// ErrUnsupportedOperator is returned when a query operator has no SQL
	// translation on this backend.
	ErrUnsupportedOperator = errors.New("pgbucket: operator not supported on SQL adapters")

	// ErrMigrationAborted is returned when migration generation for a table
	// cannot proceed; partial migrations are never emitted.
	ErrMigrationAborted = errors.New("pgbucket: migration generation aborted")
)

// DatabaseError wraps a native driver failure. The wrapped error carries the
// driver detail for logging; Error() intentionally reports only the generic
// message so bucket consumers never couple to driver error shapes.
type DatabaseError struct {
	Op  string // statement kind, e.g. "insert", "query", "ddl"
	Err error
}

// Error returns the error string.
func (e *DatabaseError) Error() string {
	return "pgbucket: database error"
}

// Unwrap returns the underlying driver error.
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrDatabase.
func (e *DatabaseError) Is(err error) bool {
	return err == ErrDatabase
}

// NewDatabaseError returns a new DatabaseError for the given operation.
func NewDatabaseError(op string, err error) *DatabaseError {
	return &DatabaseError{Op: op, Err: err}
}

// IsDatabase returns true if the error is a DatabaseError.
func IsDatabase(err error) bool {
	if err == nil {
		return false
	}
	var e *DatabaseError
	return errors.As(err, &e) || errors.Is(err, ErrDatabase)
}

// ProtocolError represents a transaction-protocol violation: commit or
// rollback on an id with no open entry, continue on a finished transaction,
// or contradictory state transitions (rollback after commit and vice versa).
// Protocol errors are always fatal and never retried.
type ProtocolError struct {
	TrxID    string
	Op       string // "begin", "continue", "commit", "rollback"
	Reason   string
	Critical bool
}

// Error returns the error string.
func (e *ProtocolError) Error() string {
	if e.Critical {
		return fmt.Sprintf("pgbucket: critical: failed to %s transaction %s: %s", e.Op, e.TrxID, e.Reason)
	}
	return fmt.Sprintf("pgbucket: failed to %s transaction %s: %s", e.Op, e.TrxID, e.Reason)
}

// NewProtocolError returns a new ProtocolError.
func NewProtocolError(op, trxID, reason string) *ProtocolError {
	return &ProtocolError{Op: op, TrxID: trxID, Reason: reason}
}

// NewCriticalProtocolError returns a new ProtocolError of the critical class.
func NewCriticalProtocolError(op, trxID, reason string) *ProtocolError {
	return &ProtocolError{Op: op, TrxID: trxID, Reason: reason, Critical: true}
}

// IsProtocol returns true if the error is a ProtocolError.
func IsProtocol(err error) bool {
	if err == nil {
		return false
	}
	var e *ProtocolError
	return errors.As(err, &e)
}

// UnresolvedStepError is returned when a multi-option migration step has no
// resolver available to pick among its options.
type UnresolvedStepError struct {
	Table   string
	Column  string
	Options int
}

// Error returns the error string.
func (e *UnresolvedStepError) Error() string {
	return fmt.Sprintf("pgbucket: migration step for %s.%s has %d options and no resolver", e.Table, e.Column, e.Options)
}

// Is reports whether the target error matches ErrMigrationAborted.
func (e *UnresolvedStepError) Is(err error) bool {
	return err == ErrMigrationAborted
}

// MissingValueError is returned when a destructive migration operation is
// missing a required enrichment value (a default for historical rows, or a
// cast expression for a type change).
type MissingValueError struct {
	Table  string
	Column string
	What   string // "default", "rollback default", "cast expression"
}

// Error returns the error string.
func (e *MissingValueError) Error() string {
	return fmt.Sprintf("pgbucket: column %s.%s requires a %s", e.Table, e.Column, e.What)
}

// Is reports whether the target error matches ErrMigrationAborted.
func (e *MissingValueError) Is(err error) bool {
	return err == ErrMigrationAborted
}

// LostMigrationError is returned when a rollback reaches a migration whose
// on-disk routine no longer exists and the operator refused the destructive
// skip-and-delete.
type LostMigrationError struct {
	Name string
}

// Error returns the error string.
func (e *LostMigrationError) Error() string {
	return fmt.Sprintf("pgbucket: migration %s was lost, unable to migrate down", e.Name)
}

// IsLostMigration returns true if the error is a LostMigrationError.
func IsLostMigration(err error) bool {
	if err == nil {
		return false
	}
	var e *LostMigrationError
	return errors.As(err, &e)
}
