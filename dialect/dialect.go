// Package dialect provides the database abstraction used by pgbucket.
//
// The adapter targets PostgreSQL, but every component above the driver
// speaks through the small Driver/Tx/ExecQuerier interfaces defined here so
// tests can substitute mocks and instrumentation wrappers can be stacked.
package dialect

import "context"

// Postgres is the only dialect supported by this adapter.
const Postgres = "postgres"

// ExecQuerier wraps the Exec and Query operations. Both a live connection
// and an open transaction satisfy it; bucket operations are written against
// this interface so they run unchanged inside or outside a transaction.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows. The v argument
	// may be nil, or a *sql.Result to capture the outcome.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows. The v argument must be
	// a *sql.Rows compatible scanner destination.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all database operations.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps transaction operations. Statements issued through a Tx execute
// in issue order on one native connection.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}
