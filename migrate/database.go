package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syssam/pgbucket/dialect"
	sqld "github.com/syssam/pgbucket/dialect/sql"
)

// CheckConnection verifies the connection works by selecting from the
// pg_database catalog.
func CheckConnection(ctx context.Context, conn dialect.ExecQuerier) error {
	var rows sqld.Rows
	if err := conn.Query(ctx, `SELECT datname FROM pg_database`, []any{}, &rows); err != nil {
		return err
	}
	return rows.Close()
}

// ListTables returns the names of all base tables in the public schema.
func ListTables(ctx context.Context, conn dialect.ExecQuerier) ([]string, error) {
	var rows sqld.Rows
	err := conn.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_type = 'BASE TABLE'`, []any{}, &rows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// IfExists controls CreateDatabase when the database already exists.
type IfExists string

const (
	// IfExistsFail returns an error.
	IfExistsFail IfExists = "fail"
	// IfExistsKeep leaves the existing database untouched.
	IfExistsKeep IfExists = "keep"
	// IfExistsDelete drops and recreates the database.
	IfExistsDelete IfExists = "delete"
)

// CreateDatabase creates the named database. conn must be connected to a
// maintenance database (typically "postgres"), since a database cannot be
// created from a connection to itself.
func CreateDatabase(ctx context.Context, conn dialect.ExecQuerier, name string, ifExists IfExists) error {
	var rows sqld.Rows
	if err := conn.Query(ctx, `SELECT datname FROM pg_database WHERE datname = $1`, []any{name}, &rows); err != nil {
		return err
	}
	exists := rows.Next()
	if err := rows.Close(); err != nil {
		return err
	}

	if exists {
		switch ifExists {
		case IfExistsKeep:
			return nil
		case IfExistsDelete:
			slog.Warn("dropping existing database", "name", name)
			if err := conn.Exec(ctx, fmt.Sprintf("DROP DATABASE %q", name), []any{}, nil); err != nil {
				return err
			}
		default:
			return fmt.Errorf("migrate: database %s already exists", name)
		}
	}

	slog.Info("creating database", "name", name)
	return conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %q", name), []any{}, nil)
}
