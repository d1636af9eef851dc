package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/syssam/pgbucket/bucket"
	"github.com/syssam/pgbucket/dialect"
	sqld "github.com/syssam/pgbucket/dialect/sql"
)

// Column is one introspected table column, with its SQL type reconstructed
// from the catalog's low-level tag.
type Column struct {
	Name     string
	UDT      string
	SQLType  string
	Nullable bool
	// FieldExists marks columns that currently map to a declared schema
	// field or to one of the audit columns. Columns still unmapped after a
	// full planning pass are drop candidates.
	FieldExists bool
}

// Introspection is the current shape of one table.
type Introspection struct {
	Table   string
	Columns []*Column
	byName  map[string]*Column
}

// Column looks a column up by name.
func (in *Introspection) Column(name string) (*Column, bool) {
	c, ok := in.byName[name]
	return c, ok
}

// Inspect reads the column metadata of table from the catalog and flags
// columns mapped by schema fields or audit columns. It returns nil when
// the table does not exist. Catalog failures propagate as fatal errors.
func Inspect(ctx context.Context, conn dialect.ExecQuerier, table string, schema *bucket.Schema, meta bucket.MetaFields) (*Introspection, error) {
	var rows sqld.Rows
	err := conn.Query(ctx, `
		SELECT column_name, udt_name, is_nullable, numeric_precision, numeric_scale
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, []any{table}, &rows)
	if err != nil {
		return nil, fmt.Errorf("migrate: inspecting table %q: %w", table, err)
	}
	defer rows.Close()

	in := &Introspection{Table: table, byName: map[string]*Column{}}
	for rows.Next() {
		var (
			name, udt, isNullable string
			precision, scale      sql.NullInt64
		)
		if err := rows.Scan(&name, &udt, &isNullable, &precision, &scale); err != nil {
			return nil, err
		}
		col := &Column{
			Name:     name,
			UDT:      udt,
			Nullable: isNullable == "YES",
		}
		if name == "id" {
			col.SQLType = PrimaryKeySQL
		} else {
			col.SQLType, err = sqlTypeFromUDT(udt, int(precision.Int64), int(scale.Int64))
			if err != nil {
				return nil, err
			}
		}
		if meta.Has(name) {
			col.FieldExists = true
		}
		in.Columns = append(in.Columns, col)
		in.byName[name] = col
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(in.Columns) == 0 {
		return nil, nil
	}
	for _, name := range schema.FieldNames() {
		if col, ok := in.byName[name]; ok {
			col.FieldExists = true
		}
	}
	return in, nil
}
