package migrate

import (
	"fmt"
)

// Kind classifies a migration: a full table creation, a set of table
// alterations, or a hand-written custom routine.
type Kind string

const (
	KindCreate Kind = "create"
	KindAlter  Kind = "alter"
	KindCustom Kind = "custom"
)

// Op is one reversible column-level operation. Its inverse SQL is
// derivable from the same value.
type Op interface {
	isOp()
}

// CreateColumn adds a column (or declares one on table creation). Default
// fills historical rows when a NOT NULL column joins an existing table.
type CreateColumn struct {
	Type     string
	Nullable bool
	PK       bool
	Default  string
}

func (CreateColumn) isOp() {}

// RenameColumn renames the field's column to To.
type RenameColumn struct {
	To string
}

func (RenameColumn) isOp() {}

// AlterColumnType changes a column's type. UsingUp and UsingDown are the
// cast expressions for each direction; not all type changes are losslessly
// castable, so both are overridable during review.
type AlterColumnType struct {
	From      string
	To        string
	UsingUp   string
	UsingDown string
}

func (AlterColumnType) isOp() {}

// AlterColumnNull flips a column's nullability. From and To hold the
// nullable flag before and after.
type AlterColumnNull struct {
	From bool
	To   bool
}

func (AlterColumnNull) isOp() {}

// DropColumn removes a column, remembering enough to re-add it on
// rollback. Default fills the re-added column when it was NOT NULL.
type DropColumn struct {
	Type     string
	Nullable bool
	Default  string
}

func (DropColumn) isOp() {}

// CreateForeignKey adds a foreign-key constraint from the field's column
// to Table.Field.
type CreateForeignKey struct {
	Table string
	Field string
}

func (CreateForeignKey) isOp() {}

// DropForeignKey removes the foreign-key constraint added by
// CreateForeignKey.
type DropForeignKey struct {
	Table string
	Field string
}

func (DropForeignKey) isOp() {}

// FieldOp binds an operation to the column it applies to.
type FieldOp struct {
	Column string
	Op     Op
}

// SQLUp renders the forward SQL fragment. For KindCreate the fragment is a
// column clause of the enclosing CREATE TABLE; otherwise it is the tail of
// an ALTER TABLE statement.
func (f FieldOp) SQLUp(kind Kind) string {
	switch op := f.Op.(type) {
	case CreateColumn:
		clause := fmt.Sprintf("%q %s", f.Column, op.Type)
		if !op.Nullable && !op.PK {
			clause += " NOT NULL"
		}
		if op.Default != "" {
			clause += " DEFAULT " + op.Default
		}
		if kind == KindCreate {
			return clause
		}
		return "ADD " + clause
	case RenameColumn:
		return fmt.Sprintf("RENAME COLUMN %q TO %q", f.Column, op.To)
	case AlterColumnType:
		return fmt.Sprintf("ALTER COLUMN %q TYPE %s USING %s", f.Column, op.To, op.UsingUp)
	case AlterColumnNull:
		verb := "SET"
		if op.To {
			verb = "DROP"
		}
		return fmt.Sprintf("ALTER COLUMN %q %s NOT NULL", f.Column, verb)
	case DropColumn:
		return fmt.Sprintf("DROP COLUMN %q", f.Column)
	case CreateForeignKey:
		return fmt.Sprintf("ADD CONSTRAINT %q FOREIGN KEY (%q) REFERENCES %q (%q)", fkName(f.Column, op.Table), f.Column, op.Table, op.Field)
	case DropForeignKey:
		return fmt.Sprintf("DROP CONSTRAINT %q", fkName(f.Column, op.Table))
	}
	return ""
}

// SQLDown renders the inverse SQL fragment for the alter form.
func (f FieldOp) SQLDown() string {
	switch op := f.Op.(type) {
	case CreateColumn:
		return fmt.Sprintf("DROP COLUMN %q", f.Column)
	case RenameColumn:
		return fmt.Sprintf("RENAME COLUMN %q TO %q", op.To, f.Column)
	case AlterColumnType:
		return fmt.Sprintf("ALTER COLUMN %q TYPE %s USING %s", f.Column, op.From, op.UsingDown)
	case AlterColumnNull:
		verb := "SET"
		if op.From {
			verb = "DROP"
		}
		return fmt.Sprintf("ALTER COLUMN %q %s NOT NULL", f.Column, verb)
	case DropColumn:
		clause := fmt.Sprintf("ADD COLUMN %q %s", f.Column, op.Type)
		if !op.Nullable {
			clause += " NOT NULL"
		}
		if op.Default != "" {
			clause += " DEFAULT " + op.Default
		}
		return clause
	case CreateForeignKey:
		return fmt.Sprintf("DROP CONSTRAINT %q", fkName(f.Column, op.Table))
	case DropForeignKey:
		return fmt.Sprintf("ADD CONSTRAINT %q FOREIGN KEY (%q) REFERENCES %q (%q)", fkName(f.Column, op.Table), f.Column, op.Table, op.Field)
	}
	return ""
}

// Describe renders the operation for review and status display. The text
// must name every source and destination unambiguously.
func (f FieldOp) Describe() string {
	switch op := f.Op.(type) {
	case CreateColumn:
		return fmt.Sprintf("Create column %s as %s", f.Column, op.Type)
	case RenameColumn:
		return fmt.Sprintf("Rename column %s to %s", f.Column, op.To)
	case AlterColumnType:
		return fmt.Sprintf("Alter column %s type from %s to %s", f.Column, op.From, op.To)
	case AlterColumnNull:
		return fmt.Sprintf("Alter column %s from %s to %s", f.Column, nullability(op.From), nullability(op.To))
	case DropColumn:
		return fmt.Sprintf("Drop column %s", f.Column)
	case CreateForeignKey:
		return fmt.Sprintf("Create foreign key from %s to %s.%s", f.Column, op.Table, op.Field)
	case DropForeignKey:
		return fmt.Sprintf("Drop foreign key from %s to %s.%s", f.Column, op.Table, op.Field)
	}
	return fmt.Sprintf("Unknown operation on column %s", f.Column)
}

func fkName(column, table string) string {
	return fmt.Sprintf("fk_%s_%s", column, table)
}

func nullability(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}
