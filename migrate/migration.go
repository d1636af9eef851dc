package migrate

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Migration is a resolved, immutable change-set for one table: the ordered
// field operations plus the metadata needed to persist and replay it.
type Migration struct {
	Module      string
	Table       string
	Kind        Kind
	Fields      []FieldOp
	Description string
	// Name orders migrations on disk: epoch first, so creation sorts
	// before alteration of the same table.
	Name string
}

// NewMigration builds a migration named after the current epoch and table.
func NewMigration(module string, kind Kind, table string, fields []FieldOp) *Migration {
	return &Migration{
		Module: module,
		Kind:   kind,
		Table:  table,
		Fields: fields,
		Name:   fmt.Sprintf("%d_%s", time.Now().UnixMilli(), table),
	}
}

// Empty builds a custom migration skeleton with no generated operations.
func Empty(module, name string) *Migration {
	return &Migration{Module: module, Kind: KindCustom, Name: name}
}

// SQLUp renders the forward statements: one CREATE TABLE for the create
// kind, one ALTER TABLE per field for the alter kind.
func (m *Migration) SQLUp() []string {
	switch m.Kind {
	case KindCreate:
		clauses := make([]string, len(m.Fields))
		for i, f := range m.Fields {
			clauses[i] = "\t" + f.SQLUp(KindCreate)
		}
		return []string{fmt.Sprintf("CREATE TABLE %s (\n%s\n)", m.Table, strings.Join(clauses, ",\n"))}
	case KindAlter:
		stmts := make([]string, len(m.Fields))
		for i, f := range m.Fields {
			stmts[i] = fmt.Sprintf("ALTER TABLE %s %s", m.Table, f.SQLUp(KindAlter))
		}
		return stmts
	}
	return nil
}

// SQLDown renders the inverse statements.
func (m *Migration) SQLDown() []string {
	switch m.Kind {
	case KindCreate:
		return []string{fmt.Sprintf("DROP TABLE %s", m.Table)}
	case KindAlter:
		stmts := make([]string, len(m.Fields))
		for i, f := range m.Fields {
			stmts[i] = fmt.Sprintf("ALTER TABLE %s %s", m.Table, f.SQLDown())
		}
		return stmts
	}
	return nil
}

// Hash digests the whitespace-stripped up and down SQL. It is the identity
// used to detect modified migrations: stable across formatting changes,
// different whenever semantics change.
func (m *Migration) Hash() string {
	h := md5.New()
	h.Write([]byte(stripSpace(strings.Join(m.SQLUp(), ""))))
	h.Write([]byte(stripSpace(strings.Join(m.SQLDown(), ""))))
	return hex.EncodeToString(h.Sum(nil))
}

// Describe renders the migration header, one line per operation, and the
// generated SQL in both directions.
func (m *Migration) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "module: %s\n", m.Module)
	fmt.Fprintf(&b, "%s\n\n", m.Name)
	switch m.Kind {
	case KindCreate:
		fmt.Fprintf(&b, "* Create table %s\n", m.Table)
	case KindAlter:
		fmt.Fprintf(&b, "* Alter table %s\n", m.Table)
	}
	for _, f := range m.Fields {
		fmt.Fprintf(&b, "- %s\n", f.Describe())
	}
	b.WriteString("\nUP:\n")
	b.WriteString(strings.Join(m.SQLUp(), "\n"))
	b.WriteString("\nDOWN:\n")
	b.WriteString(strings.Join(m.SQLDown(), "\n"))
	return b.String()
}

// Routine wraps the migration as an executable up/down pair carrying its
// content hash.
func (m *Migration) Routine() *Routine {
	return &Routine{
		Hash:        m.Hash(),
		Description: m.Description,
		Up:          execAll(m.SQLUp()),
		Down:        execAll(m.SQLDown()),
	}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
