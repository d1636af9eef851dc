package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/syssam/pgbucket/dialect"
	"github.com/syssam/pgbucket/trx"
)

// Context is what a routine receives at execution time: the native
// connection scope (the batch transaction) and the logical transaction.
type Context struct {
	Conn dialect.ExecQuerier
	Trx  *trx.Trx
}

// Func is one direction of a migration routine.
type Func func(ctx context.Context, c *Context) error

// Routine is an executable migration: up and down procedures plus the
// optional content hash and description. Hand-written routines may omit
// the hash; such migrations never classify as modified.
type Routine struct {
	Hash        string
	Description string
	Up          Func
	Down        Func
}

// File is one on-disk migration artifact.
type File struct {
	Module string
	Name   string
	Path   string
	Routine *Routine
}

// fileSpec is the serialized migration shape: generated artifacts
// round-trip through it.
type fileSpec struct {
	Hash        string   `yaml:"hash,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Up          []string `yaml:"up"`
	Down        []string `yaml:"down"`
}

// execAll returns a Func running each statement in order on the routine's
// connection scope.
func execAll(stmts []string) Func {
	return func(ctx context.Context, c *Context) error {
		for _, stmt := range stmts {
			if err := c.Conn.Exec(ctx, stmt, []any{}, nil); err != nil {
				return err
			}
		}
		return nil
	}
}

// Save writes the migration under <root>/<module>/migrations/<name>.yaml.
// Custom migrations carry no hash so later edits don't flag them modified.
func (m *Migration) Save(root string) (string, error) {
	spec := fileSpec{
		Description: m.Description,
		Up:          m.SQLUp(),
		Down:        m.SQLDown(),
	}
	if m.Kind != KindCustom {
		spec.Hash = m.Hash()
	}
	out, err := yaml.Marshal(spec)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, m.Module, "migrations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, m.Name+".yaml")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// LoadRoutine reads one migration file back into an executable routine.
func LoadRoutine(path string) (*Routine, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec fileSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("migrate: parsing %s: %w", path, err)
	}
	return &Routine{
		Hash:        spec.Hash,
		Description: spec.Description,
		Up:          execAll(spec.Up),
		Down:        execAll(spec.Down),
	}, nil
}

// ScanDir loads every module's migration files under root, sorted by name
// so creation always precedes alteration of the same table.
func ScanDir(root string, modules []string) ([]*File, error) {
	var files []*File
	for _, module := range modules {
		dir := filepath.Join(root, module, "migrations")
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := filepath.Ext(entry.Name())
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			routine, err := LoadRoutine(path)
			if err != nil {
				return nil, err
			}
			files = append(files, &File{
				Module:  module,
				Name:    strings.TrimSuffix(entry.Name(), ext),
				Path:    path,
				Routine: routine,
			})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
