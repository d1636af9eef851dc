package bucket

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the adapters of every registered bucket. It backs
// cross-bucket sub-query resolution and enumerates the tables and modules
// the migration tooling operates on.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]*Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]*Adapter{}}
}

// Register adds the adapter under its bucket name and under the
// module-qualified "module::name" reference.
func (r *Registry) Register(a *Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Schema.Name] = a
	if a.Schema.Module != "" {
		r.adapters[a.Schema.Module+"::"+a.Schema.Name] = a
	}
}

// Adapter looks a bucket's adapter up by name.
func (r *Registry) Adapter(name string) (*Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// ResolveTable implements nql.TableResolver: it maps a bucket reference to
// its table name for correlated sub-queries.
func (r *Registry) ResolveTable(bucket string) (string, error) {
	a, ok := r.Adapter(bucket)
	if !ok {
		return "", fmt.Errorf("bucket: unknown bucket %q", bucket)
	}
	return a.Table, nil
}

// Tables returns the distinct table names of all registered buckets,
// sorted.
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	var tables []string
	for _, a := range r.adapters {
		if !seen[a.Table] {
			seen[a.Table] = true
			tables = append(tables, a.Table)
		}
	}
	sort.Strings(tables)
	return tables
}

// Modules returns the distinct module names of all registered buckets,
// sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	var modules []string
	for _, a := range r.adapters {
		if a.Schema.Module != "" && !seen[a.Schema.Module] {
			seen[a.Schema.Module] = true
			modules = append(modules, a.Schema.Module)
		}
	}
	sort.Strings(modules)
	return modules
}

// Schemas returns every registered schema, one per distinct bucket,
// ordered by bucket name.
func (r *Registry) Schemas() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[*Schema]bool{}
	var schemas []*Schema
	for _, a := range r.adapters {
		if !seen[a.Schema] {
			seen[a.Schema] = true
			schemas = append(schemas, a.Schema)
		}
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}
