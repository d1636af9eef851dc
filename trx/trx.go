// Package trx models the engine-level logical transaction consumed by the
// adapter. One logical transaction may span several modules and several
// services; all handles onto it share one id and one root context bag.
package trx

import (
	"sync"

	"github.com/google/uuid"
)

// Trx is a handle onto a logical transaction held by one module. Handles
// created through Join share the id, idempotency flag and context bag of
// the root they were joined from.
type Trx struct {
	// ID identifies the logical transaction across modules and services.
	ID string
	// Module is the module holding this handle.
	Module string
	// Idempotent marks the transaction as read-only/replayable. No native
	// database transaction is ever opened for an idempotent transaction.
	Idempotent bool

	root *Trx

	mu  sync.Mutex
	bag map[string]any
}

// Option configures a new logical transaction.
type Option func(*Trx)

// Idempotent marks the transaction as read-only/replayable.
func Idempotent() Option {
	return func(t *Trx) {
		t.Idempotent = true
	}
}

// WithID overrides the generated transaction id.
func WithID(id string) Option {
	return func(t *Trx) {
		t.ID = id
	}
}

// New creates a root logical transaction owned by the given module.
func New(module string, opts ...Option) *Trx {
	t := &Trx{
		ID:     uuid.NewString(),
		Module: module,
		bag:    make(map[string]any),
	}
	t.root = t
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Join returns a handle onto the same logical transaction for another
// module. The handle shares the transaction id and context bag.
func (t *Trx) Join(module string) *Trx {
	return &Trx{
		ID:         t.ID,
		Module:     module,
		Idempotent: t.Idempotent,
		root:       t.Root(),
	}
}

// Root returns the root of the transaction tree.
func (t *Trx) Root() *Trx {
	if t.root == nil {
		return t
	}
	return t.root
}

// Set stores a value in the transaction tree's context bag.
func (t *Trx) Set(key string, value any) {
	root := t.Root()
	root.mu.Lock()
	defer root.mu.Unlock()
	if root.bag == nil {
		root.bag = make(map[string]any)
	}
	root.bag[key] = value
}

// Get retrieves a value from the transaction tree's context bag.
func (t *Trx) Get(key string) (any, bool) {
	root := t.Root()
	root.mu.Lock()
	defer root.mu.Unlock()
	v, ok := root.bag[key]
	return v, ok
}

// Delete removes a value from the transaction tree's context bag.
func (t *Trx) Delete(key string) {
	root := t.Root()
	root.mu.Lock()
	defer root.mu.Unlock()
	delete(root.bag, key)
}
