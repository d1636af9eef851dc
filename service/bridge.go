package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/syssam/pgbucket"
	"github.com/syssam/pgbucket/dialect"
	"github.com/syssam/pgbucket/trx"
)

type txState int

const (
	txOpen txState = iota
	txOK
	txError
)

// dbTx tracks one native database transaction bound to a logical
// transaction id. The goroutine started at begin holds the native scope:
// it blocks on decide until Commit or Rollback signals it, performs the
// physical operation, and reports the outcome on done. This keeps the
// guarantee that the logical commit only resolves after the physical
// commit is durable.
type dbTx struct {
	owner  string // module that performed begin; gates registry cleanup
	state  txState
	tx     dialect.Tx
	decide chan bool // true: commit, false: rollback
	done   chan error
}

func (e *dbTx) run() {
	if <-e.decide {
		e.done <- e.tx.Commit()
		return
	}
	e.done <- e.tx.Rollback()
}

// Bridge maps logical transactions onto native database transactions for
// one service. It is owned by the Service and never global: every Service
// carries its own registry, keyed by logical transaction id.
//
// Invariant: at most one open native transaction exists per logical id,
// regardless of how many modules touch that id.
type Bridge struct {
	service string
	drv     dialect.Driver

	mu      sync.Mutex
	entries map[string]*dbTx
}

// NewBridge creates a Bridge for the given service over the given driver.
func NewBridge(service string, drv dialect.Driver) *Bridge {
	return &Bridge{
		service: service,
		drv:     drv,
		entries: make(map[string]*dbTx),
	}
}

// handleKey is the context-bag key under which the live connection or
// transaction handle is exposed to bucket operations.
func (b *Bridge) handleKey() string {
	return b.service + ".sql"
}

// Open reports whether a native transaction is currently registered for
// the given logical id.
func (b *Bridge) Open(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[id]
	return ok
}

// Begin is called when a logical transaction starts on this service, or
// when one started on module A extends to module B.
//
// Idempotent transactions never open a native transaction: the ambient
// connection is exposed directly and no registry entry is created. A
// non-idempotent transaction whose id is already registered reuses the
// open native transaction (re-entrancy); otherwise a new one is started.
func (b *Bridge) Begin(ctx context.Context, t *trx.Trx) error {
	if t.Idempotent {
		t.Set(b.handleKey(), b.drv)
		return nil
	}
	// Check-then-create happens under one lock hold so two begins for the
	// same id cannot race into two native transactions.
	b.mu.Lock()
	if e, ok := b.entries[t.ID]; ok {
		b.mu.Unlock()
		t.Set(b.handleKey(), e.tx)
		return nil
	}
	tx, err := b.drv.Tx(ctx)
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("begin transaction %s on service %s: %w", t.ID, b.service, err)
	}
	e := &dbTx{
		owner:  t.Module,
		state:  txOpen,
		tx:     tx,
		decide: make(chan bool, 1),
		done:   make(chan error, 1),
	}
	b.entries[t.ID] = e
	b.mu.Unlock()

	go e.run()
	t.Set(b.handleKey(), tx)
	slog.Info("transaction started on postgres service", "trx", t.ID, "service", b.service)
	return nil
}

// Continue is called when an ongoing logical transaction is requested
// again, either from the same module or due to asynchronous behavior. The
// entry must already exist for non-idempotent transactions.
func (b *Bridge) Continue(_ context.Context, t *trx.Trx) error {
	if t.Idempotent {
		t.Set(b.handleKey(), b.drv)
		return nil
	}
	b.mu.Lock()
	e, ok := b.entries[t.ID]
	b.mu.Unlock()
	if !ok {
		return pgbucket.NewCriticalProtocolError("continue", t.ID, "transaction no longer available (already committed/rolledback)")
	}
	t.Set(b.handleKey(), e.tx)
	return nil
}

// Commit resolves the logical transaction successfully. The first commit
// for an id performs the physical commit and blocks until it completes; a
// later commit from a sibling module is a harmless duplicate. Commit after
// a rollback is a contradiction and fails with a critical error. The
// registry entry is removed only by the module that performed Begin.
func (b *Bridge) Commit(_ context.Context, t *trx.Trx) error {
	return b.finish(t, "commit", true)
}

// Rollback resolves the logical transaction with failure, with semantics
// symmetric to Commit: first rollback performs the physical rollback,
// duplicates are no-ops, rollback after a commit is a contradiction.
func (b *Bridge) Rollback(_ context.Context, t *trx.Trx) error {
	return b.finish(t, "rollback", false)
}

func (b *Bridge) finish(t *trx.Trx, op string, commit bool) error {
	if t.Idempotent {
		return nil
	}
	b.mu.Lock()
	e, ok := b.entries[t.ID]
	if !ok {
		b.mu.Unlock()
		return pgbucket.NewCriticalProtocolError(op, t.ID, "transaction no longer available (already committed/rolledback)")
	}
	target, opposite := txOK, txError
	if !commit {
		target, opposite = txError, txOK
	}
	switch e.state {
	case target:
		// Already resolved the same way by a sibling module.
		if e.owner == t.Module {
			delete(b.entries, t.ID)
		}
		b.mu.Unlock()
		return nil
	case opposite:
		b.mu.Unlock()
		if commit {
			return pgbucket.NewCriticalProtocolError(op, t.ID, "transaction previously rolledback")
		}
		return pgbucket.NewCriticalProtocolError(op, t.ID, "transaction previously committed")
	case txOpen:
		e.state = target
	}
	b.mu.Unlock()

	e.decide <- commit
	err := <-e.done

	b.mu.Lock()
	if err != nil {
		// A failed physical commit/rollback leaves nothing to reuse.
		delete(b.entries, t.ID)
	} else if e.owner == t.Module {
		delete(b.entries, t.ID)
	}
	b.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%s transaction %s on service %s: %w", op, t.ID, b.service, err)
	}
	slog.Info("transaction resolved on postgres service", "trx", t.ID, "service", b.service, "op", op)
	return nil
}

// Handle returns the connection or transaction handle exposed for this
// service on the given logical transaction.
func Handle(t *trx.Trx, service string) (dialect.ExecQuerier, error) {
	v, ok := t.Get(service + ".sql")
	if !ok {
		return nil, fmt.Errorf("no sql handle for service %q on transaction %s: did you configure the trx wrap for this module?", service, t.ID)
	}
	conn, ok := v.(dialect.ExecQuerier)
	if !ok {
		return nil, fmt.Errorf("invalid sql handle for service %q on transaction %s", service, t.ID)
	}
	return conn, nil
}
