package service

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgbucket"
	"github.com/syssam/pgbucket/dialect"
	"github.com/syssam/pgbucket/dialect/sql"
	"github.com/syssam/pgbucket/trx"
)

// countingWrap wraps the service hooks with invocation counters, standing
// in for the engine-side spies.
type countingWrap struct {
	Wrap
	begins, continues, commits, rollbacks int
}

func newCountingWrap(s *Service) *countingWrap {
	w := &countingWrap{}
	inner := s.Wrap()
	w.Wrap = Wrap{
		Begin: func(ctx context.Context, t *trx.Trx) error {
			w.begins++
			return inner.Begin(ctx, t)
		},
		Continue: func(ctx context.Context, t *trx.Trx) error {
			w.continues++
			return inner.Continue(ctx, t)
		},
		Commit: func(ctx context.Context, t *trx.Trx) error {
			w.commits++
			return inner.Commit(ctx, t)
		},
		Rollback: func(ctx context.Context, t *trx.Trx) error {
			w.rollbacks++
			return inner.Rollback(ctx, t)
		},
	}
	return w
}

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	s := New("pg", Config{}).OpenWith(sql.OpenDB("postgres", db))
	return s, mk
}

func TestBridgeSingleModuleCommit(t *testing.T) {
	s, mk := newMockService(t)
	ctx := context.Background()

	mk.ExpectBegin()
	mk.ExpectCommit()

	a := trx.New("module_a")
	require.NoError(t, s.Bridge().Begin(ctx, a))
	require.True(t, s.Bridge().Open(a.ID))

	// The exposed handle is the native transaction, not the ambient driver.
	h, err := Handle(a, "pg")
	require.NoError(t, err)
	_, isTx := h.(dialect.Tx)
	require.True(t, isTx)

	require.NoError(t, s.Bridge().Commit(ctx, a))
	require.False(t, s.Bridge().Open(a.ID))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestBridgeReentrancyCommit(t *testing.T) {
	s, mk := newMockService(t)
	ctx := context.Background()
	w := newCountingWrap(s)

	// Exactly one native begin and one native commit, no rollback.
	mk.ExpectBegin()
	mk.ExpectCommit()

	a := trx.New("module_a")
	b := a.Join("module_b")

	require.NoError(t, w.Begin(ctx, a))
	require.NoError(t, w.Continue(ctx, b))
	require.NoError(t, w.Commit(ctx, a))

	require.Equal(t, 1, w.begins)
	require.Equal(t, 1, w.continues)
	require.Equal(t, 1, w.commits)
	require.Equal(t, 0, w.rollbacks)
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestBridgeReentrancyRollback(t *testing.T) {
	s, mk := newMockService(t)
	ctx := context.Background()
	w := newCountingWrap(s)

	mk.ExpectBegin()
	mk.ExpectRollback()

	a := trx.New("module_a")
	b := a.Join("module_b")

	require.NoError(t, w.Begin(ctx, a))
	require.NoError(t, w.Continue(ctx, b))
	require.NoError(t, w.Rollback(ctx, a))

	require.Equal(t, 1, w.begins)
	require.Equal(t, 1, w.continues)
	require.Equal(t, 0, w.commits)
	require.Equal(t, 1, w.rollbacks)
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestBridgeSecondBeginReusesNativeTx(t *testing.T) {
	s, mk := newMockService(t)
	ctx := context.Background()

	// Two modules both call Begin for the same logical id: one native
	// begin, one native commit.
	mk.ExpectBegin()
	mk.ExpectCommit()

	a := trx.New("module_a")
	b := a.Join("module_b")

	require.NoError(t, s.Bridge().Begin(ctx, a))
	require.NoError(t, s.Bridge().Begin(ctx, b))

	// The non-owner commit performs the physical commit but keeps the
	// registry entry for the owner.
	require.NoError(t, s.Bridge().Commit(ctx, b))
	require.True(t, s.Bridge().Open(a.ID))

	// The owner's duplicate commit is a no-op that clears the entry.
	require.NoError(t, s.Bridge().Commit(ctx, a))
	require.False(t, s.Bridge().Open(a.ID))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestBridgeIdempotent(t *testing.T) {
	s, mk := newMockService(t)
	ctx := context.Background()

	// No native transaction at all for idempotent transactions.
	a := trx.New("module_a", trx.Idempotent())
	require.NoError(t, s.Bridge().Begin(ctx, a))
	require.False(t, s.Bridge().Open(a.ID))

	h, err := Handle(a, "pg")
	require.NoError(t, err)
	_, isTx := h.(dialect.Tx)
	require.False(t, isTx)

	require.NoError(t, s.Bridge().Continue(ctx, a))
	require.NoError(t, s.Bridge().Commit(ctx, a))
	require.NoError(t, s.Bridge().Rollback(ctx, a))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestBridgeProtocolErrors(t *testing.T) {
	s, mk := newMockService(t)
	ctx := context.Background()

	missing := trx.New("module_a")
	require.True(t, pgbucket.IsProtocol(s.Bridge().Continue(ctx, missing)))
	require.True(t, pgbucket.IsProtocol(s.Bridge().Commit(ctx, missing)))
	require.True(t, pgbucket.IsProtocol(s.Bridge().Rollback(ctx, missing)))

	// Rollback after commit is a contradiction.
	mk.ExpectBegin()
	mk.ExpectCommit()
	a := trx.New("module_a")
	b := a.Join("module_b")
	require.NoError(t, s.Bridge().Begin(ctx, a))
	require.NoError(t, s.Bridge().Begin(ctx, b))
	require.NoError(t, s.Bridge().Commit(ctx, b))

	err := s.Bridge().Rollback(ctx, b)
	require.True(t, pgbucket.IsProtocol(err))
	require.Contains(t, err.Error(), "previously committed")

	// Commit after rollback is the symmetric contradiction.
	mk.ExpectBegin()
	mk.ExpectRollback()
	c := trx.New("module_a")
	d := c.Join("module_b")
	require.NoError(t, s.Bridge().Begin(ctx, c))
	require.NoError(t, s.Bridge().Begin(ctx, d))
	require.NoError(t, s.Bridge().Rollback(ctx, d))

	err = s.Bridge().Commit(ctx, d)
	require.True(t, pgbucket.IsProtocol(err))
	require.Contains(t, err.Error(), "previously rolledback")
}

func TestBridgeIndependentServices(t *testing.T) {
	s1, mk1 := newMockService(t)
	db2, mk2, err := sqlmock.New()
	require.NoError(t, err)
	s2 := New("pg_audit", Config{}).OpenWith(sql.OpenDB("postgres", db2))
	ctx := context.Background()

	// One logical transaction fanning out to two services opens one
	// native transaction per service.
	mk1.ExpectBegin()
	mk2.ExpectBegin()
	mk1.ExpectCommit()
	mk2.ExpectCommit()

	a := trx.New("module_a")
	require.NoError(t, s1.Bridge().Begin(ctx, a))
	require.NoError(t, s2.Bridge().Begin(ctx, a))

	h1, err := Handle(a, "pg")
	require.NoError(t, err)
	h2, err := Handle(a, "pg_audit")
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)

	require.NoError(t, s1.Bridge().Commit(ctx, a))
	require.NoError(t, s2.Bridge().Commit(ctx, a))
	require.NoError(t, mk1.ExpectationsWereMet())
	require.NoError(t, mk2.ExpectationsWereMet())
}

func TestHandleMissing(t *testing.T) {
	a := trx.New("module_a")
	_, err := Handle(a, "pg")
	require.Error(t, err)
	require.Contains(t, err.Error(), "trx wrap")
}
