package pgbucket

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// stateError mimics lib/pq's *pq.Error.
type stateError struct {
	state string
}

func (e *stateError) Error() string    { return "pq: constraint violated" }
func (e *stateError) SQLState() string { return e.state }

func TestClassifyConstraintBySQLState(t *testing.T) {
	cases := []struct {
		state string
		kind  ConstraintKind
	}{
		{"23505", ConstraintUnique},
		{"23503", ConstraintForeignKey},
		{"23514", ConstraintCheck},
		{"23502", ConstraintNotNull},
	}
	for _, tc := range cases {
		kind, ok := ClassifyConstraint(&stateError{state: tc.state})
		require.True(t, ok)
		require.Equal(t, tc.kind, kind)

		// Classification sees through wrapping.
		kind, ok = ClassifyConstraint(fmt.Errorf("create: %w", &stateError{state: tc.state}))
		require.True(t, ok)
		require.Equal(t, tc.kind, kind)
	}

	_, ok := ClassifyConstraint(&stateError{state: "42P01"})
	require.False(t, ok)
	_, ok = ClassifyConstraint(nil)
	require.False(t, ok)
}

func TestClassifyConstraintByMessage(t *testing.T) {
	kind, ok := ClassifyConstraint(errors.New(`pq: duplicate key value violates unique constraint "shapes_pkey"`))
	require.True(t, ok)
	require.Equal(t, ConstraintUnique, kind)
	require.True(t, IsUniqueViolation(errors.New(`pq: duplicate key value violates unique constraint "shapes_pkey"`)))
	require.True(t, IsForeignKeyViolation(errors.New(`pq: insert or update on table "shapes" violates foreign key constraint "fk_color_id_colors"`)))
	require.False(t, IsUniqueViolation(errors.New("pq: connection refused")))
}

func TestConstraintError(t *testing.T) {
	cause := &stateError{state: "23505"}
	err := NewConstraintError("create", ConstraintUnique, cause)

	require.True(t, errors.Is(err, ErrConstraint))
	// A constraint violation is still a database error.
	require.True(t, errors.Is(err, ErrDatabase))
	require.Equal(t, "pgbucket: unique constraint violation", err.Error())
	require.ErrorIs(t, err, cause)
}
