package migrate

import (
	"log/slog"

	"github.com/syssam/pgbucket"
)

// Resolver supplies the judgment the reviewer cannot make alone: picking
// among ambiguous options, filling required defaults and cast expressions,
// and approving the final change-set. The CLI provides an interactive
// implementation; programmatic callers provide a deterministic one.
type Resolver interface {
	// Pick chooses among mutually exclusive options, by index.
	Pick(table string, options []string) (int, error)
	// DefaultForCreate supplies the fill value for historical rows when a
	// NOT NULL column joins an existing table.
	DefaultForCreate(table, column string) (string, error)
	// DefaultForDrop supplies the fill value used when rollback re-adds a
	// dropped NOT NULL column.
	DefaultForDrop(table, column string) (string, error)
	// Cast supplies the cast expression for a type change. suggested is
	// the plain cast; direction is "up" or "down".
	Cast(table, column, from, to, direction, suggested string) (string, error)
	// Approve reviews the finalized migration. Returning false aborts
	// generation with no artifact.
	Approve(m *Migration) (bool, error)
}

// AutoResolver is the non-interactive resolver: it refuses ambiguity,
// refuses missing values, keeps suggested casts and approves the result.
// With it, generation either needs no judgment or aborts.
type AutoResolver struct{}

// Pick returns an error because the resolver cannot pick.
func (AutoResolver) Pick(table string, options []string) (int, error) {
	return 0, &pgbucket.UnresolvedStepError{Table: table, Options: len(options)}
}

// DefaultForCreate returns an error because the resolver cannot supply a default.
func (AutoResolver) DefaultForCreate(table, column string) (string, error) {
	return "", &pgbucket.MissingValueError{Table: table, Column: column, What: "default"}
}

// DefaultForDrop returns an error because the resolver cannot supply a default.
func (AutoResolver) DefaultForDrop(table, column string) (string, error) {
	return "", &pgbucket.MissingValueError{Table: table, Column: column, What: "rollback default"}
}

// Cast keeps the suggested plain cast.
func (AutoResolver) Cast(table, column, from, to, direction, suggested string) (string, error) {
	return suggested, nil
}

// Approve accepts the migration.
func (AutoResolver) Approve(m *Migration) (bool, error) {
	return true, nil
}

// Review walks the plan's steps in order, auto-selects unambiguous
// options, consults the resolver for the rest, and enriches destructive
// operations with their required values. It returns nil when the plan
// resolves to zero net operations or the resolver rejects the result.
// Any resolution that cannot proceed aborts the whole table's generation;
// partial migrations are never emitted.
func Review(module string, plan *Plan, r Resolver) (*Migration, error) {
	var fields []FieldOp
	for _, step := range plan.Steps {
		var live []int
		for _, i := range step.Options {
			if !plan.Excluded(i) {
				live = append(live, i)
			}
		}

		var opt *Option
		switch len(live) {
		case 0:
			continue
		case 1:
			opt = plan.Option(live[0])
		default:
			descriptions := make([]string, len(live))
			for i, j := range live {
				descriptions[i] = plan.Option(j).Field.Describe()
			}
			picked, err := r.Pick(plan.Table, descriptions)
			if err != nil {
				return nil, err
			}
			opt = plan.Option(live[picked])
		}
		opt.Selected = true

		field := opt.Field
		switch op := field.Op.(type) {
		case CreateColumn:
			// Adding NOT NULL to an existing table needs a fill value for
			// rows that predate the column.
			if plan.Kind == KindAlter && !op.Nullable {
				def, err := r.DefaultForCreate(plan.Table, field.Column)
				if err != nil {
					return nil, err
				}
				op.Default = def
				field.Op = op
			}
		case DropColumn:
			if !op.Nullable {
				def, err := r.DefaultForDrop(plan.Table, field.Column)
				if err != nil {
					return nil, err
				}
				op.Default = def
				field.Op = op
			}
		case AlterColumnType:
			up, err := r.Cast(plan.Table, field.Column, op.From, op.To, "up", field.Column+"::"+op.To)
			if err != nil {
				return nil, err
			}
			down, err := r.Cast(plan.Table, field.Column, op.From, op.To, "down", field.Column+"::"+op.From)
			if err != nil {
				return nil, err
			}
			op.UsingUp, op.UsingDown = up, down
			field.Op = op
		}
		fields = append(fields, field)
	}

	if len(fields) == 0 {
		return nil, nil
	}
	m := NewMigration(module, plan.Kind, plan.Table, fields)
	ok, err := r.Approve(m)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("migration rejected by manual review", "table", plan.Table)
		return nil, nil
	}
	return m, nil
}
