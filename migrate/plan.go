package migrate

import (
	"strings"

	"github.com/syssam/pgbucket/bucket"
)

// Option is one candidate operation inside a step. All options live in the
// plan's arena; exclusions reference other options by arena index.
type Option struct {
	Field    FieldOp
	Selected bool
	// ExcludedBy lists options whose selection invalidates this one. A
	// rename option chosen for a missing field excludes the drop option of
	// its source column.
	ExcludedBy []int
}

// Step is one decision point: a set of mutually exclusive options. Most
// steps have a single option and resolve automatically.
type Step struct {
	Options []int
}

// Plan is the ordered list of proposed steps for one table.
type Plan struct {
	Kind    Kind
	Table   string
	Options []*Option
	Steps   []Step
}

// Excluded reports whether the option at index i is invalidated by a
// selected option.
func (p *Plan) Excluded(i int) bool {
	for _, j := range p.Option(i).ExcludedBy {
		if p.Option(j).Selected {
			return true
		}
	}
	return false
}

// Option returns the arena entry at index i.
func (p *Plan) Option(i int) *Option {
	return p.Options[i]
}

func (p *Plan) add(f FieldOp) int {
	p.Options = append(p.Options, &Option{Field: f})
	return len(p.Options) - 1
}

// PlanTable diffs the declared schema against the table's current columns
// and produces the ordered step list. current is nil when the table does
// not exist, in which case the plan is a full table creation including the
// audit columns.
func PlanTable(schema *bucket.Schema, current *Introspection, meta bucket.MetaFields) (*Plan, error) {
	p := &Plan{Kind: KindCreate, Table: schema.Table}
	if current != nil {
		p.Kind = KindAlter
	}

	// Drop candidates first: columns no schema field maps to. Their steps
	// go last, but rename options need their indices up front.
	var dropOrder []string
	drops := map[string]int{}
	if current != nil {
		for _, col := range current.Columns {
			if col.FieldExists {
				continue
			}
			drops[col.Name] = p.add(FieldOp{Column: col.Name, Op: DropColumn{
				Type:     col.SQLType,
				Nullable: col.Nullable,
			}})
			dropOrder = append(dropOrder, col.Name)
		}
	}

	for _, field := range schema.Fields {
		steps, err := p.fieldSteps(field, current, drops)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, steps...)
	}

	// Audit columns are appended once, only on table creation.
	if current == nil {
		for _, name := range []string{meta.CreatedBy, meta.CreatedAt, meta.UpdatedBy, meta.UpdatedAt} {
			op := CreateColumn{Type: "timestamp without time zone"}
			if name == meta.CreatedBy || name == meta.UpdatedBy {
				op = CreateColumn{Type: "character(64)", Nullable: true}
			}
			p.Steps = append(p.Steps, Step{Options: []int{p.add(FieldOp{Column: name, Op: op})}})
		}
	}

	for _, name := range dropOrder {
		p.Steps = append(p.Steps, Step{Options: []int{drops[name]}})
	}
	return p, nil
}

func (p *Plan) fieldSteps(field bucket.Field, current *Introspection, drops map[string]int) ([]Step, error) {
	typ, err := FieldSQLType(field)
	if err != nil {
		return nil, err
	}
	nullable := !field.Required
	pk := field.Name == "id"

	// No table yet: the only option is to create the column.
	if current == nil {
		return []Step{{Options: []int{p.add(FieldOp{Column: field.Name, Op: CreateColumn{
			Type:     typ,
			Nullable: nullable,
			PK:       pk,
		}})}}}, nil
	}

	if col, ok := current.Column(field.Name); ok {
		// The id column is immutable for now.
		if pk {
			return nil, nil
		}
		// TODO: compare decimal precision and maxLength changes, not just
		// the base type prefix.
		var steps []Step
		if !strings.HasPrefix(typ, col.SQLType) {
			steps = append(steps, Step{Options: []int{p.add(FieldOp{Column: field.Name, Op: AlterColumnType{
				From: col.SQLType,
				To:   typ,
			}})}})
		}
		if col.Nullable != nullable {
			steps = append(steps, Step{Options: []int{p.add(FieldOp{Column: field.Name, Op: AlterColumnNull{
				From: col.Nullable,
				To:   nullable,
			}})}})
		}
		return steps, nil
	}

	// The field has no column: it is either new, or an unmapped column of
	// the same type being renamed. Both are offered; selecting a rename
	// excludes the source column's drop option.
	options := []int{p.add(FieldOp{Column: field.Name, Op: CreateColumn{
		Type:     typ,
		Nullable: nullable,
		PK:       pk,
	}})}
	for _, col := range current.Columns {
		if col.FieldExists || !strings.HasPrefix(typ, col.SQLType) {
			continue
		}
		rename := p.add(FieldOp{Column: col.Name, Op: RenameColumn{To: field.Name}})
		options = append(options, rename)
		if drop, ok := drops[col.Name]; ok {
			p.Option(drop).ExcludedBy = append(p.Option(drop).ExcludedBy, rename)
		}
	}
	return []Step{{Options: options}}, nil
}
