// Package nql compiles the engine's declarative query trees into
// parameterized PostgreSQL statements.
//
// A query is a union of intersections of rules. Rules compare a field path
// (possibly reaching into JSONB columns) against a static value, a
// parameter looked up in a per-row parameter object, a parameter template,
// or a correlated sub-query against another bucket.
package nql

// Op enumerates the rule operators supported by the query language.
type Op int

const (
	OpEq Op = iota
	OpLt
	OpGt
	OpLte
	OpGte
	OpIn
	OpContains
	OpContainsAny
	OpPresent
)

// String returns the query-language spelling of the operator.
func (op Op) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpLt:
		return "<"
	case OpGt:
		return ">"
	case OpLte:
		return "<="
	case OpGte:
		return ">="
	case OpIn:
		return "in"
	case OpContains:
		return "contains"
	case OpContainsAny:
		return "contains_any"
	case OpPresent:
		return "present"
	}
	return "invalid"
}

// Node is a boolean expression node: a Rule or a nested Union.
type Node interface {
	isNode()
}

// Union is a disjunction of intersections.
type Union struct {
	Inters []Inter
	// Sort lists the explicit sort keys, applied in order.
	Sort []Sort
}

func (Union) isNode() {}

// Inter is a conjunction of nodes.
type Inter struct {
	Nodes []Node
}

// Rule is a single comparison.
type Rule struct {
	// Fieldpath is a dotted path; segments after the first descend into a
	// JSONB column.
	Fieldpath string
	Op        Op
	// Not negates the rule.
	Not bool
	// CaseI makes the comparison case-insensitive.
	CaseI bool
	Value Value
}

func (Rule) isNode() {}

// Value is a tagged variant: exactly one way of producing the rule's
// right-hand side.
type Value interface {
	isValue()
}

// Static is a literal value.
type Static struct {
	V any
}

func (Static) isValue() {}

// Param resolves a dotted path in the per-row parameter object.
type Param struct {
	Path string
}

func (Param) isValue() {}

// Params resolves several dotted paths into one list value.
type Params struct {
	Paths []string
}

func (Params) isValue() {}

// Template is a dotted path containing $0, $1, ... placeholders that are
// textually substituted from the per-row template map before lookup.
type Template struct {
	Path string
}

func (Template) isValue() {}

// Subquery embeds a correlated sub-query against another bucket.
type Subquery struct {
	Bucket string
	Select string
	Union  Union
}

func (Subquery) isValue() {}

// Sort is one sort key.
type Sort struct {
	Key  string
	Desc bool
}

// Pagination controls result slicing. A nil PerPage means "unset".
type Pagination struct {
	Page        int
	PerPage     *int
	ReturnTotal bool
}

// PerPage is a convenience constructor for a Pagination with the given
// page size.
func PerPage(n int) *Pagination {
	return &Pagination{PerPage: &n}
}

// Query is a compiled unit: the boolean tree plus an optional single
// column projection.
type Query struct {
	Union  Union
	Select string
}

// Field starts a rule builder for the given field path.
func Field(path string) FieldRef {
	return FieldRef{path: path}
}

// FieldRef builds rules for one field path, in the style of the generated
// predicate helpers.
type FieldRef struct {
	path string
}

// Op builds a rule with an explicit operator and value variant.
func (f FieldRef) Op(op Op, v Value) Rule {
	return Rule{Fieldpath: f.path, Op: op, Value: v}
}

// Eq returns a rule matching the field against a static value.
func (f FieldRef) Eq(v any) Rule { return f.Op(OpEq, Static{V: v}) }

// Lt returns a strictly-less-than rule.
func (f FieldRef) Lt(v any) Rule { return f.Op(OpLt, Static{V: v}) }

// Gt returns a strictly-greater-than rule.
func (f FieldRef) Gt(v any) Rule { return f.Op(OpGt, Static{V: v}) }

// Lte returns a less-than-or-equal rule.
func (f FieldRef) Lte(v any) Rule { return f.Op(OpLte, Static{V: v}) }

// Gte returns a greater-than-or-equal rule.
func (f FieldRef) Gte(v any) Rule { return f.Op(OpGte, Static{V: v}) }

// In returns a membership rule.
func (f FieldRef) In(vs ...any) Rule { return f.Op(OpIn, Static{V: vs}) }

// Contains returns a substring rule.
func (f FieldRef) Contains(v any) Rule { return f.Op(OpContains, Static{V: v}) }

// ContainsAny returns a multi-substring rule. Not supported on SQL
// backends; compilation fails immediately.
func (f FieldRef) ContainsAny(vs ...any) Rule { return f.Op(OpContainsAny, Static{V: vs}) }

// Present returns a non-null rule. It never binds a parameter.
func (f FieldRef) Present() Rule { return f.Op(OpPresent, Static{}) }

// EqParam returns a rule whose value is looked up in the parameter row.
func (f FieldRef) EqParam(path string) Rule { return f.Op(OpEq, Param{Path: path}) }

// EqTemplate returns a rule whose value path carries $N placeholders.
func (f FieldRef) EqTemplate(path string) Rule { return f.Op(OpEq, Template{Path: path}) }

// Not negates the rule.
func (r Rule) Negate() Rule {
	r.Not = true
	return r
}

// Fold makes the rule case-insensitive.
func (r Rule) Fold() Rule {
	r.CaseI = true
	return r
}

// And groups nodes into one intersection.
func And(nodes ...Node) Inter {
	return Inter{Nodes: nodes}
}

// Or groups intersections into a union.
func Or(inters ...Inter) Union {
	return Union{Inters: inters}
}

// Match is the common single-intersection query: all nodes must hold.
func Match(nodes ...Node) Union {
	return Or(And(nodes...))
}

// SortBy attaches sort keys to the union.
func (u Union) SortBy(sorts ...Sort) Union {
	u.Sort = sorts
	return u
}
