package nql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/syssam/pgbucket"
)

// TableResolver maps bucket names to table names for sub-queries.
type TableResolver interface {
	ResolveTable(bucket string) (string, error)
}

// Compiler turns query trees into parameterized statements for one table.
type Compiler struct {
	Table    string
	Resolver TableResolver
}

// Statement is a compiled query, ready to execute.
type Statement struct {
	Table  string
	Select string
	Where  string
	Order  string
	Limit  string
	Args   []any
}

// SQL renders the data statement.
func (s *Statement) SQL() string {
	sel := "*"
	if s.Select != "" {
		sel = quoteIdent(s.Select)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", sel, quoteIdent(s.Table))
	for _, part := range []string{s.Where, s.Order, s.Limit} {
		if part != "" {
			b.WriteByte(' ')
			b.WriteString(part)
		}
	}
	return b.String()
}

// CountSQL renders the companion count statement. It shares Args with SQL.
func (s *Statement) CountSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT count(*) FROM %s", quoteIdent(s.Table))
	if s.Where != "" {
		b.WriteByte(' ')
		b.WriteString(s.Where)
	}
	return b.String()
}

// Compile builds the statement for q. Each entry of params compiles the
// tree once against that parameter row; rows sharing an "id" value are
// compiled once, and the per-row conditions are OR-ed together with
// duplicates removed. templates is aligned with params by index.
func (c *Compiler) Compile(q Query, params []map[string]any, templates []map[string]string, page *Pagination) (*Statement, error) {
	cc := &compilation{resolver: c.Resolver}

	rows := params
	if len(rows) == 0 {
		rows = []map[string]any{nil}
	}
	var (
		wheres  []string
		seen    = map[string]bool{}
		seenIDs = map[string]bool{}
	)
	for i, row := range rows {
		if id, ok := row["id"]; ok {
			key := fmt.Sprintf("%v", id)
			if seenIDs[key] {
				continue
			}
			seenIDs[key] = true
		}
		var tmpl map[string]string
		if i < len(templates) {
			tmpl = templates[i]
		}
		where, err := cc.union(q.Union, row, tmpl)
		if err != nil {
			return nil, err
		}
		if where == "" || seen[where] {
			continue
		}
		seen[where] = true
		wheres = append(wheres, where)
	}

	stmt := &Statement{Table: c.Table, Select: q.Select, Args: cc.args}
	switch len(wheres) {
	case 0:
	case 1:
		stmt.Where = "WHERE " + wheres[0]
	default:
		for i := range wheres {
			wheres[i] = "(" + wheres[i] + ")"
		}
		stmt.Where = "WHERE " + strings.Join(wheres, " OR ")
	}
	stmt.Order = compileSort(q.Union.Sort)
	stmt.Limit = compileLimit(page)
	return stmt, nil
}

// compilation holds per-Compile state: the argument list and the value
// dedup index backing $N placeholders.
type compilation struct {
	resolver TableResolver
	args     []any
	index    map[string]int
}

// bind returns the $N placeholder for v, reusing an existing slot when an
// equal value was bound before.
func (cc *compilation) bind(v any) string {
	key := fmt.Sprintf("%T\x00%v", v, v)
	if cc.index == nil {
		cc.index = map[string]int{}
	}
	if n, ok := cc.index[key]; ok {
		return fmt.Sprintf("$%d", n)
	}
	cc.args = append(cc.args, v)
	n := len(cc.args)
	cc.index[key] = n
	return fmt.Sprintf("$%d", n)
}

func (cc *compilation) union(u Union, row map[string]any, tmpl map[string]string) (string, error) {
	var parts []string
	for _, in := range u.Inters {
		s, err := cc.inter(in, row, tmpl)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, "("+s+")")
		}
	}
	return strings.Join(parts, " OR "), nil
}

func (cc *compilation) inter(in Inter, row map[string]any, tmpl map[string]string) (string, error) {
	var parts []string
	for _, n := range in.Nodes {
		var (
			s   string
			err error
		)
		switch n := n.(type) {
		case Rule:
			s, err = cc.rule(n, row, tmpl)
		case Union:
			s, err = cc.union(n, row, tmpl)
			if s != "" {
				s = "(" + s + ")"
			}
		default:
			err = fmt.Errorf("nql: unknown node type %T", n)
		}
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " AND "), nil
}

// rule compiles a single comparison. It returns "" when the rule binds a
// parameter that is absent from the row: such rules are dropped rather
// than matched against NULL.
func (cc *compilation) rule(r Rule, row map[string]any, tmpl map[string]string) (string, error) {
	if r.Op == OpContainsAny {
		return "", fmt.Errorf("%w: %s", pgbucket.ErrUnsupportedOperator, r.Op)
	}
	column := compileFieldpath(r.Fieldpath)
	not := ""
	if r.Not {
		not = "NOT "
	}

	if r.Op == OpPresent {
		if r.Not {
			return column + " IS NULL", nil
		}
		return column + " IS NOT NULL", nil
	}

	if sq, ok := r.Value.(Subquery); ok {
		return cc.subquery(r, sq, column, not, row, tmpl)
	}

	v, ok, err := cc.resolve(r.Value, row, tmpl)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	op := r.Op.String()
	switch r.Op {
	case OpEq:
		op = "="
		if r.CaseI {
			column = "LOWER(" + column + ")"
			if s, ok := v.(string); ok {
				v = strings.ToLower(s)
			}
		}
	case OpIn:
		op = "IN"
	case OpContains:
		column += "::text"
		op = "LIKE"
		if r.CaseI {
			op = "ILIKE"
		}
		v = fmt.Sprintf("%%%v%%", v)
	}

	if vs, ok := asSlice(v); ok {
		if len(vs) == 0 {
			if r.Not {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		ps := make([]string, len(vs))
		for i, e := range vs {
			ps[i] = cc.bind(e)
		}
		return fmt.Sprintf("%s%s %s (%s)", not, column, op, strings.Join(ps, ", ")), nil
	}
	return fmt.Sprintf("%s%s %s (%s)", not, column, op, cc.bind(v)), nil
}

func (cc *compilation) subquery(r Rule, sq Subquery, column, not string, row map[string]any, tmpl map[string]string) (string, error) {
	if cc.resolver == nil {
		return "", fmt.Errorf("nql: sub-query on bucket %q without a table resolver", sq.Bucket)
	}
	table, err := cc.resolver.ResolveTable(sq.Bucket)
	if err != nil {
		return "", err
	}
	inner, err := cc.union(sq.Union, row, tmpl)
	if err != nil {
		return "", err
	}
	sel := fmt.Sprintf("SELECT %s FROM %s", quoteIdent(sq.Select), quoteIdent(table))
	if inner != "" {
		sel += " WHERE " + inner
	}
	op := r.Op.String()
	switch r.Op {
	case OpEq:
		op = "="
	case OpIn:
		op = "IN"
	case OpContains:
		return "", fmt.Errorf("%w: %s on sub-query", pgbucket.ErrUnsupportedOperator, r.Op)
	}
	return fmt.Sprintf("%s%s %s (%s)", not, column, op, sel), nil
}

// resolve produces the rule's right-hand value. ok is false when the rule
// should be dropped.
func (cc *compilation) resolve(v Value, row map[string]any, tmpl map[string]string) (any, bool, error) {
	switch v := v.(type) {
	case Static:
		return v.V, true, nil
	case Param:
		got, ok := treeGet(row, v.Path)
		return got, ok, nil
	case Params:
		var vs []any
		for _, p := range v.Paths {
			if got, ok := treeGet(row, p); ok {
				vs = append(vs, got)
			}
		}
		if len(vs) == 0 {
			return nil, false, nil
		}
		return vs, true, nil
	case Template:
		path := v.Path
		for k, repl := range tmpl {
			path = strings.ReplaceAll(path, "$"+k, repl)
		}
		if strings.Contains(path, "$") {
			return nil, false, nil
		}
		got, ok := treeGet(row, path)
		return got, ok, nil
	default:
		return nil, false, fmt.Errorf("nql: unknown value type %T", v)
	}
}

// treeGet descends a dotted path through nested maps.
func treeGet(m map[string]any, path string) (any, bool) {
	if m == nil {
		return nil, false
	}
	cur := any(m)
	for _, seg := range strings.Split(path, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// compileFieldpath renders a dotted field path as a column reference.
// A bare name becomes a quoted identifier; a dotted path descends into
// JSONB with -> arrows, extracting the final segment as text.
func compileFieldpath(path string) string {
	segs := strings.Split(path, ".")
	if len(segs) == 1 {
		return quoteIdent(path)
	}
	var b strings.Builder
	b.WriteString(segs[0])
	for _, seg := range segs[1 : len(segs)-1] {
		fmt.Fprintf(&b, "->'%s'", seg)
	}
	fmt.Fprintf(&b, "->>'%s'", segs[len(segs)-1])
	return b.String()
}

func compileSort(sorts []Sort) string {
	if len(sorts) == 0 {
		return ""
	}
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts[i] = compileFieldpath(s.Key) + " " + dir
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// compileLimit renders the slicing clause. A nil page means no slicing; a
// negative page size disables slicing explicitly; zero asks for an empty
// (count-only) result.
func compileLimit(page *Pagination) string {
	if page == nil {
		return ""
	}
	per := 10
	if page.PerPage != nil {
		per = *page.PerPage
	}
	if per < 0 {
		return ""
	}
	p := page.Page
	if p < 1 {
		p = 1
	}
	return fmt.Sprintf("OFFSET %d LIMIT %d", (p-1)*per, per)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// asSlice reports whether v is a list value and returns its elements.
func asSlice(v any) ([]any, bool) {
	switch v := v.(type) {
	case []any:
		return v, true
	case []string:
		vs := make([]any, len(v))
		for i, e := range v {
			vs[i] = e
		}
		return vs, true
	case []int:
		vs := make([]any, len(v))
		for i, e := range v {
			vs[i] = e
		}
		return vs, true
	case []float64:
		vs := make([]any, len(v))
		for i, e := range v {
			vs[i] = e
		}
		return vs, true
	}
	return nil, false
}

// SortKeys returns the map's keys in deterministic order. Used by callers
// that render maps into SQL fragments.
func SortKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
