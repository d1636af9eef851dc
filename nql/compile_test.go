package nql

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syssam/pgbucket"
)

type mapResolver map[string]string

func (m mapResolver) ResolveTable(bucket string) (string, error) {
	t, ok := m[bucket]
	if !ok {
		return "", fmt.Errorf("nql: unknown bucket %q", bucket)
	}
	return t, nil
}

func compile(t *testing.T, q Query, params []map[string]any, templates []map[string]string, page *Pagination) *Statement {
	t.Helper()
	c := &Compiler{Table: "shapes", Resolver: mapResolver{"color": "colors"}}
	stmt, err := c.Compile(q, params, templates, page)
	require.NoError(t, err)
	return stmt
}

func TestCompileStatic(t *testing.T) {
	stmt := compile(t, Query{Union: Match(Field("name").Eq("Shape 1"))}, nil, nil, nil)
	require.Equal(t, `SELECT * FROM "shapes" WHERE ("name" = ($1))`, stmt.SQL())
	require.Equal(t, []any{"Shape 1"}, stmt.Args)
}

func TestCompileOperators(t *testing.T) {
	tests := []struct {
		rule  Rule
		where string
		args  []any
	}{
		{Field("size").Lt(10), `"size" < ($1)`, []any{10}},
		{Field("size").Gt(10), `"size" > ($1)`, []any{10}},
		{Field("size").Lte(10), `"size" <= ($1)`, []any{10}},
		{Field("size").Gte(10), `"size" >= ($1)`, []any{10}},
		{Field("size").In(1, 2, 3), `"size" IN ($1, $2, $3)`, []any{1, 2, 3}},
		{Field("size").In(), "FALSE", nil},
		{Field("size").In().Negate(), "TRUE", nil},
		{Field("name").Contains("Sha"), `"name"::text LIKE ($1)`, []any{"%Sha%"}},
		{Field("name").Contains("Sha").Fold(), `"name"::text ILIKE ($1)`, []any{"%Sha%"}},
		{Field("name").Eq("Sha").Fold(), `LOWER("name") = ($1)`, []any{"sha"}},
		{Field("name").Eq("Sha").Negate(), `NOT "name" = ($1)`, []any{"Sha"}},
		{Field("name").Present(), `"name" IS NOT NULL`, nil},
		{Field("name").Present().Negate(), `"name" IS NULL`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			stmt := compile(t, Query{Union: Match(tt.rule)}, nil, nil, nil)
			require.Equal(t, fmt.Sprintf(`SELECT * FROM "shapes" WHERE (%s)`, tt.where), stmt.SQL())
			require.Equal(t, tt.args, stmt.Args)
		})
	}
}

func TestCompileFieldpath(t *testing.T) {
	require.Equal(t, `"props"`, compileFieldpath("props"))
	require.Equal(t, `props->>'color'`, compileFieldpath("props.color"))
	require.Equal(t, `props->'color'->>'hue'`, compileFieldpath("props.color.hue"))
}

func TestCompileDedupValues(t *testing.T) {
	q := Query{Union: Match(Field("a").Eq("x"), Field("b").Eq("x"), Field("c").Eq("y"))}
	stmt := compile(t, q, nil, nil, nil)
	require.Equal(t, `SELECT * FROM "shapes" WHERE ("a" = ($1) AND "b" = ($1) AND "c" = ($2))`, stmt.SQL())
	require.Equal(t, []any{"x", "y"}, stmt.Args)
}

func TestCompileUnionOfInters(t *testing.T) {
	q := Query{Union: Or(
		And(Field("kind").Eq("circle"), Field("size").Gt(3)),
		And(Field("kind").Eq("square")),
	)}
	stmt := compile(t, q, nil, nil, nil)
	require.Equal(t,
		`SELECT * FROM "shapes" WHERE ("kind" = ($1) AND "size" > ($2)) OR ("kind" = ($3))`,
		stmt.SQL())
}

func TestCompileNestedUnion(t *testing.T) {
	q := Query{Union: Match(
		Field("size").Gt(0),
		Or(And(Field("kind").Eq("circle")), And(Field("kind").Eq("square"))),
	)}
	stmt := compile(t, q, nil, nil, nil)
	require.Equal(t,
		`SELECT * FROM "shapes" WHERE ("size" > ($1) AND (("kind" = ($2)) OR ("kind" = ($3))))`,
		stmt.SQL())
}

func TestCompileContainsAny(t *testing.T) {
	c := &Compiler{Table: "shapes"}
	_, err := c.Compile(Query{Union: Match(Field("name").ContainsAny("a", "b"))}, nil, nil, nil)
	require.ErrorIs(t, err, pgbucket.ErrUnsupportedOperator)
}

func TestCompileParam(t *testing.T) {
	q := Query{Union: Match(Field("owner_id").EqParam("user.id"))}

	stmt := compile(t, q, []map[string]any{{"user": map[string]any{"id": 7}}}, nil, nil)
	require.Equal(t, `SELECT * FROM "shapes" WHERE ("owner_id" = ($1))`, stmt.SQL())
	require.Equal(t, []any{7}, stmt.Args)

	// An absent parameter drops the rule, not the whole query.
	stmt = compile(t, q, []map[string]any{{"user": map[string]any{}}}, nil, nil)
	require.Equal(t, `SELECT * FROM "shapes"`, stmt.SQL())
	require.Empty(t, stmt.Args)
}

func TestCompileMultiRowParams(t *testing.T) {
	q := Query{Union: Match(Field("owner_id").EqParam("id"))}
	params := []map[string]any{
		{"id": 1},
		{"id": 2},
		{"id": 1}, // duplicate row id, compiled once
	}
	stmt := compile(t, q, params, nil, nil)
	require.Equal(t,
		`SELECT * FROM "shapes" WHERE (("owner_id" = ($1))) OR (("owner_id" = ($2)))`,
		stmt.SQL())
	require.Equal(t, []any{1, 2}, stmt.Args)
}

func TestCompileIdenticalConditionsMerged(t *testing.T) {
	q := Query{Union: Match(Field("kind").EqParam("kind"))}
	params := []map[string]any{{"kind": "circle"}, {"kind": "circle"}}
	stmt := compile(t, q, params, nil, nil)
	require.Equal(t, `SELECT * FROM "shapes" WHERE ("kind" = ($1))`, stmt.SQL())
}

func TestCompileTemplate(t *testing.T) {
	q := Query{Union: Match(Field("owner_id").EqTemplate("users.$0.id"))}
	params := []map[string]any{{"users": map[string]any{"alice": map[string]any{"id": 3}}}}
	templates := []map[string]string{{"0": "alice"}}
	stmt := compile(t, q, params, templates, nil)
	require.Equal(t, `SELECT * FROM "shapes" WHERE ("owner_id" = ($1))`, stmt.SQL())
	require.Equal(t, []any{3}, stmt.Args)

	// Unresolved placeholders drop the rule.
	stmt = compile(t, q, params, nil, nil)
	require.Equal(t, `SELECT * FROM "shapes"`, stmt.SQL())
}

func TestCompileSubquery(t *testing.T) {
	q := Query{Union: Match(
		Field("color_id").Op(OpIn, Subquery{
			Bucket: "color",
			Select: "id",
			Union:  Match(Field("hue").Eq("red")),
		}),
	)}
	stmt := compile(t, q, nil, nil, nil)
	require.Equal(t,
		`SELECT * FROM "shapes" WHERE ("color_id" IN (SELECT "id" FROM "colors" WHERE ("hue" = ($1))))`,
		stmt.SQL())
	require.Equal(t, []any{"red"}, stmt.Args)
}

func TestCompileSubqueryUnknownBucket(t *testing.T) {
	q := Query{Union: Match(Field("x").Op(OpEq, Subquery{Bucket: "nope", Select: "id"}))}
	c := &Compiler{Table: "shapes", Resolver: mapResolver{}}
	_, err := c.Compile(q, nil, nil, nil)
	require.Error(t, err)
}

func TestCompileSort(t *testing.T) {
	q := Query{Union: Match(Field("size").Gt(0)).SortBy(
		Sort{Key: "name"},
		Sort{Key: "props.weight", Desc: true},
	)}
	stmt := compile(t, q, nil, nil, nil)
	require.Equal(t,
		`SELECT * FROM "shapes" WHERE ("size" > ($1)) ORDER BY "name" ASC, props->>'weight' DESC`,
		stmt.SQL())
}

func TestCompilePagination(t *testing.T) {
	q := Query{Union: Match(Field("size").Gt(0))}

	stmt := compile(t, q, nil, nil, &Pagination{Page: 3, PerPage: intp(5)})
	require.Equal(t, `SELECT * FROM "shapes" WHERE ("size" > ($1)) OFFSET 10 LIMIT 5`, stmt.SQL())

	// Page size defaults to 10; page defaults to 1.
	stmt = compile(t, q, nil, nil, &Pagination{})
	require.Equal(t, `SELECT * FROM "shapes" WHERE ("size" > ($1)) OFFSET 0 LIMIT 10`, stmt.SQL())

	// Zero asks for an empty page, keeping the total meaningful.
	stmt = compile(t, q, nil, nil, &Pagination{PerPage: intp(0)})
	require.Equal(t, `SELECT * FROM "shapes" WHERE ("size" > ($1)) OFFSET 0 LIMIT 0`, stmt.SQL())

	// Negative disables slicing.
	stmt = compile(t, q, nil, nil, &Pagination{PerPage: intp(-1)})
	require.Equal(t, `SELECT * FROM "shapes" WHERE ("size" > ($1))`, stmt.SQL())
}

func TestCompileSelectAndCount(t *testing.T) {
	q := Query{Select: "id", Union: Match(Field("kind").Eq("circle"))}
	stmt := compile(t, q, nil, nil, nil)
	require.Equal(t, `SELECT "id" FROM "shapes" WHERE ("kind" = ($1))`, stmt.SQL())
	require.Equal(t, `SELECT count(*) FROM "shapes" WHERE ("kind" = ($1))`, stmt.CountSQL())
}

func TestCompileEmptyQuery(t *testing.T) {
	stmt := compile(t, Query{}, nil, nil, nil)
	require.Equal(t, `SELECT * FROM "shapes"`, stmt.SQL())
	require.Equal(t, `SELECT count(*) FROM "shapes"`, stmt.CountSQL())
}

func intp(n int) *int { return &n }
