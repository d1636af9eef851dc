package bucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/syssam/pgbucket"
	"github.com/syssam/pgbucket/dialect"
	sqld "github.com/syssam/pgbucket/dialect/sql"
	"github.com/syssam/pgbucket/nql"
	"github.com/syssam/pgbucket/service"
	"github.com/syssam/pgbucket/trx"
)

// Adapter maps one bucket onto one PostgreSQL table. All operations issue
// through the transaction bridge: the handle is the logical transaction's
// native scope, or the ambient connection for idempotent transactions.
type Adapter struct {
	Schema  *Schema
	Service *service.Service
	Table   string
	Meta    MetaFields

	compiler *nql.Compiler
}

// NewAdapter builds the adapter. resolver backs cross-bucket sub-queries;
// nil disables them.
func NewAdapter(schema *Schema, svc *service.Service, resolver nql.TableResolver) *Adapter {
	return &Adapter{
		Schema:   schema,
		Service:  svc,
		Table:    schema.Table,
		Meta:     DefaultMeta(),
		compiler: &nql.Compiler{Table: schema.Table, Resolver: resolver},
	}
}

// conn resolves the connection scope of the logical transaction.
func (a *Adapter) conn(t *trx.Trx) (dialect.ExecQuerier, error) {
	return service.Handle(t, a.Service.Name)
}

// guard logs a native statement failure with context and re-raises the
// generic database error, classified when a constraint was violated.
// Driver detail never leaks to bucket callers.
func (a *Adapter) guard(op string, err error) error {
	if err == nil {
		return nil
	}
	slog.Error("postgres bucket statement failed", "table", a.Table, "op", op, "err", err)
	if kind, ok := pgbucket.ClassifyConstraint(err); ok {
		return pgbucket.NewConstraintError(op, kind, err)
	}
	return pgbucket.NewDatabaseError(op, err)
}

// Index returns every record, most recently updated first.
func (a *Adapter) Index(ctx context.Context, t *trx.Trx) ([]map[string]any, error) {
	conn, err := a.conn(t)
	if err != nil {
		return nil, err
	}
	var rows sqld.Rows
	query := fmt.Sprintf(`SELECT * FROM %q ORDER BY %q DESC`, a.Table, a.Meta.UpdatedAt)
	if err := conn.Query(ctx, query, []any{}, &rows); err != nil {
		return nil, a.guard("index", err)
	}
	return sqld.ScanMaps(&rows)
}

// Get returns the record with the given id, or nil.
func (a *Adapter) Get(ctx context.Context, t *trx.Trx, id any) (map[string]any, error) {
	conn, err := a.conn(t)
	if err != nil {
		return nil, err
	}
	var rows sqld.Rows
	query := fmt.Sprintf(`SELECT * FROM %q WHERE id = $1`, a.Table)
	if err := conn.Query(ctx, query, []any{id}, &rows); err != nil {
		return nil, a.guard("get", err)
	}
	objs, err := sqld.ScanMaps(&rows)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, nil
	}
	return objs[0], nil
}

// Query compiles and runs an NQL query against the bucket's table,
// defaulting to a descending sort on the update audit column.
func (a *Adapter) Query(ctx context.Context, t *trx.Trx, q nql.Query, opts nql.RunOptions) (*nql.Result, error) {
	conn, err := a.conn(t)
	if err != nil {
		return nil, err
	}
	if len(opts.DefaultSort) == 0 {
		opts.DefaultSort = []nql.Sort{{Key: a.Meta.UpdatedAt, Desc: true}}
	}
	res, err := a.compiler.Run(ctx, conn, q, opts)
	if err != nil {
		// Compile-time schema and operator errors surface as-is; only
		// native statement failures get the generic treatment.
		if errors.Is(err, pgbucket.ErrUnsupportedOperator) || errors.Is(err, pgbucket.ErrUnknownFieldType) {
			return nil, err
		}
		return nil, a.guard("query", err)
	}
	return res, nil
}

// precleanup normalizes an incoming object: the "_by" audit fields default
// to NULL, nil values for absent keys stay absent.
func (a *Adapter) precleanup(obj map[string]any) {
	if _, ok := obj[a.Meta.CreatedBy]; !ok {
		obj[a.Meta.CreatedBy] = nil
	}
	if _, ok := obj[a.Meta.UpdatedBy]; !ok {
		obj[a.Meta.UpdatedBy] = nil
	}
}

// keys returns the schema field names present on obj, in declaration
// order, optionally excluding the id.
func (a *Adapter) keys(obj map[string]any, withID bool) []string {
	var keys []string
	for _, f := range a.Schema.Fields {
		if f.Name == "id" && !withID {
			continue
		}
		if _, ok := obj[f.Name]; ok {
			keys = append(keys, f.Name)
		}
	}
	return keys
}

// bind renders the value of key for binding, JSON-encoding structured
// values destined for jsonb columns.
func (a *Adapter) bind(obj map[string]any, key string) (any, error) {
	v := obj[key]
	switch v.(type) {
	case map[string]any, []any, []map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("bucket: encoding %s.%s: %w", a.Table, key, err)
		}
		return string(raw), nil
	}
	return v, nil
}

func (a *Adapter) bindAll(obj map[string]any, keys []string, args []any) ([]any, error) {
	for _, k := range keys {
		v, err := a.bind(obj, k)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// Create inserts one record and returns it as stored.
func (a *Adapter) Create(ctx context.Context, t *trx.Trx, obj map[string]any) (map[string]any, error) {
	objs, err := a.CreateMany(ctx, t, []map[string]any{obj})
	if err != nil {
		return nil, err
	}
	return objs[0], nil
}

// CreateMany inserts records in one statement and returns them as stored.
func (a *Adapter) CreateMany(ctx context.Context, t *trx.Trx, objs []map[string]any) ([]map[string]any, error) {
	if len(objs) == 0 {
		return nil, nil
	}
	conn, err := a.conn(t)
	if err != nil {
		return nil, err
	}
	for _, obj := range objs {
		a.precleanup(obj)
	}
	keys := append(a.keys(objs[0], true), a.Meta.Columns()...)

	var (
		args   []any
		values []string
	)
	for _, obj := range objs {
		ps := make([]string, len(keys))
		for i, k := range keys {
			v, err := a.bind(obj, k)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
			ps[i] = fmt.Sprintf("$%d", len(args))
		}
		values = append(values, "("+strings.Join(ps, ", ")+")")
	}
	query := fmt.Sprintf(`INSERT INTO %q (%s) VALUES %s RETURNING *`,
		a.Table, quoteAll(keys), strings.Join(values, ", "))

	var rows sqld.Rows
	if err := conn.Query(ctx, query, args, &rows); err != nil {
		return nil, a.guard("create", err)
	}
	return sqld.ScanMaps(&rows)
}

// Patch updates the schema fields present on obj, by id.
func (a *Adapter) Patch(ctx context.Context, t *trx.Trx, obj map[string]any) (map[string]any, error) {
	return a.update(ctx, t, obj, "patch")
}

// Replace overwrites all schema fields of the record, by id.
func (a *Adapter) Replace(ctx context.Context, t *trx.Trx, obj map[string]any) (map[string]any, error) {
	return a.update(ctx, t, obj, "replace")
}

func (a *Adapter) update(ctx context.Context, t *trx.Trx, obj map[string]any, op string) (map[string]any, error) {
	conn, err := a.conn(t)
	if err != nil {
		return nil, err
	}
	a.precleanup(obj)
	keys := append(a.keys(obj, false), a.Meta.UpdatedBy, a.Meta.UpdatedAt)

	sets := make([]string, len(keys))
	var args []any
	args, err = a.bindAll(obj, keys, args)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%q = $%d", k, i+1)
	}
	args = append(args, obj["id"])
	query := fmt.Sprintf(`UPDATE %q SET %s WHERE id = $%d RETURNING *`,
		a.Table, strings.Join(sets, ", "), len(args))

	var rows sqld.Rows
	if err := conn.Query(ctx, query, args, &rows); err != nil {
		return nil, a.guard(op, err)
	}
	objs, err := sqld.ScanMaps(&rows)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, nil
	}
	return objs[0], nil
}

// PatchMany patches records one by one, sharing the transaction scope.
func (a *Adapter) PatchMany(ctx context.Context, t *trx.Trx, objs []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(objs))
	for _, obj := range objs {
		stored, err := a.Patch(ctx, t, obj)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

// ReplaceMany replaces records one by one, sharing the transaction scope.
func (a *Adapter) ReplaceMany(ctx context.Context, t *trx.Trx, objs []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(objs))
	for _, obj := range objs {
		stored, err := a.Replace(ctx, t, obj)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

// Put inserts the record or, when its id already exists, updates it.
func (a *Adapter) Put(ctx context.Context, t *trx.Trx, obj map[string]any) (map[string]any, error) {
	conn, err := a.conn(t)
	if err != nil {
		return nil, err
	}
	a.precleanup(obj)
	ikeys := append(a.keys(obj, true), a.Meta.Columns()...)
	ukeys := append(a.keys(obj, true), a.Meta.UpdatedBy, a.Meta.UpdatedAt)

	var args []any
	args, err = a.bindAll(obj, ikeys, args)
	if err != nil {
		return nil, err
	}
	inserts := make([]string, len(ikeys))
	for i := range ikeys {
		inserts[i] = fmt.Sprintf("$%d", i+1)
	}
	args, err = a.bindAll(obj, ukeys, args)
	if err != nil {
		return nil, err
	}
	updates := make([]string, len(ukeys))
	for i, k := range ukeys {
		updates[i] = fmt.Sprintf("%q = $%d", k, len(ikeys)+i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s RETURNING *`,
		a.Table, quoteAll(ikeys), strings.Join(inserts, ", "), strings.Join(updates, ", "))

	var rows sqld.Rows
	if err := conn.Query(ctx, query, args, &rows); err != nil {
		return nil, a.guard("put", err)
	}
	objs, err := sqld.ScanMaps(&rows)
	if err != nil {
		return nil, err
	}
	return objs[0], nil
}

// PutMany puts records one by one, sharing the transaction scope.
func (a *Adapter) PutMany(ctx context.Context, t *trx.Trx, objs []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(objs))
	for _, obj := range objs {
		stored, err := a.Put(ctx, t, obj)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

// Delete snapshots the record into the bucket's trash table, then removes
// it. The snapshot records the deleting logical transaction.
func (a *Adapter) Delete(ctx context.Context, t *trx.Trx, id any) error {
	conn, err := a.conn(t)
	if err != nil {
		return err
	}
	obj, err := a.Get(ctx, t, id)
	if err != nil {
		return err
	}
	if obj != nil {
		if err := a.trash(ctx, conn, t, obj); err != nil {
			return err
		}
	}
	query := fmt.Sprintf(`DELETE FROM %q WHERE id = $1`, a.Table)
	if err := conn.Exec(ctx, query, []any{id}, nil); err != nil {
		return a.guard("delete", err)
	}
	return nil
}

// DeleteMany deletes records one by one so every one is snapshotted.
func (a *Adapter) DeleteMany(ctx context.Context, t *trx.Trx, ids []any) error {
	for _, id := range ids {
		if err := a.Delete(ctx, t, id); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) trash(ctx context.Context, conn dialect.ExecQuerier, t *trx.Trx, obj map[string]any) error {
	snapshot, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("bucket: encoding trash snapshot for %s: %w", a.Table, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %q ("module", "bucket", "object_id", "object", "delete_trx_id", "created_at", "updated_at")
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`, TrashTable(a.Table))
	args := []any{a.Schema.Module, a.Schema.Name, fmt.Sprint(obj["id"]), string(snapshot), t.ID}
	if err := conn.Exec(ctx, query, args, nil); err != nil {
		return a.guard("trash", err)
	}
	return nil
}

func quoteAll(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = fmt.Sprintf("%q", k)
	}
	return strings.Join(quoted, ", ")
}
