package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/pgbucket"
	"github.com/syssam/pgbucket/bucket"
	"github.com/syssam/pgbucket/dialect"
	sqld "github.com/syssam/pgbucket/dialect/sql"
	"github.com/syssam/pgbucket/trx"
)

// TableName is the bookkeeping table recording applied migrations.
const TableName = "__pgbucket_migrations"

// bootstrapBatch tags internal bootstrap migrations, keeping them outside
// normal batch numbering so a batch rollback never touches them.
const bootstrapBatch = -1

// bootstrapModule owns the internal bootstrap migrations.
const bootstrapModule = "__pgbucket"

// Mode selects how many migrations an up or down pass touches.
type Mode string

const (
	ModeOne   Mode = "one"
	ModeBatch Mode = "batch"
)

// Runner applies and rolls back migrations for one service, keeping the
// bookkeeping table as the durable record.
type Runner struct {
	drv     dialect.Driver
	service string
	root    string
	modules []string
	trash   []string
	// lostConfirm authorizes the destructive skip-and-delete of a lost
	// migration during rollback. Nil refuses.
	lostConfirm func(name string) bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTrashTables declares the bucket tables whose trash tables the runner
// bootstraps before applying migrations.
func WithTrashTables(tables ...string) RunnerOption {
	return func(r *Runner) {
		for _, t := range tables {
			r.trash = append(r.trash, bucket.TrashTable(t))
		}
	}
}

// WithLostConfirm supplies the confirmation hook for rolling back past a
// lost migration.
func WithLostConfirm(fn func(name string) bool) RunnerOption {
	return func(r *Runner) { r.lostConfirm = fn }
}

// NewRunner builds a runner for the given service. root is the migrations
// directory root; modules lists the module directories to scan.
func NewRunner(drv dialect.Driver, service, root string, modules []string, opts ...RunnerOption) *Runner {
	r := &Runner{drv: drv, service: service, root: root, modules: modules}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bootstrap creates the bookkeeping table and any missing trash tables.
// Bootstrap migrations record themselves with the sentinel batch and need
// no confirmation.
func (r *Runner) Bootstrap(ctx context.Context) error {
	ok, err := r.tableExists(ctx, TableName)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("bootstrapping migrations table", "service", r.service, "table", TableName)
		err := r.drv.Exec(ctx, fmt.Sprintf(`
			CREATE TABLE %s (
				"id" SERIAL PRIMARY KEY,
				"service" VARCHAR NOT NULL,
				"module" VARCHAR NOT NULL,
				"name" VARCHAR NOT NULL,
				"description" VARCHAR,
				"batch" INT4 NOT NULL,
				"timestamp" TIMESTAMP NOT NULL,
				"hash" VARCHAR
			)`, TableName), []any{}, nil)
		if err != nil {
			return err
		}
		if err := r.insertRecord(ctx, r.drv, &Record{
			Module:      bootstrapModule,
			Name:        "migrations:v1",
			Description: "Create the migrations bookkeeping table",
			Batch:       bootstrapBatch,
		}); err != nil {
			return err
		}
	}
	for _, table := range r.trash {
		ok, err := r.tableExists(ctx, table)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		slog.Info("bootstrapping trash table", "service", r.service, "table", table)
		err = r.drv.Exec(ctx, fmt.Sprintf(`
			CREATE TABLE %s (
				"id" SERIAL PRIMARY KEY,
				"module" VARCHAR NOT NULL,
				"bucket" VARCHAR NOT NULL,
				"object_id" VARCHAR NOT NULL,
				"object" JSONB NOT NULL,
				"delete_trx_id" VARCHAR NOT NULL,
				"created_by" character(64),
				"created_at" timestamp without time zone NOT NULL,
				"updated_by" character(64),
				"updated_at" timestamp without time zone NOT NULL
			)`, table), []any{}, nil)
		if err != nil {
			return err
		}
		if err := r.insertRecord(ctx, r.drv, &Record{
			Module:      bootstrapModule,
			Name:        "trash:" + table,
			Description: "Create the trash table " + table,
			Batch:       bootstrapBatch,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Status scans the on-disk routines and the bookkeeping rows and joins
// them by name.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	files, err := ScanDir(r.root, r.modules)
	if err != nil {
		return nil, err
	}
	records, err := r.Records(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeStatus(files, records), nil
}

// Records reads all bookkeeping rows in application order.
func (r *Runner) Records(ctx context.Context) ([]*Record, error) {
	var rows sqld.Rows
	err := r.drv.Query(ctx, fmt.Sprintf(`
		SELECT id, service, module, name, description, batch, timestamp, hash
		FROM %s ORDER BY id`, TableName), []any{}, &rows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []*Record
	for rows.Next() {
		var (
			rec         Record
			description sql.NullString
			hash        sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Service, &rec.Module, &rec.Name, &description, &rec.Batch, &rec.Timestamp, &hash); err != nil {
			return nil, err
		}
		rec.Description = description.String
		rec.Hash = hash.String
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Up applies pending migrations: the first one for ModeOne, all of them
// for ModeBatch, tagged with the next batch number. The whole set runs in
// one native transaction; any failure rolls every applied migration back.
func (r *Runner) Up(ctx context.Context, mode Mode) error {
	if err := r.Bootstrap(ctx); err != nil {
		return err
	}
	status, err := r.Status(ctx)
	if err != nil {
		return err
	}
	pending := status.Pending()
	if len(pending) == 0 {
		slog.Info("no migrations to run", "service", r.service)
		return nil
	}
	if mode == ModeOne {
		pending = pending[:1]
	}
	return r.inTx(ctx, func(tx dialect.Tx) error {
		for _, item := range pending {
			if err := r.migrateUp(ctx, tx, item, status.Batch+1); err != nil {
				return err
			}
		}
		return nil
	})
}

// Down rolls the current batch back: only the most recently applied
// migration for ModeOne, the whole batch in reverse application order for
// ModeBatch. A lost migration refuses rollback unless confirmed.
func (r *Runner) Down(ctx context.Context, mode Mode) error {
	status, err := r.Status(ctx)
	if err != nil {
		return err
	}
	last := status.LastBatch()
	if len(last) == 0 {
		slog.Info("no migrations to rollback", "service", r.service)
		return nil
	}
	var targets []*Item
	if mode == ModeOne {
		targets = []*Item{last[len(last)-1]}
	} else {
		for i := len(last) - 1; i >= 0; i-- {
			targets = append(targets, last[i])
		}
	}
	return r.inTx(ctx, func(tx dialect.Tx) error {
		for _, item := range targets {
			if err := r.migrateDown(ctx, tx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

// Apply runs a freshly generated migration directly, without the save and
// rescan round trip, in its own batch.
func (r *Runner) Apply(ctx context.Context, m *Migration) error {
	if err := r.Bootstrap(ctx); err != nil {
		return err
	}
	status, err := r.Status(ctx)
	if err != nil {
		return err
	}
	item := &Item{
		State:       StatePending,
		Module:      m.Module,
		Name:        m.Name,
		Description: m.Description,
		Hash:        m.Hash(),
		Routine:     m.Routine(),
	}
	return r.inTx(ctx, func(tx dialect.Tx) error {
		return r.migrateUp(ctx, tx, item, status.Batch+1)
	})
}

func (r *Runner) inTx(ctx context.Context, fn func(tx dialect.Tx) error) error {
	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			slog.Error("rollback failed", "service", r.service, "err", rerr)
		}
		return err
	}
	return tx.Commit()
}

func (r *Runner) migrateUp(ctx context.Context, tx dialect.Tx, item *Item, batch int) error {
	slog.Info("running migration up", "service", r.service, "name", item.Name)
	err := item.Routine.Up(ctx, &Context{Conn: tx, Trx: trx.New(item.Module)})
	if err != nil {
		return fmt.Errorf("migrate: %s failed, rolling back all batch changes: %w", item.Name, err)
	}
	return r.insertRecord(ctx, tx, &Record{
		Module:      item.Module,
		Name:        item.Name,
		Description: item.Description,
		Batch:       batch,
		Hash:        item.Hash,
	})
}

func (r *Runner) migrateDown(ctx context.Context, tx dialect.Tx, item *Item) error {
	slog.Info("running migration down", "service", r.service, "name", item.Name)
	if item.State == StateLost {
		if r.lostConfirm == nil || !r.lostConfirm(item.Name) {
			return &pgbucket.LostMigrationError{Name: item.Name}
		}
		slog.Warn("skipping lost migration, deleting its record", "name", item.Name)
	} else {
		err := item.Routine.Down(ctx, &Context{Conn: tx, Trx: trx.New(item.Module)})
		if err != nil {
			return fmt.Errorf("migrate: %s failed, rolling back all batch changes: %w", item.Name, err)
		}
	}
	return tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", TableName), []any{item.Record.ID}, nil)
}

func (r *Runner) insertRecord(ctx context.Context, conn dialect.ExecQuerier, rec *Record) error {
	var description, hash sql.NullString
	if rec.Description != "" {
		description = sql.NullString{String: rec.Description, Valid: true}
	}
	if rec.Hash != "" {
		hash = sql.NullString{String: rec.Hash, Valid: true}
	}
	return conn.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s ("service", "module", "name", "description", "batch", "timestamp", "hash")
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, TableName),
		[]any{r.service, rec.Module, rec.Name, description, rec.Batch, time.Now(), hash}, nil)
}

func (r *Runner) tableExists(ctx context.Context, table string) (bool, error) {
	var rows sqld.Rows
	err := r.drv.Query(ctx, `SELECT tablename FROM pg_catalog.pg_tables WHERE tablename = $1`, []any{table}, &rows)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}
