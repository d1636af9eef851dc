package migrate

import (
	"context"
	"log/slog"

	"github.com/syssam/pgbucket/bucket"
	"github.com/syssam/pgbucket/dialect"
)

// Generate introspects the schema's table, plans the diff and reviews it
// into a migration. It returns nil when the table is already in sync.
func Generate(ctx context.Context, conn dialect.ExecQuerier, module string, schema *bucket.Schema, meta bucket.MetaFields, r Resolver) (*Migration, error) {
	current, err := Inspect(ctx, conn, schema.Table, schema, meta)
	if err != nil {
		return nil, err
	}
	plan, err := PlanTable(schema, current, meta)
	if err != nil {
		return nil, err
	}
	if len(plan.Steps) == 0 {
		slog.Info("no migrations for bucket", "module", module, "bucket", schema.Name)
		return nil, nil
	}
	return Review(module, plan, r)
}
