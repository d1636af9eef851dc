package migrate

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/syssam/pgbucket/dialect"
)

// ImportCSV loads a CSV file into table, one INSERT per row, all inside a
// single transaction. The first line names the target columns.
func ImportCSV(ctx context.Context, drv dialect.Driver, table, path string) error {
	slog.Info("importing csv", "table", table, "path", path)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	lines, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("migrate: reading %s: %w", path, err)
	}
	if len(lines) < 2 {
		return fmt.Errorf("migrate: csv %s has no data rows", path)
	}
	keys := lines[0]

	columns := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	for i, k := range keys {
		columns[i] = fmt.Sprintf("%q", k)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	tx, err := drv.Tx(ctx)
	if err != nil {
		return err
	}
	for _, line := range lines[1:] {
		args := make([]any, len(line))
		for i, v := range line {
			args[i] = v
		}
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			slog.Error("csv import failed, rolling back changes", "table", table, "err", err)
			if rerr := tx.Rollback(); rerr != nil {
				slog.Error("rollback failed", "err", rerr)
			}
			return err
		}
	}
	return tx.Commit()
}
