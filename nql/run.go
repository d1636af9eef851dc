package nql

import (
	"context"
	"fmt"

	"github.com/syssam/pgbucket/dialect"
	sqld "github.com/syssam/pgbucket/dialect/sql"
)

// Result is one page of query output.
type Result struct {
	Data    []map[string]any `json:"data"`
	Page    int              `json:"page,omitempty"`
	PerPage int              `json:"per_page,omitempty"`
	// TotalItems is the unsliced row count. Set only when the pagination
	// asked for it.
	TotalItems *int `json:"total_items,omitempty"`
}

// RunOptions carries the per-execution inputs of a query.
type RunOptions struct {
	Params    []map[string]any
	Templates []map[string]string
	Page      *Pagination
	// DefaultSort applies when the query tree carries no sort of its own.
	DefaultSort []Sort
}

// Run compiles and executes q on conn, which may be a plain driver or a
// transaction scope.
func (c *Compiler) Run(ctx context.Context, conn dialect.ExecQuerier, q Query, opts RunOptions) (*Result, error) {
	if len(q.Union.Sort) == 0 && len(opts.DefaultSort) > 0 {
		q.Union.Sort = opts.DefaultSort
	}
	stmt, err := c.Compile(q, opts.Params, opts.Templates, opts.Page)
	if err != nil {
		return nil, err
	}

	var rows sqld.Rows
	if err := conn.Query(ctx, stmt.SQL(), stmt.Args, &rows); err != nil {
		return nil, err
	}
	data, err := sqld.ScanMaps(&rows)
	if err != nil {
		return nil, err
	}

	res := &Result{Data: data}
	if opts.Page != nil {
		res.Page = opts.Page.Page
		if res.Page < 1 {
			res.Page = 1
		}
		res.PerPage = 10
		if opts.Page.PerPage != nil {
			res.PerPage = *opts.Page.PerPage
		}
		if opts.Page.ReturnTotal {
			total, err := c.count(ctx, conn, stmt)
			if err != nil {
				return nil, err
			}
			res.TotalItems = &total
		}
	}
	return res, nil
}

func (c *Compiler) count(ctx context.Context, conn dialect.ExecQuerier, stmt *Statement) (int, error) {
	var rows sqld.Rows
	if err := conn.Query(ctx, stmt.CountSQL(), stmt.Args, &rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, fmt.Errorf("nql: count query returned no rows")
	}
	var total int
	if err := rows.Scan(&total); err != nil {
		return 0, err
	}
	return total, rows.Err()
}
