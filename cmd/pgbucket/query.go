package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/pgbucket/nql"
	"github.com/syssam/pgbucket/trx"
)

var (
	queryFilters []string
	querySorts   []string
	querySelect  string
	queryPage    int
	queryPerPage int
	queryTotal   bool
)

var queryCmd = &cobra.Command{
	Use:   "query <bucket>",
	Short: "Query a bucket through the NQL compiler",
	Long: `Queries the named bucket. Filters take the form field=value for
equality or field:op=value with op one of lt, gt, lte, gte, in (comma
separated list), contains and present (no value). A "!" before the op
negates it, a "~" makes string comparison case insensitive:

  pgbucket query shape --filter 'name~=circle' --filter 'sides:gte=3'
  pgbucket query shape --filter 'deleted_at:!present'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer svc.Down(ctx)

		a, ok := reg.Adapter(args[0])
		if !ok {
			return fmt.Errorf("unknown bucket %q", args[0])
		}

		var nodes []nql.Node
		for _, f := range queryFilters {
			rule, err := parseFilter(f)
			if err != nil {
				return err
			}
			nodes = append(nodes, rule)
		}
		union := nql.Match(nodes...)
		if len(querySorts) > 0 {
			sorts := make([]nql.Sort, len(querySorts))
			for i, s := range querySorts {
				key, desc := strings.CutSuffix(s, ":desc")
				sorts[i] = nql.Sort{Key: key, Desc: desc}
			}
			union = union.SortBy(sorts...)
		}

		q := nql.Query{Union: union}
		if querySelect != "" {
			q.Select = querySelect
		}

		opts := nql.RunOptions{}
		if cmd.Flags().Changed("page") || cmd.Flags().Changed("per-page") || queryTotal {
			page := &nql.Pagination{Page: queryPage, ReturnTotal: queryTotal}
			if cmd.Flags().Changed("per-page") {
				page.PerPage = &queryPerPage
			}
			opts.Page = page
		}

		t := trx.New("cli", trx.Idempotent())
		if err := svc.Bridge().Begin(ctx, t); err != nil {
			return err
		}
		res, err := a.Query(ctx, t, q, opts)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "filter rule, repeatable")
	queryCmd.Flags().StringArrayVar(&querySorts, "sort", nil, "sort key, suffix :desc for descending, repeatable")
	queryCmd.Flags().StringVar(&querySelect, "select", "", "return a single column instead of full records")
	queryCmd.Flags().IntVar(&queryPage, "page", 1, "page number, 1-based")
	queryCmd.Flags().IntVar(&queryPerPage, "per-page", 10, "records per page")
	queryCmd.Flags().BoolVar(&queryTotal, "total", false, "also count records across all pages")
	rootCmd.AddCommand(queryCmd)
}

var filterOps = map[string]nql.Op{
	"eq":       nql.OpEq,
	"lt":       nql.OpLt,
	"gt":       nql.OpGt,
	"lte":      nql.OpLte,
	"gte":      nql.OpGte,
	"in":       nql.OpIn,
	"contains": nql.OpContains,
	"present":  nql.OpPresent,
}

// parseFilter turns one --filter argument into a rule.
func parseFilter(s string) (nql.Rule, error) {
	spec, value, hasValue := strings.Cut(s, "=")

	field, opName, hasOp := strings.Cut(spec, ":")
	if !hasOp {
		opName = "eq"
	}
	not := strings.HasPrefix(opName, "!")
	opName = strings.TrimPrefix(opName, "!")
	fold := strings.HasSuffix(field, "~")
	field = strings.TrimSuffix(field, "~")

	op, ok := filterOps[opName]
	if !ok {
		return nql.Rule{}, fmt.Errorf("invalid filter %q: unknown operator %q", s, opName)
	}
	if op == nql.OpPresent {
		if hasValue {
			return nql.Rule{}, fmt.Errorf("invalid filter %q: present takes no value", s)
		}
	} else if !hasValue {
		return nql.Rule{}, fmt.Errorf("invalid filter %q: missing value", s)
	}

	var v nql.Value
	switch op {
	case nql.OpPresent:
		v = nql.Static{}
	case nql.OpIn:
		parts := strings.Split(value, ",")
		vs := make([]any, len(parts))
		for i, p := range parts {
			vs[i] = parseValue(p)
		}
		v = nql.Static{V: vs}
	default:
		v = nql.Static{V: parseValue(value)}
	}

	rule := nql.Field(field).Op(op, v)
	if fold {
		rule = rule.Fold()
	}
	if not {
		rule = rule.Negate()
	}
	return rule, nil
}

// parseValue guesses the literal type: int, float, bool, else string.
func parseValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
