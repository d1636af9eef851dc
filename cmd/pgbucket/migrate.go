package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/pgbucket"
	"github.com/syssam/pgbucket/bucket"
	"github.com/syssam/pgbucket/migrate"
	"github.com/syssam/pgbucket/service"
)

func newRunner(svc *service.Service, reg *bucket.Registry) *migrate.Runner {
	return migrate.NewRunner(svc.Driver(), svc.Name, cfg.Root, reg.Modules(),
		migrate.WithTrashTables(reg.Tables()...),
		migrate.WithLostConfirm(func(name string) bool {
			return promptYes(fmt.Sprintf("Migration %s is lost on disk. Skip it and delete its record?", name))
		}),
	)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which migrations are done, pending, modified or lost",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer svc.Down(ctx)

		r := newRunner(svc, reg)
		if err := r.Bootstrap(ctx); err != nil {
			return err
		}
		st, err := r.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Print(st.Describe())
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate [bucket...]",
	Short: "Generate migrations by diffing bucket schemas against the database",
	Long: `Inspects each bucket's table and generates the migration that brings it
in sync with the bucket schema. Ambiguities (column rename vs. drop and
create, missing defaults, type casts) are resolved interactively; the
reviewed migration is written under <root>/<module>/migrations/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer svc.Down(ctx)

		schemas := reg.Schemas()
		if len(args) > 0 {
			schemas = schemas[:0]
			for _, name := range args {
				a, ok := reg.Adapter(name)
				if !ok {
					return fmt.Errorf("unknown bucket %q", name)
				}
				schemas = append(schemas, a.Schema)
			}
		}

		resolver := &promptResolver{in: bufio.NewReader(os.Stdin), out: os.Stdout}
		for _, s := range schemas {
			m, err := migrate.Generate(ctx, svc.Driver(), s.Module, s, bucket.DefaultMeta(), resolver)
			if errors.Is(err, pgbucket.ErrMigrationAborted) {
				fmt.Printf("%s: aborted\n", s.Name)
				continue
			}
			if err != nil {
				return err
			}
			if m == nil {
				fmt.Printf("%s: up to date\n", s.Name)
				continue
			}
			path, err := m.Save(cfg.Root)
			if err != nil {
				return err
			}
			fmt.Printf("%s: wrote %s\n", s.Name, path)
		}
		return nil
	},
}

var upAll bool

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer svc.Down(ctx)

		r := newRunner(svc, reg)
		if err := r.Bootstrap(ctx); err != nil {
			return err
		}
		mode := migrate.ModeOne
		if upAll {
			mode = migrate.ModeBatch
		}
		return r.Up(ctx, mode)
	},
}

var downBatch bool

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration, or the last batch with --batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer svc.Down(ctx)

		r := newRunner(svc, reg)
		if err := r.Bootstrap(ctx); err != nil {
			return err
		}
		mode := migrate.ModeOne
		if downBatch {
			mode = migrate.ModeBatch
		}
		return r.Down(ctx, mode)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <table> <file.csv>",
	Short: "Import a CSV file into a table",
	Long: `Imports the CSV file into the named table in one transaction. The first
row names the target columns.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := openService(ctx)
		if err != nil {
			return err
		}
		defer svc.Down(ctx)

		return migrate.ImportCSV(ctx, svc.Driver(), args[0], args[1])
	},
}

func init() {
	upCmd.Flags().BoolVar(&upAll, "all", false, "apply every pending migration as one batch")
	downCmd.Flags().BoolVar(&downBatch, "batch", false, "roll back the whole last batch")
	rootCmd.AddCommand(statusCmd, generateCmd, upCmd, downCmd, importCmd)
}

func promptYes(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// promptResolver resolves migration ambiguities by asking on the terminal.
type promptResolver struct {
	in  *bufio.Reader
	out io.Writer
}

func (r *promptResolver) readLine() (string, error) {
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (r *promptResolver) Pick(table string, options []string) (int, error) {
	fmt.Fprintf(r.out, "Table %s has conflicting changes:\n", table)
	for i, opt := range options {
		fmt.Fprintf(r.out, "  %d) %s\n", i+1, opt)
	}
	for {
		fmt.Fprintf(r.out, "Pick one [1-%d]: ", len(options))
		line, err := r.readLine()
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
	}
}

func (r *promptResolver) DefaultForCreate(table, column string) (string, error) {
	fmt.Fprintf(r.out, "Column %s.%s is NOT NULL and joins an existing table.\n", table, column)
	fmt.Fprint(r.out, "SQL value to fill historical rows with: ")
	line, err := r.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return "", fmt.Errorf("a fill value for %s.%s is required", table, column)
	}
	return line, nil
}

func (r *promptResolver) DefaultForDrop(table, column string) (string, error) {
	fmt.Fprintf(r.out, "Dropping NOT NULL column %s.%s; rollback re-adds it.\n", table, column)
	fmt.Fprint(r.out, "SQL value to fill rows with on rollback: ")
	line, err := r.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return "", fmt.Errorf("a rollback fill value for %s.%s is required", table, column)
	}
	return line, nil
}

func (r *promptResolver) Cast(table, column, from, to, direction, suggested string) (string, error) {
	fmt.Fprintf(r.out, "Column %s.%s changes type %s -> %s (%s).\n", table, column, from, to, direction)
	fmt.Fprintf(r.out, "Cast expression [%s]: ", suggested)
	line, err := r.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return suggested, nil
	}
	return line, nil
}

func (r *promptResolver) Approve(m *migrate.Migration) (bool, error) {
	fmt.Fprintln(r.out, m.Describe())
	for {
		fmt.Fprint(r.out, "Apply this migration? [y/n] ")
		line, err := r.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}
