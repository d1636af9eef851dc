package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syssam/pgbucket/migrate"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the database connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := openService(ctx)
		if err != nil {
			return err
		}
		defer svc.Down(ctx)

		if err := migrate.CheckConnection(ctx, svc.Driver()); err != nil {
			return fmt.Errorf("connection check failed: %w", err)
		}
		fmt.Println("connection ok")
		return nil
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables of the public schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := openService(ctx)
		if err != nil {
			return err
		}
		defer svc.Down(ctx)

		tables, err := migrate.ListTables(ctx, svc.Driver())
		if err != nil {
			return err
		}
		for _, t := range tables {
			fmt.Println(t)
		}
		return nil
	},
}

var ifExists string

var createDBCmd = &cobra.Command{
	Use:   "create-db <name>",
	Short: "Create a database",
	Long: `Creates the named database. The configured connection must point at a
maintenance database (typically "postgres"): PostgreSQL cannot create a
database from a connection to itself.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mode := migrate.IfExists(ifExists)
		switch mode {
		case migrate.IfExistsFail, migrate.IfExistsKeep, migrate.IfExistsDelete:
		default:
			return fmt.Errorf("invalid --if-exists %q (fail|keep|delete)", ifExists)
		}

		svc, err := openService(ctx)
		if err != nil {
			return err
		}
		defer svc.Down(ctx)

		return migrate.CreateDatabase(ctx, svc.Driver(), args[0], mode)
	},
}

func init() {
	createDBCmd.Flags().StringVar(&ifExists, "if-exists", "fail", "behavior when the database exists: fail, keep or delete")
	rootCmd.AddCommand(checkCmd, tablesCmd, createDBCmd)
}
