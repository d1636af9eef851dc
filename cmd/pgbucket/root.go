package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/syssam/pgbucket/bucket"
	"github.com/syssam/pgbucket/service"
)

var (
	cfgPath string
	envFile string
	verbose bool
	cfg     *Config
)

var rootCmd = &cobra.Command{
	Use:   "pgbucket",
	Short: "PostgreSQL bucket adapter toolbox",
	Long: `pgbucket manages the PostgreSQL side of a bucket engine: it keeps
tables in sync with bucket schemas through reviewed migrations, runs and
rolls back migration batches, and queries buckets through the NQL
compiler.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		var err error
		cfg, err = LoadConfig(cfgPath, envFile)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "pgbucket.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file (default: ./.env when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// openService connects to the configured database. The caller owns the
// returned service and must Down it.
func openService(ctx context.Context) (*service.Service, error) {
	svc := service.New(cfg.Service, cfg.Connection)
	if err := svc.Up(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// openRegistry connects and registers an adapter per configured schema.
func openRegistry(ctx context.Context) (*service.Service, *bucket.Registry, error) {
	svc, err := openService(ctx)
	if err != nil {
		return nil, nil, err
	}
	schemas, err := cfg.LoadSchemas()
	if err != nil {
		_ = svc.Down(ctx)
		return nil, nil, err
	}
	reg := bucket.NewRegistry()
	for _, s := range schemas {
		reg.Register(bucket.NewAdapter(s, svc, reg))
	}
	return svc, reg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
