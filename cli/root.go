// Package cli implements the litetable command line: reconcile tables with
// schema files, query them with JSON filters and upsert rows.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joe-ervin05/litetable/config"
	"github.com/joe-ervin05/litetable/database"
	"github.com/joe-ervin05/litetable/tools"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	// Version information (set by build)
	Version = "dev"
	Commit  = "unknown"
)

type rootOptions struct {
	databaseURL string
	logLevel    string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "litetable",
		Short: "Query and reconcile SQLite tables",
		Long: `litetable keeps SQLite tables in line with JSON schema declarations
and queries them with Mongo-style JSON filters.

Configuration is read from .env, .litetable.yaml and LITETABLE_* variables.`,
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.databaseURL, "db", "", "database file, :memory: or libsql URL (overrides LITETABLE_DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides LITETABLE_LOG_LEVEL)")

	cmd.AddCommand(newReconcileCommand())
	cmd.AddCommand(newFindCommand())
	cmd.AddCommand(newCountCommand())
	cmd.AddCommand(newSchemaCommand())
	cmd.AddCommand(newUpsertCommand())

	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		printError(cmd.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	config.Cfg = cfg

	// Results go to stdout, logs to stderr.
	tools.SetLogOutput(cmd.ErrOrStderr())
	tools.SetLogLevel(cfg.LogLevel)
	return nil
}

func openDB(ctx context.Context) (*database.DB, error) {
	db, err := database.Open(ctx, config.Cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", config.Cfg.DatabaseURL, err)
	}
	return db, nil
}

func readFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(config.AppFs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
