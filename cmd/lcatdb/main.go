// Command lcatdb prepares the climate database for the service: schema
// migrations, boundary registration, coastal tagging, climate caches, and
// curated content.
//
// Usage:
//
//	lcatdb migrate
//	lcatdb seed-boundaries --file boundaries.yaml
//	lcatdb tag-coastal uk_counties lsoa
//	lcatdb build-cache --concurrency 4
//	lcatdb references process references.csv references.json
//	lcatdb references load references.json
//	lcatdb kumu process kumu-export.json adaptations.json
//	lcatdb kumu load adaptations.json
//	lcatdb validate
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/lcat-climate-service/internal/adapter/postgres"
	"github.com/couchcryptid/lcat-climate-service/internal/config"
	"github.com/couchcryptid/lcat-climate-service/internal/observability"
)

// app carries state shared by every subcommand.
type app struct {
	databaseURL string
	logLevel    string
	logFormat   string
	maxConns    int32

	logger *slog.Logger
	pool   *pgxpool.Pool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lcatdb",
		Short:         "Prepare the climate database for the LCAT service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			a.logger = observability.NewLogger(&config.Config{LogLevel: a.logLevel, LogFormat: a.logFormat})
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.pool != nil {
				a.pool.Close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.databaseURL, "database-url", config.DatabaseURL(), "postgres connection URL (defaults to DATABASE_URL or DB_*)")
	flags.StringVar(&a.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level")
	flags.StringVar(&a.logFormat, "log-format", envOr("LOG_FORMAT", "text"), "log format: json or text")
	flags.Int32Var(&a.maxConns, "max-conns", 8, "maximum database connections")

	root.AddCommand(
		a.migrateCmd(),
		a.seedBoundariesCmd(),
		a.buildOverlapsCmd(),
		a.tagCoastalCmd(),
		a.buildCacheCmd(),
		a.referencesCmd(),
		a.kumuCmd(),
		a.validateCmd(),
	)
	return root
}

// db opens the connection pool on first use.
func (a *app) db(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if a.databaseURL == "" {
		return nil, errors.New("no database configured: set --database-url, DATABASE_URL, or DB_HOST, DB_USER and DB_DATABASE")
	}
	pool, err := postgres.NewPool(ctx, a.databaseURL, a.maxConns)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	return pool, nil
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.databaseURL == "" {
				return errors.New("no database configured")
			}
			return postgres.Migrate(cmd.Context(), a.databaseURL, a.logger)
		},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
