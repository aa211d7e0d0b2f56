// Command importer is the event import CLI. External schedulers call
// `tick` once per interval; operators use `run` for full imports.
//
// Usage:
//
//	importer run cbis
//	importer tick xcap --key 2
//	importer sweep
//	importer occasions
//	importer migrate
//	importer migrate --down
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/db"
	"github.com/eventhub/event-importer/internal/importer"
	"github.com/eventhub/event-importer/internal/maintenance"
	"github.com/eventhub/event-importer/internal/occasion"
	"github.com/eventhub/event-importer/internal/store"
	"github.com/eventhub/event-importer/migrations"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "importer",
		Short:        "Event import CLI",
		SilenceUsage: true,
	}

	root.AddCommand(runCmd())
	root.AddCommand(tickCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(occasionsCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// import commands
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run <provider>",
		Short:     "Import every configured key of a provider",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.ProviderNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := providerArg(args[0])
			if err != nil {
				return err
			}
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				im := importer.FromConfig(cfg, pool, nil, logger)
				start := time.Now()
				result, err := im.Run(ctx, name)
				logger.Info("Import finished",
					"provider", name,
					"duration", time.Since(start).Round(time.Second),
					"summary", result.Summary())
				for _, e := range result.Errors {
					logger.Error("import error", "error", e)
				}
				if printErr := printJSON(result); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
}

func tickCmd() *cobra.Command {
	var key int
	cmd := &cobra.Command{
		Use:   "tick <provider>",
		Short: "Import a single key of a provider (cron step)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := providerArg(args[0])
			if err != nil {
				return err
			}
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				im := importer.FromConfig(cfg, pool, nil, logger)
				job, err := im.NewJob(name)
				if err != nil {
					return err
				}
				if key < 0 || key >= job.KeyCount {
					return fmt.Errorf("key %d out of range: provider %s has %d key(s)", key, name, job.KeyCount)
				}
				job.KeyIndex = key
				job, err = im.Step(ctx, job)
				if err != nil {
					return err
				}
				return printJSON(job)
			})
		},
	}
	cmd.Flags().IntVar(&key, "key", 0, "Index of the credential entry to import")
	return cmd
}

// --------------------------------------------------------------------------
// occasion commands
// --------------------------------------------------------------------------

func sweepCmd() *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired occasions and trash events without occasions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				sweeper := maintenance.NewSweeper(occasion.NewStore(pool, cfg.Location), store.New(pool), nil, logger)
				cutoff := maintenance.Cutoff(time.Now(), cfg.Location)
				if now {
					cutoff = time.Now()
				}
				res, err := sweeper.Sweep(ctx, cutoff)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().BoolVar(&now, "now", false, "Use the current time as cutoff instead of the start of today")
	return cmd
}

func occasionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "occasions",
		Short: "Print aggregate occasion counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				counts, err := occasion.NewStore(pool, cfg.Location).Counts(ctx, time.Now())
				if err != nil {
					return err
				}
				return printJSON(counts)
			})
		},
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or with --down, revert) the schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
			if databaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			sqlDB, err := sql.Open("pgx", databaseURL)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer func() { _ = sqlDB.Close() }()
			if err := sqlDB.Ping(); err != nil {
				return fmt.Errorf("ping db: %w", err)
			}

			dbDriver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
			if err != nil {
				return fmt.Errorf("db driver: %w", err)
			}
			srcDriver, err := iofs.New(migrations.FS, ".")
			if err != nil {
				return fmt.Errorf("source driver: %w", err)
			}
			m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
			if err != nil {
				return fmt.Errorf("create migrator: %w", err)
			}
			defer func() { _, _ = m.Close() }()

			if down {
				err = m.Down()
			} else {
				err = m.Up()
			}
			if err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate: %w", err)
			}
			version, dirty, _ := m.Version()
			logger.Info("Migrations complete", "down", down, "version", version, "dirty", dirty)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Revert all migrations")
	return cmd
}

// --------------------------------------------------------------------------
// helpers
// --------------------------------------------------------------------------

func providerArg(arg string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(arg))
	if !config.IsKnownProvider(name) {
		return "", fmt.Errorf("unknown provider %q (want one of %s)", arg, strings.Join(config.ProviderNames, ", "))
	}
	return name, nil
}

func withDB(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
