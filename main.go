// Command accounts serves the registration and login site and provides
// the database maintenance commands that go with it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/msomdec/accounts/internal/config"
	"github.com/msomdec/accounts/internal/domain"
	"github.com/msomdec/accounts/internal/repository/postgres"
	"github.com/msomdec/accounts/internal/repository/sqlite"
)

func main() {
	var (
		envFile string
		cfg     *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           "accounts",
		Short:         "User registration and login site",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(envFile)
			if err != nil {
				return err
			}
			cfg = loaded
			setupLogging(cfg.SlogLevel())
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	cfgFn := func() *config.Config { return cfg }
	rootCmd.AddCommand(
		serveCommand(cfgFn),
		migrateCommand(cfgFn),
		createSuperuserCommand(cfgFn),
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level slog.Level) {
	logOpts := &slog.HandlerOptions{Level: level}
	logger := slog.New(slog.NewMultiHandler(
		slog.NewTextHandler(os.Stdout, logOpts),
		slog.NewJSONHandler(os.Stderr, logOpts),
	))
	slog.SetDefault(logger)
}

// openDatabase connects to the backend selected by DATABASE_DRIVER.
func openDatabase(ctx context.Context, cfg *config.Config) (domain.Database, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		return db, nil
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
