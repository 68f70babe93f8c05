package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/msomdec/accounts/internal/config"
)

func migrateCommand(cfg func() *config.Config) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database to the latest version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := openDatabase(ctx, cfg())
			if err != nil {
				return err
			}
			defer db.Close()

			if status {
				pending, err := db.PendingMigrations(ctx)
				if err != nil {
					return fmt.Errorf("list pending migrations: %w", err)
				}
				if len(pending) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
					return nil
				}
				for _, name := range pending {
					fmt.Fprintln(cmd.OutOrStdout(), "pending:", name)
				}
				return nil
			}

			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			slog.Info("database migrations applied", "driver", cfg().Database.Driver)
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "list pending migrations without applying them")
	return cmd
}
