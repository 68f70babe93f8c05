package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/msomdec/accounts/internal/config"
	"github.com/msomdec/accounts/internal/domain"
	"github.com/msomdec/accounts/internal/service"
)

const superuserPasswordEnv = "SUPERUSER_PASSWORD"

func createSuperuserCommand(cfg func() *config.Config) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create a staff user who can use the admin site",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(superuserPasswordEnv)
			}
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password (or %s) are required", superuserPasswordEnv)
			}

			ctx := cmd.Context()
			c := cfg()

			db, err := openDatabase(ctx, c)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}

			auth := service.NewAuthService(db.Users(), c.JWTSecret, c.BcryptCost)
			user, err := auth.CreateSuperuser(ctx, username, password)
			if errors.Is(err, domain.ErrDuplicateUsername) {
				return fmt.Errorf("user %q already exists", username)
			}
			if err != nil {
				return err
			}

			slog.Info("superuser created", "user_id", user.ID, "username", user.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "password (or set "+superuserPasswordEnv+")")
	return cmd
}
