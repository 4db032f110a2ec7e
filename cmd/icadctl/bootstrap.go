package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/imrysn/kmti-icad-hub/internal/application/auth"
	"github.com/imrysn/kmti-icad-hub/internal/config"
	"github.com/imrysn/kmti-icad-hub/internal/wire"
	"github.com/imrysn/kmti-icad-hub/pkg/utils"
)

var (
	bootstrapUsername string
	bootstrapEmail    string
	bootstrapFullName string
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the initial admin user",
	Long: `Create the initial admin user if it does not exist yet.

The password is read from BOOTSTRAP_ADMIN_PASSWORD.`,
	Args: cobra.NoArgs,
	RunE: runBootstrap,
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapUsername, "username", envOr("BOOTSTRAP_ADMIN_USERNAME", "admin"), "admin username")
	bootstrapCmd.Flags().StringVar(&bootstrapEmail, "email", envOr("BOOTSTRAP_ADMIN_EMAIL", "admin@kmti.local"), "admin email")
	bootstrapCmd.Flags().StringVar(&bootstrapFullName, "full-name", "System Admin", "admin display name")
	rootCmd.AddCommand(bootstrapCmd)
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	password := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	if password == "" {
		return errors.New("BOOTSTRAP_ADMIN_PASSWORD is not set")
	}

	return withData(cmd, func(ctx context.Context, cfg *config.Config, data *wire.DataLayer) error {
		svc := auth.NewService(data.Users, utils.NewJWTManager(
			cfg.Security.JWT.Secret,
			cfg.Security.JWT.Issuer,
			cfg.Security.JWT.Expiration,
		))
		user, created, err := svc.Bootstrap(ctx, auth.RegisterInput{
			Username: bootstrapUsername,
			Email:    bootstrapEmail,
			Password: password,
			FullName: bootstrapFullName,
		})
		if err != nil {
			return err
		}
		if !created {
			cmd.Printf("Admin user %s already exists.\n", user.Username)
			return nil
		}
		cmd.Printf("Admin user %s created (id %d).\n", user.Username, user.ID)
		return nil
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
