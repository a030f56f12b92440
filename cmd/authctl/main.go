package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/redmonkez12/go-session-auth/internal/app"
	"github.com/redmonkez12/go-session-auth/internal/config"
	"github.com/redmonkez12/go-session-auth/internal/database"
	"github.com/redmonkez12/go-session-auth/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "authctl",
		Short:        "Maintenance commands for the session auth service",
		Long:         "Creates the database schema and purges expired sessions and password reset tokens. Configuration is read from the environment and .env, like the API server.",
		SilenceUsage: true,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the users, sessions and password_reset_tokens tables",
		RunE:  runMigrate,
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired sessions and password reset tokens",
		RunE:  runCleanup,
	}
	cleanupCmd.Flags().Duration("every", 0, "Repeat the cleanup at this interval until interrupted (0 runs once)")

	rootCmd.AddCommand(migrateCmd, cleanupCmd)
	return rootCmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Server.IsDevelopment())

	db, err := database.Open(cfg.Database.Driver, cfg.Database.ConnectionString(), cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(cmd.Context(), db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("schema is up to date", "db_driver", cfg.Database.Driver)
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	every, _ := cmd.Flags().GetDuration("every")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Server.IsDevelopment())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := purgeOnce(ctx, application); err != nil {
		return err
	}
	if every <= 0 {
		return nil
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup stopped")
			return nil
		case <-ticker.C:
			if err := purgeOnce(ctx, application); err != nil {
				logger.Error("cleanup failed", "error", err.Error())
			}
		}
	}
}

func purgeOnce(ctx context.Context, a *app.App) error {
	result, err := a.AuthService.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	a.Logger.Info("expired rows deleted",
		"sessions", result.Sessions,
		"reset_tokens", result.ResetTokens,
	)
	return nil
}
