package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matrixise/walletfolio/internal/config"
	"github.com/matrixise/walletfolio/internal/logger"
	"github.com/matrixise/walletfolio/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage PostgreSQL migrations",
	Long:  `Run, rollback, or check the status of the cache and snapshot history migrations.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback the last migration",
	RunE:  runMigrateDown,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE:  runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

// getDatabaseURL reads the DSN from the environment only, so migrations can
// run without a full config.
func getDatabaseURL() (string, error) {
	v := viper.New()
	_ = v.BindEnv("dsn", config.EnvPrefix+"_STORAGE_DSN", "DATABASE_URL")
	dsn := v.GetString("dsn")
	if dsn == "" {
		return "", fmt.Errorf("%s_STORAGE_DSN or DATABASE_URL is required", config.EnvPrefix)
	}
	return dsn, nil
}

func withDSN(fn func(ctx context.Context, dsn string) error) error {
	logger.Setup(logLevel)

	dsn, err := getDatabaseURL()
	if err != nil {
		return err
	}
	return fn(context.Background(), dsn)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	return withDSN(func(ctx context.Context, dsn string) error {
		if err := storage.RunMigrations(ctx, dsn); err != nil {
			slog.Error("Migration failed", "error", err)
			return err
		}
		slog.Info("Migrations applied successfully")
		return nil
	})
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	return withDSN(func(ctx context.Context, dsn string) error {
		if err := storage.MigrateDown(ctx, dsn); err != nil {
			slog.Error("Rollback failed", "error", err)
			return err
		}
		slog.Info("Migration rolled back successfully")
		return nil
	})
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	return withDSN(func(ctx context.Context, dsn string) error {
		if err := storage.MigrateStatus(ctx, dsn); err != nil {
			slog.Error("Failed to get migration status", "error", err)
			return err
		}
		return nil
	})
}
