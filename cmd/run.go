package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matrixise/walletfolio/internal/api"
	"github.com/matrixise/walletfolio/internal/config"
	"github.com/matrixise/walletfolio/internal/health"
	"github.com/matrixise/walletfolio/internal/logger"
	"github.com/matrixise/walletfolio/internal/portfolio"
	"github.com/matrixise/walletfolio/internal/scheduler"
	"github.com/matrixise/walletfolio/internal/storage"
)

var (
	interval string
	once     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the portfolio daemon",
	Long: `Refresh gas prices and the configured wallets on a schedule and serve the
portfolio API, /health and /metrics over HTTP.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&interval, "interval", "", "wallet refresh interval - duration (5m, 1h) or cron (\"*/5 * * * *\") - overrides config")
	runCmd.Flags().BoolVar(&once, "once", false, "refresh every configured wallet once and exit")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Watch(cfgFile, func(next *config.Config) {
		if !flagChanged("log-level") {
			logger.SetLevel(next.LogLevel)
		}
	})
	if err != nil {
		logger.Setup(logLevel)
		slog.Error("Configuration error", "error", err)
		return err
	}
	applyLogging(cfg)

	// Flag wins over config
	if interval != "" {
		if err := scheduler.ValidateScheduleInterval(interval); err != nil {
			return fmt.Errorf("invalid --interval: %w", err)
		}
		cfg.Interval = interval
	}

	slog.Info("Configuration loaded",
		"config_path", cfgFile,
		"network", cfg.Network,
		"wallets", len(cfg.Wallets),
		"interval", cfg.Interval,
		"storage", cfg.Storage.Driver,
	)

	if cfg.Storage.Driver == storage.DriverPostgres {
		if err := storage.RunMigrations(ctx, cfg.Storage.DSN); err != nil {
			slog.Error("Failed to apply migrations", "error", err)
			return err
		}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("Startup failed", "error", err)
		return err
	}
	defer a.Close()

	if once {
		return a.portfolio.RefreshAll(ctx, cfg.Wallets)
	}

	sched, err := scheduler.NewScheduler(ctx, scheduler.Config{
		Timezone: cfg.GetTimezone(),
		Logger:   slog.Default(),
	})
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)
		return fmt.Errorf("scheduler creation failed: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			slog.Error("Scheduler shutdown error", "error", err)
		}
	}()

	if err := a.gas.Schedule(sched); err != nil {
		return fmt.Errorf("failed to schedule gas refresh: %w", err)
	}

	opts := []health.Option{health.WithGas(a.gas)}
	if cfg.Interval != "" && len(cfg.Wallets) > 0 {
		err := sched.Schedule(portfolio.JobName, cfg.Interval, cfg.ShouldRunImmediately(), func(jobCtx context.Context) error {
			return a.portfolio.RefreshAll(jobCtx, cfg.Wallets)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule wallet refresh: %w", err)
		}
		opts = append(opts, health.WithJob(sched, portfolio.JobName))
		slog.Info("Wallet refresh scheduled",
			"schedule", scheduler.DescribeSchedule(cfg.Interval, cfg.GetTimezone()),
			"run_immediately", cfg.ShouldRunImmediately())
	}

	checker := health.NewChecker(a.store, a.chain, opts...)

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: api.NewRouter(api.Deps{
			Portfolio: a.portfolio,
			Approvals: a.scanner,
			Cache:     a.cache,
			Gas:       a.gas,
			Health:    checker.Handler(),
			Metrics:   a.metrics.Handler(),
			Logger:    slog.Default(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// Ensure HTTP server shutdown on exit
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	if err := sched.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		return fmt.Errorf("scheduler start failed: %w", err)
	}

	slog.Info("Daemon started", "jobs", sched.Jobs())

	<-ctx.Done()
	slog.Info("Shutdown requested, stopping daemon")
	return nil
}
