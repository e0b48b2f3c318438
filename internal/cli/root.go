// Package cli wires the relay's commands: the serving daemon plus
// maintenance utilities for the request audit log.
package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/llmrelay/internal/control"
	"github.com/vietddude/llmrelay/internal/core/config"
	"github.com/vietddude/llmrelay/internal/health"
	redisclient "github.com/vietddude/llmrelay/internal/infra/redis"
	"github.com/vietddude/llmrelay/internal/infra/storage/postgres"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Resilient relay for a local LLM inference service",
	Long: `Relay sits in front of an inference service and keeps callers working
through flaky connections: failures are classified, retried with backoff,
routed around cross-origin blocks, queued while the connection is degraded,
and answered with canned replies when the service is gone entirely.`,
	Run: runRelay,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func runRelay(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	deps := control.Deps{}

	if cfg.Redis.URL != "" {
		snapshots, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer snapshots.Close()
		deps.Snapshots = snapshots
	}

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate("migrations"); err != nil {
			slog.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
		deps.AuditLog = postgres.NewRequestLogRepo(db)
	}

	client, err := control.NewClient(*cfg, deps)
	if err != nil {
		slog.Error("Failed to initialize relay", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := client.Start(ctx); err != nil {
		slog.Error("Failed to start relay", "error", err)
		os.Exit(1)
	}

	healthServer := health.NewServer(client, cfg.Server.Port)
	go func() {
		slog.Info("Status server listening", "port", cfg.Server.Port)
		if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("Status server failed", "error", err)
		}
	}()

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := healthServer.Stop(shutdownCtx); err != nil {
		slog.Error("Error stopping status server", "error", err)
	}
	client.Stop(shutdownCtx)
}
