package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/llmrelay/internal/core/config"
	"github.com/vietddude/llmrelay/internal/infra/storage/postgres"
)

var purgeCmd = &cobra.Command{
	Use:   "purge-log [days]",
	Short: "Delete audit log entries older than the given number of days",
	Args:  cobra.ExactArgs(1),
	Run:   runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) {
	days, err := strconv.Atoi(args[0])
	if err != nil || days < 0 {
		fmt.Printf("Invalid day count: %v\n", args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Println("No database configured; the audit log is disabled.")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	cutoff := time.Now().AddDate(0, 0, -days)
	removed, err := postgres.NewRequestLogRepo(db).PurgeOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to purge request log", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Purged %d entries older than %s\n", removed, cutoff.Format("2006-01-02"))
}
