package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/llmrelay/internal/core/config"
	"github.com/vietddude/llmrelay/internal/infra/storage/postgres"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent requests from the audit log",
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
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

	entries, err := postgres.NewRequestLogRepo(db).Recent(ctx, historyLimit)
	if err != nil {
		slog.Error("Failed to query request log", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TIME\tMODEL\tSTRATEGY\tOUTCOME\tCATEGORY\tDURATION")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dms\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Model, e.Strategy, e.Outcome, e.Category, e.DurationMs)
	}
	_ = w.Flush()
}
