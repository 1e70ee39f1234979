package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/splitwise-export/pkg/config"
	"github.com/shunichi-ikebuchi/splitwise-export/pkg/db"
	"github.com/shunichi-ikebuchi/splitwise-export/pkg/pathutil"
)

var historyLimit int

// historyCmd represents the history command.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display export history",
	Long: `Display statistics about past exports and the most recent runs.

Shows:
- Total number of export runs and rows exported
- Total number of downloaded and failed receipts
- Last export timestamp
- The most recent runs

Example:
  splitwise-export history
  splitwise-export history --limit 20`,
	Args: cobra.NoArgs,
	Run:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of recent runs to show")
}

func runHistory(cmd *cobra.Command, args []string) {
	slog.Info("Loading configuration")

	// Load configuration
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	// Validate required fields
	if err := cfg.Validate([]string{"export", "receiptsDir"}); err != nil {
		exitOnError(err, "invalid configuration")
	}

	pathResolver := pathutil.New(pathutil.Config{
		ReceiptsDir:  cfg.Export.ReceiptsDir,
		DatabasePath: cfg.Export.HistoryDB,
	})

	dbPath := pathResolver.GetDatabasePath()
	if !pathutil.FileExists(dbPath) {
		fmt.Fprintln(cmd.OutOrStdout(), "No export history yet")
		return
	}

	// Open database connection
	slog.Debug("Opening database", "path", dbPath)
	conn, err := db.Open(dbPath)
	exitOnError(err, "failed to open database")
	defer conn.Close()

	ctx := context.Background()
	history := db.NewHistory(conn)

	stats, err := history.GetStats(ctx)
	exitOnError(err, "failed to get statistics")

	runs, err := history.ListRuns(ctx, historyLimit)
	exitOnError(err, "failed to list runs")

	printHistory(cmd.OutOrStdout(), stats, runs)

	slog.Info("History displayed successfully")
}

func printHistory(out io.Writer, stats *db.Stats, runs []db.ExportRun) {
	fmt.Fprintln(out, "\n=== Export Statistics ===")
	fmt.Fprintf(out, "Total runs:          %d\n", stats.TotalRuns)
	fmt.Fprintf(out, "Total rows exported: %d\n", stats.TotalRowsExported)
	fmt.Fprintf(out, "Receipts downloaded: %d\n", stats.ReceiptsDownloaded)
	fmt.Fprintf(out, "Receipts failed:     %d\n", stats.ReceiptsFailed)

	if stats.LastExport.Valid {
		fmt.Fprintf(out, "Last export:         %s\n", stats.LastExport.String)
	} else {
		fmt.Fprintf(out, "Last export:         (never)\n")
	}

	if len(runs) == 0 {
		fmt.Fprintln(out)
		return
	}

	fmt.Fprintln(out, "\n=== Recent Runs ===")
	for _, run := range runs {
		group := "all"
		if run.GroupID.Valid {
			group = fmt.Sprintf("%d", run.GroupID.Int64)
		}
		dateRange := run.DateRange
		if dateRange == "" {
			dateRange = "any"
		}

		fmt.Fprintf(out, "%s  %s  %-4s rows=%d receipts=%d failed=%d group=%s dates=%s\n",
			run.StartedAt.Local().Format(time.DateTime),
			shortID(run.ID),
			run.Format,
			run.RowsExported,
			run.ReceiptsDownloaded,
			run.ReceiptsFailed,
			group,
			dateRange,
		)
		fmt.Fprintf(out, "    %s (%s)\n", run.OutputPath, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(out)
}

// shortID abbreviates a run UUID to its first block.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
