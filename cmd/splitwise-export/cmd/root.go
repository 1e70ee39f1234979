// Package cmd provides CLI commands for splitwise-export.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool

	// logLevel is shared with the default handler so configuration loaded
	// after startup can still turn on debug logging.
	logLevel = new(slog.LevelVar)
)

// rootCmd represents the base command when called without any subcommands.
// Without a subcommand it runs an export.
var rootCmd = &cobra.Command{
	Use:   "splitwise-export",
	Short: "Export Splitwise expenses and receipts to a spreadsheet",
	Long: `splitwise-export is a CLI tool that exports your Splitwise
expense history to a CSV or XLSX spreadsheet.

It supports:
- Fetching every expense, optionally filtered by group and date range
- Downloading attached receipt images
- Linking downloaded receipts from the spreadsheet
- Recording export history in SQLite

Example:
  splitwise-export -o expenses.csv
  splitwise-export export --group 12345 --date-range 2024-01-01:2024-12-31 -o 2024.xlsx
  splitwise-export history`,
	Args: cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Setup logging
		if debug {
			logLevel.Set(slog.LevelDebug)
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
	Run: runExport,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, .env or .yaml (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	addExportFlags(rootCmd)

	// Add subcommands
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(historyCmd)
}

// Helper function to get config file path.
func getConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "" // Will use default .env loading
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
