package cmd

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/splitwise-export/pkg/config"
	"github.com/shunichi-ikebuchi/splitwise-export/pkg/db"
	"github.com/shunichi-ikebuchi/splitwise-export/pkg/pathutil"
	"github.com/shunichi-ikebuchi/splitwise-export/pkg/receipts"
	"github.com/shunichi-ikebuchi/splitwise-export/pkg/splitwise"
	"github.com/shunichi-ikebuchi/splitwise-export/pkg/spreadsheet"
)

const defaultOutputPath = "splitwise_export.csv"

// exportOptions holds the settings of one export run.
type exportOptions struct {
	outputPath     string
	receiptsDir    string
	groupID        int64
	dateRange      string
	concurrency    int
	receiptTimeout time.Duration
	noHistory      bool
}

var exportOpts exportOptions

// exportCmd represents the export command.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export Splitwise expenses to CSV or XLSX",
	Long: `Export expenses from the Splitwise API to a spreadsheet.

This command:
1. Authenticates with an API key or a cached OAuth2 token
2. Fetches every expense matching the filters
3. Downloads attached receipts to the receipts directory
4. Writes the spreadsheet (.csv for CSV, anything else for XLSX)
5. Records the run in the history database

Example:
  splitwise-export export -o expenses.csv
  splitwise-export export --group 12345 --date-range 2024-01-01:2024-12-31 -o 2024.xlsx`,
	Args: cobra.NoArgs,
	Run:  runExport,
}

func init() {
	addExportFlags(exportCmd)
}

// addExportFlags binds the export flags to c. The root command carries them
// too, since export is its default action.
func addExportFlags(c *cobra.Command) {
	flags := c.Flags()
	flags.StringVarP(&exportOpts.outputPath, "output", "o", "", "Output file, .csv writes CSV and anything else XLSX (prompted if omitted)")
	flags.StringVar(&exportOpts.receiptsDir, "receipts-dir", "", "Directory for downloaded receipts (default from config)")
	flags.Int64Var(&exportOpts.groupID, "group", 0, "Only export expenses of this group ID")
	flags.StringVar(&exportOpts.dateRange, "date-range", "", "Only export expenses dated within start:end (YYYY-MM-DD:YYYY-MM-DD)")
	flags.IntVar(&exportOpts.concurrency, "concurrency", 0, "Number of concurrent receipt downloads (default from config)")
	flags.BoolVar(&exportOpts.noHistory, "no-history", false, "Do not record this run in the history database")
}

func runExport(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Loading configuration")

	// Load configuration
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")
	if cfg.Debug {
		logLevel.Set(slog.LevelDebug)
	}

	// Validate required fields
	if err := cfg.Validate(
		[]string{"splitwise", "apiUrl"},
		[]string{"export", "receiptsDir"},
	); err != nil {
		exitOnError(err, "invalid configuration")
	}

	opts := exportOpts.withDefaults(cfg)
	exitOnError(opts.validate(), "invalid export options")

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	if opts.outputPath == "" {
		opts.outputPath, err = promptOutputPath(in, out)
		exitOnError(err, "failed to read output path")
	}

	run := db.ExportRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
	slog.Info("Starting export", "run_id", run.ID, "output", opts.outputPath)

	provider, err := newSessionProvider(cfg, in, out)
	exitOnError(err, "failed to set up authentication")

	result, err := runPipeline(ctx, provider, opts, out)
	exitOnError(err, "export failed")
	run.FinishedAt = time.Now()

	if !opts.noHistory {
		paths := pathutil.New(pathutil.Config{
			ReceiptsDir:  opts.receiptsDir,
			DatabasePath: cfg.Export.HistoryDB,
		})
		if err := recordHistory(ctx, paths.GetDatabasePath(), run, opts, result); err != nil {
			slog.Warn("Failed to record export history", "error", err)
		}
	}

	printSummary(out, result)

	slog.Info("Export completed",
		"run_id", run.ID,
		"rows", result.Rows,
		"receipts", len(result.Receipts.Succeeded()),
		"receipt_failures", len(result.Receipts.Failed()),
	)
}

// withDefaults fills unset options from the configuration.
func (o exportOptions) withDefaults(cfg *config.Config) exportOptions {
	if o.receiptsDir == "" {
		o.receiptsDir = cfg.Export.ReceiptsDir
	}
	if o.concurrency <= 0 {
		o.concurrency = cfg.Export.Concurrency
	}
	if o.receiptTimeout <= 0 {
		o.receiptTimeout = cfg.Export.ReceiptTimeout
	}
	return o
}

// validate checks the filters before any authentication prompt.
func (o exportOptions) validate() error {
	if o.groupID < 0 {
		return fmt.Errorf("%w: %d", splitwise.ErrInvalidGroupID, o.groupID)
	}
	if o.dateRange != "" {
		if _, err := splitwise.ParseDateRange(o.dateRange); err != nil {
			return err
		}
	}
	return nil
}

// exportResult summarizes a completed pipeline run.
type exportResult struct {
	User        *splitwise.User
	Expenses    []splitwise.Expense
	Receipts    *receipts.BatchResult
	Rows        int
	OutputPath  string
	ReceiptsDir string
}

// runPipeline authenticates, fetches every expense, downloads receipts and
// writes the spreadsheet.
func runPipeline(ctx context.Context, provider splitwise.SessionProvider, opts exportOptions, out io.Writer) (*exportResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	session, err := provider.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	user, err := session.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	if user.Email != "" {
		fmt.Fprintf(out, "Authenticated as %s (%s)\n", user.DisplayName(), user.Email)
	} else {
		fmt.Fprintf(out, "Authenticated as %s\n", user.DisplayName())
	}

	// Fetch expenses
	slog.Info("Fetching expenses", "group_id", opts.groupID, "date_range", opts.dateRange)
	expenses, err := splitwise.FetchAll(ctx, session, splitwise.FetchOptions{
		GroupID:   opts.groupID,
		DateRange: opts.dateRange,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch expenses: %w", err)
	}
	fmt.Fprintf(out, "Fetched %d expenses\n", len(expenses))

	// Download receipts
	downloader := receipts.NewDownloader(receipts.Config{
		Dir:         opts.receiptsDir,
		Timeout:     opts.receiptTimeout,
		Concurrency: opts.concurrency,
	})
	batch, err := downloader.Download(ctx, expenses)
	if err != nil {
		return nil, fmt.Errorf("failed to download receipts: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("export interrupted: %w", err)
	}
	fmt.Fprintf(out, "Downloaded %d receipts (%d failed)\n", len(batch.Succeeded()), len(batch.Failed()))

	// Write spreadsheet
	rows, err := spreadsheet.Write(opts.outputPath, expenses, batch.Paths())
	if err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}

	return &exportResult{
		User:        user,
		Expenses:    expenses,
		Receipts:    batch,
		Rows:        rows,
		OutputPath:  absolutePath(opts.outputPath),
		ReceiptsDir: absolutePath(opts.receiptsDir),
	}, nil
}

// recordHistory stores the run and the outcome of every receipt.
func recordHistory(ctx context.Context, dbPath string, run db.ExportRun, opts exportOptions, result *exportResult) error {
	slog.Debug("Opening database", "path", dbPath)
	conn, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	run.OutputPath = result.OutputPath
	run.Format = spreadsheet.FormatFor(result.OutputPath).String()
	run.DateRange = opts.dateRange
	if opts.groupID != 0 {
		run.GroupID = sql.NullInt64{Int64: opts.groupID, Valid: true}
	}
	run.ExpensesFetched = len(result.Expenses)
	run.ReceiptsDownloaded = len(result.Receipts.Succeeded())
	run.ReceiptsFailed = len(result.Receipts.Failed())
	run.RowsExported = result.Rows

	history := db.NewHistory(conn)
	if err := history.RecordRun(ctx, run, receiptRecords(result.Receipts)); err != nil {
		return err
	}

	return history.SetMetadata(ctx, "last_user", result.User.DisplayName())
}

func receiptRecords(batch *receipts.BatchResult) []db.ReceiptRecord {
	records := make([]db.ReceiptRecord, 0, len(batch.Results))
	for _, r := range batch.Results {
		record := db.ReceiptRecord{
			ExpenseID: r.ExpenseID,
			URL:       r.URL,
			LocalPath: r.Path,
			Status:    db.ReceiptDownloaded,
		}
		if !r.OK() {
			record.Status = db.ReceiptFailed
			if r.Err != nil {
				record.Error = r.Err.Error()
			}
		}
		records = append(records, record)
	}
	return records
}

// newSessionProvider prefers a personal API key and falls back to OAuth2.
func newSessionProvider(cfg *config.Config, in *bufio.Reader, out io.Writer) (splitwise.SessionProvider, error) {
	if cfg.Splitwise.APIKey != "" {
		slog.Debug("Using API key authentication")
		return splitwise.APIKeyProvider{
			APIKey: cfg.Splitwise.APIKey,
			APIURL: cfg.Splitwise.APIURL,
		}, nil
	}

	store, err := splitwise.NewTokenStore(cfg.Splitwise.TokenPath)
	if err != nil {
		return nil, err
	}

	slog.Debug("Using OAuth2 authentication", "token_path", store.Path())
	return &splitwise.OAuth2Provider{
		Config: splitwise.NewOAuth2Config(cfg.Splitwise.ClientID, cfg.Splitwise.ClientSecret, cfg.Splitwise.RedirectURI),
		Store:  store,
		APIURL: cfg.Splitwise.APIURL,
		Prompt: authCodePrompt(in, out),
	}, nil
}

func authCodePrompt(in *bufio.Reader, out io.Writer) splitwise.PromptFunc {
	return func(authURL string) (string, error) {
		fmt.Fprintf(out, "Open the following URL in your browser and authorize access:\n\n  %s\n\n", authURL)
		fmt.Fprint(out, "Paste the authorization code: ")
		return readLine(in)
	}
}

// promptOutputPath asks for the output file, accepting the default on an
// empty answer or closed input.
func promptOutputPath(in *bufio.Reader, out io.Writer) (string, error) {
	fmt.Fprintf(out, "Output file [%s]: ", defaultOutputPath)

	line, err := readLine(in)
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(out)
		return defaultOutputPath, nil
	}
	if err != nil {
		return "", err
	}
	if line == "" {
		return defaultOutputPath, nil
	}
	return line, nil
}

// readLine returns the next trimmed line. A final line without a newline is
// accepted; io.EOF is returned only when nothing was read.
func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func printSummary(out io.Writer, result *exportResult) {
	fmt.Fprintln(out, "\n=== Export Summary ===")
	fmt.Fprintf(out, "Rows exported:       %d\n", result.Rows)
	fmt.Fprintf(out, "Receipts downloaded: %d\n", len(result.Receipts.Succeeded()))
	fmt.Fprintf(out, "Receipts failed:     %d\n", len(result.Receipts.Failed()))
	fmt.Fprintf(out, "Spreadsheet:         %s\n", result.OutputPath)
	fmt.Fprintf(out, "Receipts directory:  %s\n", result.ReceiptsDir)
	fmt.Fprintln(out)
}

func absolutePath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
