// Package receipts downloads expense receipt attachments to local storage.
// A failed receipt never fails the batch; each outcome is reported in its
// own Result.
package receipts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shunichi-ikebuchi/splitwise-export/pkg/pathutil"
	"github.com/shunichi-ikebuchi/splitwise-export/pkg/splitwise"
)

const (
	// DefaultTimeout bounds each receipt request.
	DefaultTimeout = 20 * time.Second
	// DefaultConcurrency is the number of simultaneous downloads.
	DefaultConcurrency = 4

	chunkSize = 32 << 10
)

// Config represents the configuration for Downloader.
type Config struct {
	Dir         string
	Timeout     time.Duration // Default: 20 seconds
	Concurrency int           // Default: 4
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Downloader fetches receipt images into a directory.
type Downloader struct {
	paths       *pathutil.PathResolver
	httpClient  *http.Client
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

// Result is the outcome for a single receipt.
type Result struct {
	ExpenseID int64
	URL       string
	Path      string // set on success
	Err       error  // set on failure
}

// OK reports whether the receipt was saved.
func (r Result) OK() bool {
	return r.Err == nil && r.Path != ""
}

// BatchResult collects the outcome of every candidate receipt, in the order
// the expenses were given.
type BatchResult struct {
	Results []Result
}

// Paths maps expense ID to local path for every saved receipt.
func (b *BatchResult) Paths() map[int64]string {
	paths := make(map[int64]string, len(b.Results))
	for _, r := range b.Results {
		if r.OK() {
			paths[r.ExpenseID] = r.Path
		}
	}
	return paths
}

// Succeeded returns the saved receipts.
func (b *BatchResult) Succeeded() []Result {
	var out []Result
	for _, r := range b.Results {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the receipts that could not be saved.
func (b *BatchResult) Failed() []Result {
	var out []Result
	for _, r := range b.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// NewDownloader creates a new Downloader.
func NewDownloader(config Config) *Downloader {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Downloader{
		paths:       pathutil.New(pathutil.Config{ReceiptsDir: config.Dir}),
		httpClient:  httpClient,
		timeout:     timeout,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Download saves the receipt of every expense that has one. Expenses without
// a receipt URL are skipped. The only error returned is failure to create the
// receipts directory; per-receipt failures are reported in the BatchResult.
func (d *Downloader) Download(ctx context.Context, expenses []splitwise.Expense) (*BatchResult, error) {
	if err := pathutil.EnsureDir(d.paths.GetReceiptsDir()); err != nil {
		return nil, err
	}

	var candidates []splitwise.Expense
	for _, exp := range expenses {
		if exp.HasReceipt() {
			candidates = append(candidates, exp)
		}
	}

	results := make([]Result, len(candidates))

	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for i, exp := range candidates {
		i, exp := i, exp
		g.Go(func() error {
			results[i] = d.downloadOne(ctx, exp)
			return nil
		})
	}
	_ = g.Wait()

	batch := &BatchResult{Results: results}
	d.logger.Info("Downloaded receipts",
		"downloaded", len(batch.Succeeded()),
		"failed", len(batch.Failed()),
		"candidates", len(candidates),
	)

	return batch, nil
}

func (d *Downloader) downloadOne(ctx context.Context, exp splitwise.Expense) Result {
	result := Result{ExpenseID: exp.ID, URL: exp.ReceiptURL}
	localPath := d.paths.GetReceiptPath(exp.ID, exp.ReceiptURL)

	if err := d.fetch(ctx, exp.ReceiptURL, localPath); err != nil {
		d.logger.Warn("Failed to download receipt", "expense_id", exp.ID, "error", err)
		result.Err = err
		return result
	}

	d.logger.Debug("Downloaded receipt", "expense_id", exp.ID, "path", localPath)
	result.Path = localPath
	return result
}

func (d *Downloader) fetch(ctx context.Context, url, localPath string) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(localPath)
		}
	}()

	if _, err := io.CopyBuffer(f, resp.Body, make([]byte, chunkSize)); err != nil {
		return fmt.Errorf("failed to write receipt: %w", err)
	}

	return nil
}
