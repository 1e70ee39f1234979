package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"SPLITWISE_API_URL",
	"SPLITWISE_API_KEY",
	"SPLITWISE_CLIENT_ID",
	"SPLITWISE_CLIENT_SECRET",
	"SPLITWISE_REDIRECT_URI",
	"SPLITWISE_TOKEN_PATH",
	"EXPORT_RECEIPTS_DIR",
	"EXPORT_DOWNLOAD_CONCURRENCY",
	"EXPORT_RECEIPT_TIMEOUT",
	"EXPORT_HISTORY_DB",
	"DEBUG",
}

// clearEnv unsets every config key and restores it after the test, including
// keys a .env file sets during the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Splitwise.APIURL != defaultAPIURL {
		t.Errorf("APIURL = %q", cfg.Splitwise.APIURL)
	}
	if cfg.Export.ReceiptsDir != "receipts" {
		t.Errorf("ReceiptsDir = %q", cfg.Export.ReceiptsDir)
	}
	if cfg.Export.Concurrency != 4 {
		t.Errorf("Concurrency = %d", cfg.Export.Concurrency)
	}
	if cfg.Export.ReceiptTimeout != 20*time.Second {
		t.Errorf("ReceiptTimeout = %s", cfg.Export.ReceiptTimeout)
	}
	if cfg.Debug {
		t.Error("Debug = true by default")
	}
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPLITWISE_API_KEY", "key-from-env")
	t.Setenv("EXPORT_DOWNLOAD_CONCURRENCY", "8")
	t.Setenv("EXPORT_RECEIPT_TIMEOUT", "45")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Splitwise.APIKey != "key-from-env" {
		t.Errorf("APIKey = %q", cfg.Splitwise.APIKey)
	}
	if cfg.Export.Concurrency != 8 {
		t.Errorf("Concurrency = %d", cfg.Export.Concurrency)
	}
	if cfg.Export.ReceiptTimeout != 45*time.Second {
		t.Errorf("ReceiptTimeout = %s", cfg.Export.ReceiptTimeout)
	}
	if !cfg.Debug {
		t.Error("Debug = false")
	}
}

func TestLoadInvalidEnvironment(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"EXPORT_DOWNLOAD_CONCURRENCY", "many"},
		{"EXPORT_DOWNLOAD_CONCURRENCY", "0"},
		{"EXPORT_RECEIPT_TIMEOUT", "soon"},
		{"EXPORT_RECEIPT_TIMEOUT", "-5s"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Load() error = %v, expected error naming %s", err, tt.key)
			}
		})
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "custom.env", "SPLITWISE_CLIENT_ID=cid\nSPLITWISE_CLIENT_SECRET=secret\nEXPORT_RECEIPTS_DIR=/tmp/r\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.HasOAuthClient() {
		t.Errorf("HasOAuthClient() = false, config = %+v", cfg.Splitwise)
	}
	if cfg.Export.ReceiptsDir != "/tmp/r" {
		t.Errorf("ReceiptsDir = %q", cfg.Export.ReceiptsDir)
	}
}

func TestLoadMissingDotEnvFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("Load() error = nil for a missing .env file")
	}
}

func TestLoadYAMLOverridesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPLITWISE_API_KEY", "env-key")
	t.Setenv("EXPORT_RECEIPTS_DIR", "env-receipts")

	path := writeFile(t, "export.yaml", `
splitwise:
  apiKey: yaml-key
export:
  concurrency: 2
  receiptTimeout: 30s
  historyDb: /tmp/history.db
debug: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Splitwise.APIKey != "yaml-key" {
		t.Errorf("APIKey = %q, expected YAML value", cfg.Splitwise.APIKey)
	}
	if cfg.Export.ReceiptsDir != "env-receipts" {
		t.Errorf("ReceiptsDir = %q, expected env value kept", cfg.Export.ReceiptsDir)
	}
	if cfg.Export.Concurrency != 2 || cfg.Export.ReceiptTimeout != 30*time.Second {
		t.Errorf("Export = %+v", cfg.Export)
	}
	if cfg.Export.HistoryDB != "/tmp/history.db" || !cfg.Debug {
		t.Errorf("config = %+v", cfg)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)

	for name, content := range map[string]string{
		"syntax.yml":      "export: [unclosed",
		"concurrency.yml": "export:\n  concurrency: 0\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, name, content)); err == nil {
				t.Error("Load() error = nil, expected failure")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Splitwise: SplitwiseConfig{APIURL: "https://example.com", ClientID: "cid"},
	}

	if err := cfg.Validate([]string{"splitwise", "apiUrl"}, []string{"splitwise", "clientId"}); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	err := cfg.Validate([]string{"splitwise", "clientSecret"}, []string{"export", "receiptsDir"})
	if err == nil {
		t.Fatal("Validate() error = nil, expected missing fields")
	}
	if !strings.Contains(err.Error(), "splitwise.clientSecret") || !strings.Contains(err.Error(), "export.receiptsDir") {
		t.Errorf("Validate() error = %v", err)
	}
}
