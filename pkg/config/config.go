// Package config provides configuration management for splitwise-export.
// It loads configuration from environment variables, .env files and
// optional YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Splitwise SplitwiseConfig `yaml:"splitwise"`
	Export    ExportConfig    `yaml:"export"`
	Debug     bool            `yaml:"debug"`
}

// SplitwiseConfig represents Splitwise API configuration.
type SplitwiseConfig struct {
	APIURL       string `yaml:"apiUrl"`
	APIKey       string `yaml:"apiKey"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	RedirectURI  string `yaml:"redirectUri"`
	TokenPath    string `yaml:"tokenPath"`
}

// ExportConfig represents export pipeline configuration.
type ExportConfig struct {
	ReceiptsDir    string        `yaml:"receiptsDir"`
	Concurrency    int           `yaml:"concurrency"`
	ReceiptTimeout time.Duration `yaml:"receiptTimeout"`
	HistoryDB      string        `yaml:"historyDb"`
}

const (
	defaultAPIURL         = "https://secure.splitwise.com/api/v3.0"
	defaultRedirectURI    = "http://localhost:8080/callback"
	defaultReceiptsDir    = "receipts"
	defaultConcurrency    = 4
	defaultReceiptTimeout = 20 * time.Second
)

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// A path ending in .yaml or .yml is read as YAML and overrides the
// environment; any other path is loaded as a .env file.
func Load(configPath ...string) (*Config, error) {
	path := ""
	if len(configPath) > 0 {
		path = configPath[0]
	}

	isYAML := isYAMLPath(path)
	if path != "" && !isYAML {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	concurrency, err := parseIntEnv("EXPORT_DOWNLOAD_CONCURRENCY", defaultConcurrency)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDurationEnv("EXPORT_RECEIPT_TIMEOUT", defaultReceiptTimeout)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Splitwise: SplitwiseConfig{
			APIURL:       getEnvOrDefault("SPLITWISE_API_URL", defaultAPIURL),
			APIKey:       os.Getenv("SPLITWISE_API_KEY"),
			ClientID:     os.Getenv("SPLITWISE_CLIENT_ID"),
			ClientSecret: os.Getenv("SPLITWISE_CLIENT_SECRET"),
			RedirectURI:  getEnvOrDefault("SPLITWISE_REDIRECT_URI", defaultRedirectURI),
			TokenPath:    os.Getenv("SPLITWISE_TOKEN_PATH"),
		},
		Export: ExportConfig{
			ReceiptsDir:    getEnvOrDefault("EXPORT_RECEIPTS_DIR", defaultReceiptsDir),
			Concurrency:    concurrency,
			ReceiptTimeout: timeout,
			HistoryDB:      os.Getenv("EXPORT_HISTORY_DB"),
		},
		Debug: os.Getenv("DEBUG") == "true",
	}

	if isYAML {
		if err := config.mergeYAML(path); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// mergeYAML overrides fields set in the YAML file. Unset keys keep their
// environment value.
func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Decoding into the populated struct leaves absent keys untouched.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if c.Export.Concurrency <= 0 {
		return fmt.Errorf("invalid export.concurrency: %d", c.Export.Concurrency)
	}
	if c.Export.ReceiptTimeout <= 0 {
		return fmt.Errorf("invalid export.receiptTimeout: %s", c.Export.ReceiptTimeout)
	}

	return nil
}

// Validate validates the configuration.
// It checks if all required fields are set.
func (c *Config) Validate(required ...[]string) error {
	var missing []string

	for _, path := range required {
		if len(path) < 2 {
			continue
		}

		var value string
		switch path[0] {
		case "splitwise":
			switch path[1] {
			case "apiUrl":
				value = c.Splitwise.APIURL
			case "apiKey":
				value = c.Splitwise.APIKey
			case "clientId":
				value = c.Splitwise.ClientID
			case "clientSecret":
				value = c.Splitwise.ClientSecret
			case "redirectUri":
				value = c.Splitwise.RedirectURI
			}
		case "export":
			switch path[1] {
			case "receiptsDir":
				value = c.Export.ReceiptsDir
			case "historyDb":
				value = c.Export.HistoryDB
			}
		}

		if value == "" {
			missing = append(missing, strings.Join(path, "."))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// HasOAuthClient reports whether OAuth2 client credentials are configured.
func (c *Config) HasOAuthClient() bool {
	return c.Splitwise.ClientID != "" && c.Splitwise.ClientSecret != ""
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses a positive int from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid positive integer value for %s: %s", key, value)
	}

	return parsed, nil
}

// parseDurationEnv parses a Go duration ("20s") or a number of seconds.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}

	return parsed, nil
}
