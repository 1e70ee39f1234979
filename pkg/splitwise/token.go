package splitwise

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

const defaultTokenPath = ".config/splitwise-export/token.json"

var (
	// ErrNoCredentials is returned when no cached or configured credentials exist.
	ErrNoCredentials = errors.New("no Splitwise credentials available")

	// ErrMalformedToken is returned when the token file cannot be used.
	ErrMalformedToken = errors.New("token file is malformed or missing keys")
)

// TokenStore persists the OAuth2 token between runs.
type TokenStore struct {
	tokenPath string
}

// NewTokenStore creates a token store. An empty path selects
// ~/.config/splitwise-export/token.json and fails when the home directory
// is unknown.
func NewTokenStore(tokenPath string) (*TokenStore, error) {
	if tokenPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve default token path: %w", err)
		}
		tokenPath = filepath.Join(home, defaultTokenPath)
	}
	return &TokenStore{tokenPath: tokenPath}, nil
}

// Path returns the token file path.
func (s *TokenStore) Path() string {
	return s.tokenPath
}

// Load loads the token from file.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.tokenPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedToken, s.tokenPath, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s: access_token is empty", ErrMalformedToken, s.tokenPath)
	}

	return &token, nil
}

// Save writes the token readable by the owner only.
func (s *TokenStore) Save(token *oauth2.Token) error {
	dir := filepath.Dir(s.tokenPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(s.tokenPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(s.tokenPath, 0600); err != nil {
		return fmt.Errorf("failed to restrict token file permissions: %w", err)
	}

	return nil
}
