package splitwise

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
)

func TestAPIKeyProvider(t *testing.T) {
	_, srv := newFakeAPI(t, "personal-key", 0)

	session, err := APIKeyProvider{APIKey: "personal-key", APIURL: srv.URL}.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	user, err := session.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if user.FirstName != "Ada" {
		t.Errorf("CurrentUser() = %+v", user)
	}
}

func TestAPIKeyProviderWithoutKey(t *testing.T) {
	if _, err := (APIKeyProvider{}).Authenticate(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Authenticate() error = %v, expected ErrNoCredentials", err)
	}
}

// newTokenServer serves an OAuth2 token endpoint that accepts code "good-code".
func newTokenServer(t *testing.T, accessToken string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var exchanges atomic.Int32
	r := chi.NewRouter()
	r.Post("/oauth/token", func(w http.ResponseWriter, req *http.Request) {
		exchanges.Add(1)
		if err := req.ParseForm(); err != nil || req.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token": accessToken,
			"token_type":   "bearer",
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &exchanges
}

func newTestOAuth2Provider(t *testing.T, tokenSrv, apiSrv *httptest.Server, tokenPath string, prompt PromptFunc) *OAuth2Provider {
	t.Helper()

	cfg := NewOAuth2Config("client-id", "client-secret", "http://localhost:8080/callback")
	cfg.Endpoint.TokenURL = tokenSrv.URL + "/oauth/token"

	return &OAuth2Provider{
		Config: cfg,
		Store:  newTestTokenStore(t, tokenPath),
		APIURL: apiSrv.URL,
		Prompt: prompt,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestOAuth2ProviderAuthorizesAndCaches(t *testing.T) {
	tokenSrv, exchanges := newTokenServer(t, "oauth-token")
	_, apiSrv := newFakeAPI(t, "oauth-token", 0)
	tokenPath := filepath.Join(t.TempDir(), "cfg", "token.json")

	var shownURL string
	provider := newTestOAuth2Provider(t, tokenSrv, apiSrv, tokenPath, func(authURL string) (string, error) {
		shownURL = authURL
		return " good-code\n", nil
	})

	session, err := provider.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if _, err := session.CurrentUser(context.Background()); err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}

	u, err := url.Parse(shownURL)
	if err != nil || !strings.HasPrefix(shownURL, AuthURL) {
		t.Fatalf("authorization URL = %q", shownURL)
	}
	if u.Query().Get("client_id") != "client-id" || u.Query().Get("state") == "" {
		t.Errorf("authorization URL query = %v", u.Query())
	}

	info, err := os.Stat(tokenPath)
	if err != nil {
		t.Fatalf("token not saved: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("token file mode = %v, expected 0600", info.Mode().Perm())
	}

	// Second run reuses the cached token without prompting.
	provider.Prompt = func(string) (string, error) {
		t.Error("prompted although a cached token exists")
		return "", errors.New("unexpected prompt")
	}
	session, err = provider.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("second Authenticate() error = %v", err)
	}
	if _, err := session.CurrentUser(context.Background()); err != nil {
		t.Fatalf("CurrentUser() with cached token error = %v", err)
	}
	if exchanges.Load() != 1 {
		t.Errorf("token endpoint called %d times, expected 1", exchanges.Load())
	}
}

func TestOAuth2ProviderMalformedTokenReauthorizes(t *testing.T) {
	tokenSrv, exchanges := newTokenServer(t, "fresh-token")
	_, apiSrv := newFakeAPI(t, "fresh-token", 0)
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(tokenPath, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	provider := newTestOAuth2Provider(t, tokenSrv, apiSrv, tokenPath, func(string) (string, error) {
		return "good-code", nil
	})

	if _, err := provider.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if exchanges.Load() != 1 {
		t.Errorf("token endpoint called %d times, expected 1", exchanges.Load())
	}

	token, err := provider.Store.Load()
	if err != nil || token.AccessToken != "fresh-token" {
		t.Errorf("Load() = %+v, %v", token, err)
	}
}

func TestOAuth2ProviderExchangeFailure(t *testing.T) {
	tokenSrv, _ := newTokenServer(t, "unused")
	_, apiSrv := newFakeAPI(t, "", 0)
	tokenPath := filepath.Join(t.TempDir(), "token.json")

	provider := newTestOAuth2Provider(t, tokenSrv, apiSrv, tokenPath, func(string) (string, error) {
		return "bad-code", nil
	})

	if _, err := provider.Authenticate(context.Background()); err == nil {
		t.Fatal("Authenticate() error = nil, expected exchange failure")
	}
	if _, err := os.Stat(tokenPath); !os.IsNotExist(err) {
		t.Error("token saved after failed exchange")
	}
}

func TestOAuth2ProviderWithoutClientCredentials(t *testing.T) {
	provider := &OAuth2Provider{
		Config: NewOAuth2Config("", "", ""),
		Store:  newTestTokenStore(t, filepath.Join(t.TempDir(), "token.json")),
		Prompt: func(string) (string, error) { return "code", nil },
	}

	if _, err := provider.Authenticate(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Authenticate() error = %v, expected ErrNoCredentials", err)
	}
}

func newTestTokenStore(t *testing.T, path string) *TokenStore {
	t.Helper()
	store, err := NewTokenStore(path)
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	return store
}

func TestNewTokenStoreDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	store, err := NewTokenStore("")
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	if expected := filepath.Join(home, ".config", "splitwise-export", "token.json"); store.Path() != expected {
		t.Errorf("Path() = %q, expected %q", store.Path(), expected)
	}
}

func TestNewTokenStoreWithoutHome(t *testing.T) {
	t.Setenv("HOME", "")

	if store, err := NewTokenStore(""); err == nil {
		t.Errorf("NewTokenStore() = %q, expected an error without a home directory", store.Path())
	}
}

func TestTokenStore(t *testing.T) {
	store := newTestTokenStore(t, filepath.Join(t.TempDir(), "nested", "token.json"))

	if _, err := store.Load(); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Load() on missing file error = %v, expected ErrNoCredentials", err)
	}

	if err := store.Save(&oauth2.Token{AccessToken: "abc", TokenType: "bearer"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	token, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if token.AccessToken != "abc" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}

	if err := os.WriteFile(store.Path(), []byte(`{"token_type": "bearer"}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("Load() without access_token error = %v, expected ErrMalformedToken", err)
	}
}
