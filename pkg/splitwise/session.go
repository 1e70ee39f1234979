package splitwise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Splitwise OAuth2 endpoints.
const (
	AuthURL  = "https://secure.splitwise.com/oauth/authorize"
	TokenURL = "https://secure.splitwise.com/oauth/token"
)

// SessionProvider produces an authenticated Session.
type SessionProvider interface {
	Authenticate(ctx context.Context) (Session, error)
}

// APIKeyProvider authenticates with a personal API key sent as a bearer token.
type APIKeyProvider struct {
	APIKey string
	APIURL string
}

// Authenticate implements SessionProvider.
func (p APIKeyProvider) Authenticate(ctx context.Context) (Session, error) {
	if p.APIKey == "" {
		return nil, ErrNoCredentials
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.APIKey, TokenType: "Bearer"})
	return NewClient(ClientConfig{
		APIURL:     p.APIURL,
		HTTPClient: oauth2.NewClient(ctx, ts),
	}), nil
}

// PromptFunc shows the authorization URL to the user and returns the
// authorization code they obtained.
type PromptFunc func(authURL string) (string, error)

// OAuth2Provider authenticates with the OAuth2 authorization-code flow and
// caches the token in a TokenStore.
type OAuth2Provider struct {
	Config *oauth2.Config
	Store  *TokenStore
	APIURL string
	Prompt PromptFunc
	Logger *slog.Logger
}

// NewOAuth2Config returns an oauth2.Config for the Splitwise endpoints.
func NewOAuth2Config(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   AuthURL,
			TokenURL:  TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Authenticate implements SessionProvider. A cached token is reused as is;
// otherwise the user is walked through authorization and the new token saved.
func (p *OAuth2Provider) Authenticate(ctx context.Context) (Session, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	token, err := p.Store.Load()
	switch {
	case err == nil:
		logger.Debug("Using cached Splitwise token", "path", p.Store.Path())
	case errors.Is(err, ErrMalformedToken):
		logger.Warn("Cached token unusable, re-authorizing", "path", p.Store.Path(), "error", err)
		token = nil
	case errors.Is(err, ErrNoCredentials):
		token = nil
	default:
		return nil, err
	}

	if token == nil {
		token, err = p.authorize(ctx)
		if err != nil {
			return nil, err
		}
		if err := p.Store.Save(token); err != nil {
			return nil, err
		}
		logger.Info("Authorization successful, token saved", "path", p.Store.Path())
	}

	return NewClient(ClientConfig{
		APIURL:     p.APIURL,
		HTTPClient: p.Config.Client(ctx, token),
	}), nil
}

func (p *OAuth2Provider) authorize(ctx context.Context) (*oauth2.Token, error) {
	if p.Config == nil || p.Config.ClientID == "" || p.Config.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client id and client secret are required for authorization", ErrNoCredentials)
	}
	if p.Prompt == nil {
		return nil, fmt.Errorf("%w: interactive authorization is not available", ErrNoCredentials)
	}

	authURL := p.Config.AuthCodeURL(uuid.NewString())
	code, err := p.Prompt(authURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrNoCredentials)
	}

	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	return token, nil
}
