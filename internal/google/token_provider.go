package google

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// TokenProvider is an interface for providing OAuth tokens for Google APIs.
type TokenProvider interface {
	// GetTokenForAccount retrieves an OAuth token for the specified account
	GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error)

	// HasTokenForAccount checks if a token exists for the specified account
	HasTokenForAccount(account string) bool
}

// ClientProvider hands out authenticated HTTP clients per Google account.
type ClientProvider interface {
	HTTPClient(ctx context.Context, account string) (*http.Client, error)
}

// FileTokenProvider provides tokens from per-account files on disk.
type FileTokenProvider struct {
	config Config
}

// NewFileTokenProvider creates a new file-based token provider.
func NewFileTokenProvider(config Config) *FileTokenProvider {
	return &FileTokenProvider{config: config}
}

// GetTokenForAccount retrieves a token from disk for the specified account,
// refreshing it if needed.
func (p *FileTokenProvider) GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error) {
	ts, err := p.config.TokenSource(ctx, account)
	if err != nil {
		return nil, err
	}

	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get token from file: %w", err)
	}

	return token, nil
}

// HasTokenForAccount checks if a token file exists for the specified account.
func (p *FileTokenProvider) HasTokenForAccount(account string) bool {
	return p.config.HasTokenForAccount(account)
}

// HTTPClient returns an authenticated client for account.
func (p *FileTokenProvider) HTTPClient(ctx context.Context, account string) (*http.Client, error) {
	return p.config.HTTPClient(ctx, account)
}
