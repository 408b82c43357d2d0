package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/inboxrules/internal/logging"
)

// DefaultAccount is used when no account name is given.
const DefaultAccount = "default"

// oobRedirectURL is the out-of-band redirect used by the CLI consent flow.
const oobRedirectURL = "urn:ietf:wg:oauth:2.0:oob"

var accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ErrNoToken is returned when no stored token exists for an account.
var ErrNoToken = errors.New("no Google OAuth token found")

// Config holds the Google OAuth client registration and the directory
// where per-account tokens are stored.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// TokenDir defaults to <user cache dir>/inboxrules
	TokenDir string
}

// Validate checks that a client registration is present.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("google client id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("google client secret is required")
	}
	return nil
}

func (c Config) oauthConfig() *oauth2.Config {
	redirect := c.RedirectURL
	if redirect == "" {
		redirect = oobRedirectURL
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirect,
		Scopes:       DefaultOAuthScopes,
	}
}

func (c Config) tokenDir() string {
	if c.TokenDir != "" {
		return c.TokenDir
	}
	return DefaultTokenDir()
}

// DefaultTokenDir returns the directory tokens are stored in when none is configured.
func DefaultTokenDir() string {
	return filepath.Join(userCacheDir(), "inboxrules")
}

// validateAccountName restricts account names to characters that are safe in file names.
func validateAccountName(account string) error {
	if account == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if !accountNamePattern.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, '-' and '_' are allowed", account)
	}
	return nil
}

// getTokenFilePath returns the token file for an account inside dir.
func getTokenFilePath(dir, account string) string {
	return filepath.Join(dir, "google-"+account+".token")
}

// AuthURL returns the consent URL the user must visit to authorize an account.
func (c Config) AuthURL(account string) string {
	return c.oauthConfig().AuthCodeURL(account, oauth2.AccessTypeOffline)
}

// SaveToken exchanges an authorization code for tokens and stores them for account.
func (c Config) SaveToken(ctx context.Context, account, authCode string) error {
	if err := validateAccountName(account); err != nil {
		return err
	}

	t, err := c.oauthConfig().Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}

	return c.writeToken(account, t)
}

func (c Config) writeToken(account string, t *oauth2.Token) error {
	dir := c.tokenDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tokenData := t.AccessToken + " " + t.RefreshToken
	if err := os.WriteFile(getTokenFilePath(dir, account), []byte(tokenData), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	slog.Debug("stored google token", logging.Account(account), "token", logging.SanitizeToken(t.AccessToken))
	return nil
}

// HasTokenForAccount checks if a token file exists for the specified account.
func (c Config) HasTokenForAccount(account string) bool {
	if validateAccountName(account) != nil {
		return false
	}
	_, err := os.Stat(getTokenFilePath(c.tokenDir(), account))
	return err == nil
}

// TokenSource returns a refreshing token source for the stored token of account.
func (c Config) TokenSource(ctx context.Context, account string) (oauth2.TokenSource, error) {
	if err := validateAccountName(account); err != nil {
		return nil, err
	}

	slurp, err := os.ReadFile(getTokenFilePath(c.tokenDir(), account))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w for account %q", ErrNoToken, account)
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	f := strings.Fields(strings.TrimSpace(string(slurp)))
	if len(f) != 2 {
		return nil, fmt.Errorf("invalid token format for account %q", account)
	}

	// Expiry in the past forces a refresh on first use.
	return c.oauthConfig().TokenSource(ctx, &oauth2.Token{
		AccessToken:  f[0],
		TokenType:    "Bearer",
		RefreshToken: f[1],
		Expiry:       time.Unix(1, 0),
	}), nil
}

// HTTPClient returns an HTTP client authenticated as account.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func (c Config) HTTPClient(ctx context.Context, account string) (*http.Client, error) {
	ts, err := c.TokenSource(ctx, account)
	if err != nil {
		return nil, err
	}

	base := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
	}
	return &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base},
	}, nil
}

// GetAuthenticationErrorMessage returns a user-facing hint for a missing or
// rejected token.
func GetAuthenticationErrorMessage(account string) string {
	return fmt.Sprintf("Google OAuth token for account %q is missing or invalid. "+
		"Run 'inboxrules auth --account %s' to authorize access.", account, account)
}

func userCacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches")
	case "windows":
		for _, ev := range []string{"TEMP", "TMP"} {
			if v := os.Getenv(ev); v != "" {
				return v
			}
		}
		return os.TempDir()
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(homeDir(), ".cache")
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}
