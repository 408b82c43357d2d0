package google

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func TestValidateAccountName(t *testing.T) {
	tests := []struct {
		name    string
		account string
		wantErr bool
	}{
		{"valid default", "default", false},
		{"valid work", "work", false},
		{"valid with hyphen", "work-email", false},
		{"valid with underscore", "personal_email", false},
		{"valid alphanumeric", "account123", false},
		{"empty", "", true},
		{"with spaces", "my account", true},
		{"with special chars", "account@work", true},
		{"with slash", "work/personal", true},
		{"with dot", "work.email", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAccountName(tt.account)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAccountName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetTokenFilePath(t *testing.T) {
	tests := []struct {
		account string
		want    string
	}{
		{"default", "google-default.token"},
		{"work", "google-work.token"},
		{"personal", "google-personal.token"},
	}

	for _, tt := range tests {
		t.Run(tt.account, func(t *testing.T) {
			got := getTokenFilePath("/tmp/tokens", tt.account)
			if got != filepath.Join("/tmp/tokens", tt.want) {
				t.Errorf("getTokenFilePath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Error("expected error for missing client id")
	}
	if err := (Config{ClientID: "id"}).Validate(); err == nil {
		t.Error("expected error for missing client secret")
	}
	if err := (Config{ClientID: "id", ClientSecret: "secret"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := Config{ClientID: "id", ClientSecret: "secret", TokenDir: t.TempDir()}

	if cfg.HasTokenForAccount("work") {
		t.Fatal("no token should exist yet")
	}

	if err := cfg.writeToken("work", &oauth2.Token{AccessToken: "access", RefreshToken: "refresh"}); err != nil {
		t.Fatalf("writeToken() error = %v", err)
	}

	if !cfg.HasTokenForAccount("work") {
		t.Error("token should exist after write")
	}

	info, err := os.Stat(getTokenFilePath(cfg.TokenDir, "work"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
	}

	ts, err := cfg.TokenSource(context.Background(), "work")
	if err != nil {
		t.Fatalf("TokenSource() error = %v", err)
	}
	if ts == nil {
		t.Fatal("TokenSource() returned nil")
	}

	client, err := NewFileTokenProvider(cfg).HTTPClient(context.Background(), "work")
	if err != nil {
		t.Fatalf("HTTPClient() error = %v", err)
	}
	if _, ok := client.Transport.(*oauth2.Transport); !ok {
		t.Errorf("expected oauth2 transport, got %T", client.Transport)
	}
}

func TestTokenSourceErrors(t *testing.T) {
	cfg := Config{ClientID: "id", ClientSecret: "secret", TokenDir: t.TempDir()}

	_, err := cfg.TokenSource(context.Background(), "missing")
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("expected ErrNoToken, got %v", err)
	}

	_, err = cfg.TokenSource(context.Background(), "bad name")
	if err == nil {
		t.Error("expected error for invalid account name")
	}

	if err := os.WriteFile(getTokenFilePath(cfg.TokenDir, "broken"), []byte("onlyonefield"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err = cfg.TokenSource(context.Background(), "broken")
	if err == nil || !strings.Contains(err.Error(), "invalid token format") {
		t.Errorf("expected invalid token format error, got %v", err)
	}
}

func TestHasTokenForAccount_InvalidNames(t *testing.T) {
	cfg := Config{TokenDir: t.TempDir()}

	if cfg.HasTokenForAccount("invalid account") {
		t.Error("HasTokenForAccount() should return false for invalid account name")
	}
	if cfg.HasTokenForAccount("") {
		t.Error("HasTokenForAccount() should return false for empty account name")
	}
}

func TestAuthURL(t *testing.T) {
	cfg := Config{ClientID: "client-123", ClientSecret: "secret"}
	url := cfg.AuthURL("work")

	if !strings.Contains(url, "client_id=client-123") {
		t.Errorf("AuthURL() should contain client id, got %s", url)
	}
	if !strings.Contains(url, "access_type=offline") {
		t.Errorf("AuthURL() should request offline access, got %s", url)
	}
	if !strings.Contains(url, "gmail.modify") {
		t.Errorf("AuthURL() should request gmail.modify scope, got %s", url)
	}
}

func TestGetAuthenticationErrorMessage(t *testing.T) {
	for _, account := range []string{"default", "work", "personal"} {
		t.Run(account, func(t *testing.T) {
			msg := GetAuthenticationErrorMessage(account)
			if !strings.Contains(msg, account) {
				t.Errorf("GetAuthenticationErrorMessage() should mention account %s", account)
			}
			if !strings.Contains(msg, "OAuth") {
				t.Error("GetAuthenticationErrorMessage() should mention OAuth")
			}
		})
	}
}
