package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teemow/inboxrules/internal/google"
	"github.com/teemow/inboxrules/internal/processor"
)

// Environment variables that override the config file
const (
	EnvConfigPath   = "INBOXRULES_CONFIG"
	EnvDatabaseURL  = "INBOXRULES_DATABASE_URL"
	EnvClientID     = "GOOGLE_CLIENT_ID"
	EnvClientSecret = "GOOGLE_CLIENT_SECRET"
	EnvTokenDir     = "INBOXRULES_TOKEN_DIR"
	EnvMaxEmails    = "INBOXRULES_MAX_EMAILS"
	EnvCallTimeout  = "INBOXRULES_CALL_TIMEOUT"
	EnvHTTPAddr     = "INBOXRULES_HTTP_ADDR"
	EnvMetricsAddr  = "INBOXRULES_METRICS_ADDR"
)

// DatabaseConfig selects the rule store. An empty URL uses the in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// GmailConfig holds the Google OAuth client and token settings.
type GmailConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	TokenDir     string `yaml:"token_dir"`
}

// ProcessingConfig bounds processing batches.
type ProcessingConfig struct {
	MaxEmails     int           `yaml:"max_emails"`
	PreviewEmails int           `yaml:"preview_emails"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
}

// ServerConfig configures the HTTP API and the metrics server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Config is the complete runtime configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Gmail      GmailConfig      `yaml:"gmail"`
	Processing ProcessingConfig `yaml:"processing"`
	Server     ServerConfig     `yaml:"server"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Processing: ProcessingConfig{
			MaxEmails:     processor.DefaultMaxEmails,
			PreviewEmails: processor.DefaultPreviewEmails,
			CallTimeout:   processor.DefaultCallTimeout,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9090",
			MetricsEnabled:  true,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order. A .env file in the working directory is loaded
// first when present. ${VAR} references in the YAML file are expanded.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Database.URL = envOrDefault(EnvDatabaseURL, c.Database.URL)
	c.Gmail.ClientID = envOrDefault(EnvClientID, c.Gmail.ClientID)
	c.Gmail.ClientSecret = envOrDefault(EnvClientSecret, c.Gmail.ClientSecret)
	c.Gmail.TokenDir = envOrDefault(EnvTokenDir, c.Gmail.TokenDir)
	c.Server.Addr = envOrDefault(EnvHTTPAddr, c.Server.Addr)
	c.Server.MetricsAddr = envOrDefault(EnvMetricsAddr, c.Server.MetricsAddr)

	if v := os.Getenv(EnvMaxEmails); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxEmails, err)
		}
		c.Processing.MaxEmails = n
	}
	if v := os.Getenv(EnvCallTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCallTimeout, err)
		}
		c.Processing.CallTimeout = d
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Processing.MaxEmails <= 0 {
		errs = append(errs, fmt.Errorf("processing.max_emails must be positive, got %d", c.Processing.MaxEmails))
	}
	if c.Processing.PreviewEmails <= 0 {
		errs = append(errs, fmt.Errorf("processing.preview_emails must be positive, got %d", c.Processing.PreviewEmails))
	}
	if c.Processing.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("processing.call_timeout must not be negative"))
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.MetricsEnabled && strings.TrimSpace(c.Server.MetricsAddr) == "" {
		errs = append(errs, errors.New("server.metrics_addr is required when metrics are enabled"))
	}
	if c.Database.URL != "" && !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		errs = append(errs, errors.New("database.url must be a postgres:// URL"))
	}

	return errors.Join(errs...)
}

// Google returns the OAuth client configuration for the google package.
func (c *Config) Google() google.Config {
	return google.Config{
		ClientID:     c.Gmail.ClientID,
		ClientSecret: c.Gmail.ClientSecret,
		RedirectURL:  c.Gmail.RedirectURL,
		TokenDir:     c.Gmail.TokenDir,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
