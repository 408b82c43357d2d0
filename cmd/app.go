package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teemow/inboxrules/internal/config"
	"github.com/teemow/inboxrules/internal/gmail"
	"github.com/teemow/inboxrules/internal/google"
	"github.com/teemow/inboxrules/internal/instrumentation"
	"github.com/teemow/inboxrules/internal/processor"
	"github.com/teemow/inboxrules/internal/store"
)

// openStore returns the PostgreSQL store when a database URL is configured
// and an in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL == "" {
		slog.Warn("no database configured, rules and logs are kept in memory only")
		return store.NewMemoryStore(), nil
	}
	st, err := store.OpenPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}

// openPersistentStore is openStore for commands whose changes must outlive
// the process.
func openPersistentStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("a database is required: set database.url or %s", config.EnvDatabaseURL)
	}
	return openStore(ctx, cfg)
}

func newInstrumentation(ctx context.Context) (*instrumentation.Provider, error) {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	return provider, nil
}

// newProcessor wires the Gmail mailboxes, the store and instrumentation into
// a rule processor.
func newProcessor(cfg *config.Config, st store.Store, provider *instrumentation.Provider, logger *slog.Logger) *processor.Processor {
	metrics := provider.Metrics()
	tokens := google.NewFileTokenProvider(cfg.Google())

	mailboxes := gmail.NewMailboxes(
		gmail.AccountClientFactory(tokens, metrics, logger),
		metrics,
		provider.AuditLogger(logger),
		logger,
	)

	return processor.New(st, mailboxes, mailboxes, st).
		WithCallTimeout(cfg.Processing.CallTimeout).
		WithMetrics(metrics).
		WithLogger(logger)
}
