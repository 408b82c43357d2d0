package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teemow/inboxrules/internal/google"
	"github.com/teemow/inboxrules/internal/instrumentation"
	"github.com/teemow/inboxrules/internal/logging"
	"github.com/teemow/inboxrules/internal/rules"
	"github.com/teemow/inboxrules/internal/store"
)

// ClientFactory builds a Gmail client for a Google account.
type ClientFactory func(ctx context.Context, account string) (*Client, error)

// AccountClientFactory builds clients from stored per-account tokens.
func AccountClientFactory(provider google.ClientProvider, metrics *instrumentation.Metrics, logger *slog.Logger) ClientFactory {
	return func(ctx context.Context, account string) (*Client, error) {
		c, err := NewClientForAccount(ctx, provider, account)
		if err != nil {
			return nil, err
		}
		return c.WithMetrics(metrics).WithLogger(logger), nil
	}
}

// Mailboxes fetches from and mutates the Gmail mailboxes of many users.
// One Client is cached per Google account.
type Mailboxes struct {
	factory ClientFactory
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewMailboxes creates a Mailboxes using factory to build per-account clients.
func NewMailboxes(factory ClientFactory, metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger, logger *slog.Logger) *Mailboxes {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailboxes{
		factory: factory,
		metrics: metrics,
		audit:   audit,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

func accountOf(user store.User) string {
	if user.Account == "" {
		return google.DefaultAccount
	}
	return user.Account
}

func (m *Mailboxes) client(ctx context.Context, account string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[account]; ok {
		return c, nil
	}
	c, err := m.factory(ctx, account)
	if err != nil {
		return nil, err
	}
	m.clients[account] = c
	return c, nil
}

// FetchEmails returns up to max unread inbox emails of user.
func (m *Mailboxes) FetchEmails(ctx context.Context, user store.User, max int) ([]rules.Email, error) {
	c, err := m.client(ctx, accountOf(user))
	if err != nil {
		return nil, fmt.Errorf("failed to open mailbox: %w", err)
	}
	emails, err := c.FetchEmails(ctx, max)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch emails: %w", err)
	}
	return emails, nil
}

// ApplyRule performs rule's action on email and reports whether it succeeded.
// Failures are logged and audited, never returned.
func (m *Mailboxes) ApplyRule(ctx context.Context, user store.User, email rules.Email, rule rules.Rule) bool {
	account := accountOf(user)
	record := instrumentation.NewRuleAction(rule.ID, rule.Name, string(rule.ActionType), rule.ActionValue).
		WithUser(user.Email, account).
		WithEmail(email.ID, email.Sender).
		WithSpanContext(ctx)

	err := m.apply(ctx, account, email.ID, rule)
	record.Complete(err == nil, err)

	m.audit.LogRuleAction(record)
	m.metrics.RecordRuleAction(ctx, string(rule.ActionType), rule.ActionValue, record.Status())

	if err != nil {
		m.logger.Warn("failed to apply rule",
			logging.RuleID(rule.ID),
			logging.EmailID(email.ID),
			logging.Action(string(rule.ActionType)),
			logging.UserHash(user.Email),
			logging.Err(err))
		return false
	}
	return true
}

func (m *Mailboxes) apply(ctx context.Context, account, messageID string, rule rules.Rule) error {
	c, err := m.client(ctx, account)
	if err != nil {
		return err
	}
	return c.ApplyAction(ctx, messageID, rule.ActionType, rule.ActionValue)
}
