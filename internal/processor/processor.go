package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxrules/internal/instrumentation"
	"github.com/teemow/inboxrules/internal/logging"
	"github.com/teemow/inboxrules/internal/rules"
	"github.com/teemow/inboxrules/internal/store"
)

// Batch defaults
const (
	DefaultMaxEmails     = 50
	DefaultPreviewEmails = 10
	DefaultCallTimeout   = 30 * time.Second
)

// Fetcher loads unread inbox emails of a user.
type Fetcher interface {
	FetchEmails(ctx context.Context, user store.User, max int) ([]rules.Email, error)
}

// Applier performs a rule action on one email. It reports the outcome and
// never returns an error.
type Applier interface {
	ApplyRule(ctx context.Context, user store.User, email rules.Email, rule rules.Rule) bool
}

// RuleStore provides the active rules of a user.
type RuleStore interface {
	ActiveRules(ctx context.Context, userID string) ([]rules.Rule, error)
	SeedRules(ctx context.Context, userID string, seed []rules.Rule) error
}

// LogSink records the outcome of applied rules.
type LogSink interface {
	AppendLog(ctx context.Context, entry store.LogEntry) error
}

// Processor runs one batch of rule processing for a user.
type Processor struct {
	rules   RuleStore
	fetcher Fetcher
	applier Applier
	sink    LogSink

	callTimeout time.Duration
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
}

// New creates a Processor.
func New(ruleStore RuleStore, fetcher Fetcher, applier Applier, sink LogSink) *Processor {
	return &Processor{
		rules:       ruleStore,
		fetcher:     fetcher,
		applier:     applier,
		sink:        sink,
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
	}
}

// WithCallTimeout bounds every fetch, apply and log call. Zero disables the bound.
func (p *Processor) WithCallTimeout(d time.Duration) *Processor {
	p.callTimeout = d
	return p
}

// WithMetrics attaches a metrics recorder.
func (p *Processor) WithMetrics(m *instrumentation.Metrics) *Processor {
	p.metrics = m
	return p
}

// WithLogger replaces the logger.
func (p *Processor) WithLogger(l *slog.Logger) *Processor {
	if l != nil {
		p.logger = l
	}
	return p
}

func (p *Processor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.callTimeout)
}

// activeRules loads the user's active rules, seeding the built-in catalog
// when the user has none.
func (p *Processor) activeRules(ctx context.Context, user store.User) ([]rules.Rule, bool, error) {
	active, err := p.rules.ActiveRules(ctx, user.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load rules: %w", err)
	}
	if len(active) > 0 {
		return active, false, nil
	}

	if err := p.rules.SeedRules(ctx, user.ID, rules.BuiltinRulesFor(user.ID)); err != nil {
		return nil, false, fmt.Errorf("failed to seed built-in rules: %w", err)
	}
	active, err = p.rules.ActiveRules(ctx, user.ID)
	if err != nil {
		return nil, true, fmt.Errorf("failed to load rules: %w", err)
	}
	return active, true, nil
}

func (p *Processor) fetch(ctx context.Context, user store.User, max int) ([]rules.Email, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	emails, err := p.fetcher.FetchEmails(callCtx, user, max)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch emails: %w", err)
	}
	return emails, nil
}

// Process fetches up to max unread emails of user, applies the first
// matching rule to each and records a log entry per applied rule.
//
// A fetch failure aborts the batch. Apply and log failures are counted in the
// summary. Cancellation is honored between emails; the partial summary is
// returned together with the context error.
func (p *Processor) Process(ctx context.Context, user store.User, max int) (Summary, error) {
	if max <= 0 {
		max = DefaultMaxEmails
	}

	ctx, span := instrumentation.StartProcessSpan(ctx,
		instrumentation.NewSpanAttributeBuilder().
			WithAccount(user.Account).
			WithUser(logging.AnonymizeEmail(user.Email)).
			WithBatch(max, false).
			Build()...)
	defer span.End()

	logger := p.logger.With(logging.Operation("process"), logging.UserHash(user.Email))

	start := time.Now()
	summary := Summary{UserID: user.ID, StartedAt: start.UTC()}

	finish := func(err error) (Summary, error) {
		summary.Duration = time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
			logger.Error("batch failed", logging.Err(err))
		} else {
			instrumentation.SetSpanSuccess(span)
			logger.Info("batch completed",
				slog.Int("fetched", summary.Fetched),
				slog.Int("matched", summary.Matched),
				slog.Int("failed", summary.Failed),
				slog.Duration("duration", summary.Duration))
		}
		p.metrics.RecordBatch(ctx, status, summary.Duration)
		return summary, err
	}

	active, seeded, err := p.activeRules(ctx, user)
	if err != nil {
		return finish(err)
	}
	summary.Seeded = seeded
	if seeded {
		logger.Info("seeded built-in rules", slog.Int("count", len(active)))
	}
	resolver := rules.NewResolver(active)

	emails, err := p.fetch(ctx, user, max)
	if err != nil {
		return finish(err)
	}
	summary.Fetched = len(emails)
	instrumentation.AddSpanEvent(span, "emails_fetched")

	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			summary.Canceled = true
			return finish(fmt.Errorf("processing interrupted: %w", err))
		}
		summary.add(p.handle(ctx, logger, user, resolver, email))
	}

	return finish(nil)
}

// handle resolves, applies and logs a single email.
func (p *Processor) handle(ctx context.Context, logger *slog.Logger, user store.User, resolver *rules.Resolver, email rules.Email) Outcome {
	result := resolver.Evaluate(email)
	if !result.Matched() {
		p.metrics.RecordEmailProcessed(ctx, instrumentation.ResultUnmatched)
		return Outcome{EmailID: email.ID, Subject: email.Subject, Status: StatusUnmatched}
	}
	p.metrics.RecordEmailProcessed(ctx, instrumentation.ResultMatched)

	rule := *result.Rule
	outcome := Outcome{
		EmailID:     email.ID,
		Subject:     email.Subject,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Action:      rule.ActionType,
		ActionValue: rule.ActionValue,
	}

	applyCtx, cancel := p.callContext(ctx)
	ok := p.applier.ApplyRule(applyCtx, user, email, rule)
	cancel()

	outcome.Status = StatusApplied
	if !ok {
		outcome.Status = StatusFailed
	}

	ruleID := rule.ID
	entry := store.LogEntry{
		UserID:        user.ID,
		EmailID:       email.ID,
		RuleID:        &ruleID,
		Subject:       email.Subject,
		Sender:        email.Sender,
		ReceivedAt:    email.ReceivedAt,
		AppliedAction: rule.ActionType,
		ActionValue:   rule.ActionValue,
		Success:       ok,
	}

	// the mailbox change has landed, so the entry outlives a canceled batch
	logCtx, cancel := p.callContext(context.WithoutCancel(ctx))
	err := p.sink.AppendLog(logCtx, entry)
	cancel()
	if err != nil {
		outcome.LogError = true
		logger.Warn("failed to record log entry",
			logging.RuleID(rule.ID),
			logging.EmailID(email.ID),
			logging.Err(err))
	}

	logger.Debug("rule applied",
		logging.RuleID(rule.ID),
		logging.EmailID(email.ID),
		logging.Action(string(rule.ActionType)),
		logging.SenderDomain(email.Sender),
		slog.Bool("success", ok))

	return outcome
}

// Preview fetches up to max emails and reports which rule would apply to
// each, without touching the mailbox or the log. Users without active rules
// are previewed against the built-in catalog, which is not persisted.
func (p *Processor) Preview(ctx context.Context, user store.User, max int) ([]rules.MatchResult, error) {
	if max <= 0 {
		max = DefaultPreviewEmails
	}

	active, err := p.rules.ActiveRules(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	if len(active) == 0 {
		active = rules.BuiltinRulesFor(user.ID)
	}
	resolver := rules.NewResolver(active)

	emails, err := p.fetch(ctx, user, max)
	if err != nil {
		return nil, err
	}

	results := make([]rules.MatchResult, 0, len(emails))
	for _, email := range emails {
		results = append(results, resolver.Evaluate(email))
	}
	return results, nil
}
