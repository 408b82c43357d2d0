package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// RuleAction captures one mailbox mutation performed on behalf of a rule.
// Every label change made by the processor produces exactly one record.
//
// # Privacy Considerations
//
// UserEmail and Sender contain PII. LogAttrs reduces both to domains;
// LogAuditAttrs includes them verbatim and is only used when the audit
// logger is configured with IncludePII.
type RuleAction struct {
	// Rule that triggered the mutation
	RuleID   int64
	RuleName string

	// Mutation
	Action      string // tag, archive, mark_read, move
	ActionValue string // label name for tag and move
	EmailID     string

	// Identity
	UserEmail string
	Account   string
	Sender    string

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// NewRuleAction creates a RuleAction with timing started.
// Call Complete when the mutation finishes.
func NewRuleAction(ruleID int64, ruleName, action, actionValue string) *RuleAction {
	return &RuleAction{
		RuleID:      ruleID,
		RuleName:    ruleName,
		Action:      action,
		ActionValue: actionValue,
		StartTime:   time.Now(),
	}
}

// UserDomain returns the domain portion of the user's email for lower-cardinality logging.
func (ra *RuleAction) UserDomain() string {
	return ExtractUserDomain(ra.UserEmail)
}

// Status returns "success" or "error" based on the Success field.
func (ra *RuleAction) Status() string {
	if ra.Success {
		return StatusSuccess
	}
	return StatusError
}

// WithUser sets the user identity and Google account name.
func (ra *RuleAction) WithUser(email, account string) *RuleAction {
	ra.UserEmail = email
	ra.Account = account
	return ra
}

// WithEmail sets the message the action was applied to.
func (ra *RuleAction) WithEmail(id, sender string) *RuleAction {
	ra.EmailID = id
	ra.Sender = sender
	return ra
}

// WithSpanContext extracts trace context from the current span.
func (ra *RuleAction) WithSpanContext(ctx context.Context) *RuleAction {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ra.TraceID = span.SpanContext().TraceID().String()
		ra.SpanID = span.SpanContext().SpanID().String()
	}
	return ra
}

// Complete marks the action as finished and calculates duration.
func (ra *RuleAction) Complete(success bool, err error) *RuleAction {
	ra.Duration = time.Since(ra.StartTime)
	ra.Success = success
	if err != nil {
		ra.Error = err.Error()
	}
	return ra
}

// LogAttrs returns cardinality-controlled slog attributes.
func (ra *RuleAction) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.Int64("rule_id", ra.RuleID),
		slog.String("action", ra.Action),
		slog.String("email_id", ra.EmailID),
		slog.String("user_domain", ra.UserDomain()),
		slog.String("sender_domain", ExtractUserDomain(ra.Sender)),
		slog.Duration("duration", ra.Duration),
		slog.Bool("success", ra.Success),
	}

	if ra.ActionValue != "" {
		attrs = append(attrs, slog.String("action_value", ra.ActionValue))
	}
	if ra.Account != "" && ra.Account != "default" {
		attrs = append(attrs, slog.String("account", ra.Account))
	}
	if ra.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ra.TraceID))
	}
	if ra.Error != "" {
		attrs = append(attrs, slog.String("error", ra.Error))
	}

	return attrs
}

// LogAuditAttrs returns slog attributes including the full user address and sender.
//
// # Security Warning
//
// This method includes PII. Route audit logs to storage with appropriate access controls.
func (ra *RuleAction) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.Int64("rule_id", ra.RuleID),
		slog.String("rule_name", ra.RuleName),
		slog.String("action", ra.Action),
		slog.String("email_id", ra.EmailID),
		slog.String("user", ra.UserEmail),
		slog.String("sender", ra.Sender),
		slog.Duration("duration", ra.Duration),
		slog.Bool("success", ra.Success),
	}

	if ra.ActionValue != "" {
		attrs = append(attrs, slog.String("action_value", ra.ActionValue))
	}
	if ra.Account != "" {
		attrs = append(attrs, slog.String("account", ra.Account))
	}
	if ra.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ra.TraceID))
	}
	if ra.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ra.SpanID))
	}
	if ra.Error != "" {
		attrs = append(attrs, slog.String("error", ra.Error))
	}

	return attrs
}

// AuditLogger writes one structured line per mailbox mutation.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an enabled AuditLogger that does not log PII.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:  logger,
		enabled: true,
	}
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogRuleAction logs a completed rule action. A nil AuditLogger is a no-op.
func (al *AuditLogger) LogRuleAction(ra *RuleAction) {
	if al == nil || !al.enabled || ra == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = ra.LogAuditAttrs()
	} else {
		attrs = ra.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ra.Success {
		al.logger.Info("rule_action", args...)
	} else {
		al.logger.Warn("rule_action_failed", args...)
	}
}
