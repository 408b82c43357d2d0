package store

import (
	"context"
	"errors"
	"time"

	"github.com/teemow/inboxrules/internal/rules"
)

// ErrNotFound is returned when a rule does not exist or belongs to another user.
var ErrNotFound = errors.New("not found")

// User identifies whose mailbox is processed. Account names the stored
// Google token used to reach the mailbox.
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email,omitempty"`
	Account string `json:"account,omitempty"`
}

// LogEntry records the outcome of applying one rule to one email.
// Entries are append-only.
type LogEntry struct {
	ID            int64            `json:"id"`
	UserID        string           `json:"user_id"`
	EmailID       string           `json:"email_id"`
	RuleID        *int64           `json:"rule_id,omitempty"`
	Subject       string           `json:"subject"`
	Sender        string           `json:"sender"`
	ReceivedAt    time.Time        `json:"received_at"`
	AppliedAction rules.ActionType `json:"action"`
	ActionValue   string           `json:"action_value,omitempty"`
	Success       bool             `json:"success"`
	ProcessedAt   time.Time        `json:"processed_at"`
}

// RulePatch is a partial rule update. Nil fields are left unchanged.
type RulePatch struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	MatchType   *rules.MatchType  `json:"match_type,omitempty"`
	MatchValue  *string           `json:"match_value,omitempty"`
	ActionType  *rules.ActionType `json:"action_type,omitempty"`
	ActionValue *string           `json:"action_value,omitempty"`
	Priority    *int              `json:"priority,omitempty"`
	IsActive    *bool             `json:"is_active,omitempty"`
}

// Apply returns r with the patch applied.
func (p RulePatch) Apply(r rules.Rule) rules.Rule {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.MatchType != nil {
		r.MatchType = *p.MatchType
	}
	if p.MatchValue != nil {
		r.MatchValue = *p.MatchValue
	}
	if p.ActionType != nil {
		r.ActionType = *p.ActionType
	}
	if p.ActionValue != nil {
		r.ActionValue = *p.ActionValue
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	return r
}

// CategoryCount is the number of tag actions for one label.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// RulePerformance is the number of log entries produced by one rule.
type RulePerformance struct {
	RuleID         int64  `json:"rule_id"`
	RuleName       string `json:"rule_name"`
	ProcessedCount int    `json:"processed_count"`
}

// Stats summarizes a user's rules and processing history.
type Stats struct {
	TotalRules        int               `json:"total_rules"`
	ProcessedToday    int               `json:"processed_today"`
	BillsTracked      int               `json:"bills_tracked"`
	CategoryBreakdown []CategoryCount   `json:"category_breakdown"`
	RecentActivity    []LogEntry        `json:"recent_activity"`
	RulePerformance   []RulePerformance `json:"rule_performance"`
}

// RecentActivityLimit is the number of entries in Stats.RecentActivity.
const RecentActivityLimit = 10

// DefaultActivityLimit is used when a page request has no limit.
const DefaultActivityLimit = 50

// Page selects a window of the activity log, newest first.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultActivityLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// StartOfDay returns midnight UTC of t's UTC date.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Store persists rules and the processing log. All rule operations are
// scoped to an owner; a rule of another owner is reported as ErrNotFound.
type Store interface {
	CreateRule(ctx context.Context, owner string, draft rules.Rule) (rules.Rule, error)
	GetRule(ctx context.Context, owner string, id int64) (rules.Rule, error)
	ListRules(ctx context.Context, owner string) ([]rules.Rule, error)
	UpdateRule(ctx context.Context, owner string, id int64, patch RulePatch) (rules.Rule, error)
	DeleteRule(ctx context.Context, owner string, id int64) error
	SetActive(ctx context.Context, owner string, id int64, active bool) (rules.Rule, error)

	ActiveRules(ctx context.Context, owner string) ([]rules.Rule, error)
	SeedRules(ctx context.Context, owner string, seed []rules.Rule) error

	AppendLog(ctx context.Context, entry LogEntry) error
	Activity(ctx context.Context, owner string, page Page) ([]LogEntry, error)
	Stats(ctx context.Context, owner string, dayStart time.Time) (Stats, error)

	Ping(ctx context.Context) error
	Close()
}
