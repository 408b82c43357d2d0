package processor

import (
	"encoding/json"
	"time"

	"github.com/teemow/inboxrules/internal/rules"
)

// Outcome statuses
const (
	StatusApplied   = "applied"
	StatusFailed    = "failed"
	StatusUnmatched = "unmatched"
)

// Outcome represents the result of processing a single email in a batch
type Outcome struct {
	EmailID     string           `json:"email_id"`
	Subject     string           `json:"subject,omitempty"`
	Status      string           `json:"status"`
	RuleID      int64            `json:"rule_id,omitempty"`
	RuleName    string           `json:"rule_name,omitempty"`
	Action      rules.ActionType `json:"action,omitempty"`
	ActionValue string           `json:"action_value,omitempty"`
	LogError    bool             `json:"log_error,omitempty"`
}

// Summary represents the aggregated results of a processing batch
type Summary struct {
	UserID    string        `json:"user_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Seeded    bool          `json:"seeded,omitempty"`
	Canceled  bool          `json:"canceled,omitempty"`

	Fetched   int `json:"fetched"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Applied   int `json:"applied"`
	Failed    int `json:"failed"`
	LogErrors int `json:"log_errors"`

	Outcomes []Outcome `json:"outcomes"`
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)

	switch o.Status {
	case StatusUnmatched:
		s.Unmatched++
	case StatusApplied:
		s.Matched++
		s.Applied++
	case StatusFailed:
		s.Matched++
		s.Failed++
	}
	if o.LogError {
		s.LogErrors++
	}
}

// FormatSummary creates a formatted JSON string from a batch summary
func FormatSummary(s Summary) string {
	if s.Outcomes == nil {
		s.Outcomes = []Outcome{}
	}
	jsonBytes, _ := json.MarshalIndent(s, "", "  ")
	return string(jsonBytes)
}
