package rules

import (
	"time"
)

// MatchType selects which part of an email a rule is tested against
type MatchType string

// Recognized match types
const (
	MatchSender  MatchType = "sender"
	MatchSubject MatchType = "subject"
	MatchBody    MatchType = "body"
	MatchRegex   MatchType = "regex"
	MatchHeader  MatchType = "header"
)

// MatchTypes lists the recognized match types in the order they are reported
// by validation messages
var MatchTypes = []MatchType{MatchSender, MatchSubject, MatchBody, MatchRegex, MatchHeader}

// Valid reports whether m is one of the recognized match types
func (m MatchType) Valid() bool {
	for _, t := range MatchTypes {
		if m == t {
			return true
		}
	}
	return false
}

// ActionType is the mailbox mutation performed when a rule matches
type ActionType string

// Recognized action types
const (
	ActionTag      ActionType = "tag"
	ActionArchive  ActionType = "archive"
	ActionMarkRead ActionType = "mark_read"
	ActionMove     ActionType = "move"
)

// ActionTypes lists the recognized action types
var ActionTypes = []ActionType{ActionTag, ActionArchive, ActionMarkRead, ActionMove}

// Valid reports whether a is one of the recognized action types
func (a ActionType) Valid() bool {
	for _, t := range ActionTypes {
		if a == t {
			return true
		}
	}
	return false
}

// RequiresValue reports whether the action needs an ActionValue (a label name)
func (a ActionType) RequiresValue() bool {
	return a == ActionTag || a == ActionMove
}

// BuiltinOwner is the sentinel owner of catalog rules that are not yet
// assigned to a user
const BuiltinOwner = "builtin"

// Rule is a condition+action pair owned by one user or by BuiltinOwner
type Rule struct {
	ID          int64      `json:"id"`
	Owner       string     `json:"owner"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	MatchType   MatchType  `json:"match_type"`
	MatchValue  string     `json:"match_value"`
	ActionType  ActionType `json:"action_type"`
	ActionValue string     `json:"action_value,omitempty"`
	Priority    int        `json:"priority"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty"`
}

// Email is a normalized inbox message. It is produced fresh per fetch and is
// never persisted by the engine.
type Email struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id,omitempty"`
	Sender      string    `json:"sender"`
	Subject     string    `json:"subject"`
	BodyPreview string    `json:"body_preview"`
	To          string    `json:"to"`
	ReceivedAt  time.Time `json:"received_at"`
	Labels      []string  `json:"labels,omitempty"`
}

// MatchResult pairs an email with the rule selected for it.
// Rule is nil when no active rule matched.
type MatchResult struct {
	Email Email
	Rule  *Rule
}

// Matched reports whether a rule was selected
func (r MatchResult) Matched() bool {
	return r.Rule != nil
}
