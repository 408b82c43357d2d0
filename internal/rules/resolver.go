package rules

import (
	"sort"
)

// Resolve returns the rule that applies to email, or nil.
//
// Only active rules participate. Rules are evaluated in ascending priority;
// rules sharing a priority keep their relative input order. The first match
// wins, so at most one rule is ever selected. The input slice is not modified.
func Resolve(email Email, rules []Rule) *Rule {
	return NewResolver(rules).Resolve(email)
}

// Resolver holds an ordered, pre-compiled snapshot of a rule set.
// It is immutable after construction and safe for concurrent use.
type Resolver struct {
	entries []compiledRule
}

type compiledRule struct {
	rule    Rule
	pattern Pattern
}

// NewResolver snapshots the active rules in evaluation order and compiles
// their patterns once, for use across a batch of emails.
func NewResolver(rules []Rule) *Resolver {
	entries := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		entries = append(entries, compiledRule{
			rule:    r,
			pattern: CompilePattern(r.MatchType, r.MatchValue),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].rule.Priority < entries[j].rule.Priority
	})

	return &Resolver{entries: entries}
}

// Len returns the number of active rules in the snapshot
func (r *Resolver) Len() int {
	return len(r.entries)
}

// Rules returns the active rules in evaluation order
func (r *Resolver) Rules() []Rule {
	out := make([]Rule, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.rule
	}
	return out
}

// Resolve returns a copy of the first matching rule, or nil
func (r *Resolver) Resolve(email Email) *Rule {
	for _, e := range r.entries {
		if e.pattern.MatchString(MatchTarget(email, e.rule.MatchType)) {
			matched := e.rule
			return &matched
		}
	}
	return nil
}

// Evaluate resolves email and wraps the outcome in a MatchResult
func (r *Resolver) Evaluate(email Email) MatchResult {
	return MatchResult{Email: email, Rule: r.Resolve(email)}
}
