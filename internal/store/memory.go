package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/teemow/inboxrules/internal/rules"
)

// MemoryStore is an in-process Store used by the CLI without a database
// and by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	nextRule int64
	nextLog  int64
	rules    map[int64]rules.Rule
	logs     []LogEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:   func() time.Time { return time.Now().UTC() },
		rules: make(map[int64]rules.Rule),
	}
}

// WithClock replaces the time source used for timestamps.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) insertLocked(owner string, r rules.Rule) rules.Rule {
	s.nextRule++
	now := s.now()
	r.ID = s.nextRule
	r.Owner = owner
	r.CreatedAt = now
	r.UpdatedAt = now
	s.rules[r.ID] = r
	return r
}

// CreateRule validates and stores a new rule for owner.
func (s *MemoryStore) CreateRule(_ context.Context, owner string, draft rules.Rule) (rules.Rule, error) {
	if err := rules.Check(draft); err != nil {
		return rules.Rule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(owner, draft), nil
}

// GetRule returns one rule of owner.
func (s *MemoryStore) GetRule(_ context.Context, owner string, id int64) (rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok || r.Owner != owner {
		return rules.Rule{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) listLocked(owner string, activeOnly bool) []rules.Rule {
	out := make([]rules.Rule, 0)
	for _, r := range s.rules {
		if r.Owner != owner || (activeOnly && !r.IsActive) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListRules returns all rules of owner ordered by priority.
func (s *MemoryStore) ListRules(_ context.Context, owner string) ([]rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(owner, false), nil
}

// ActiveRules returns the active rules of owner ordered by priority.
func (s *MemoryStore) ActiveRules(_ context.Context, owner string) ([]rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(owner, true), nil
}

// UpdateRule applies patch to a rule of owner and re-validates it.
func (s *MemoryStore) UpdateRule(_ context.Context, owner string, id int64, patch RulePatch) (rules.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok || r.Owner != owner {
		return rules.Rule{}, ErrNotFound
	}

	updated := patch.Apply(r)
	if err := rules.Check(updated); err != nil {
		return rules.Rule{}, err
	}
	updated.UpdatedAt = s.now()
	s.rules[id] = updated
	return updated, nil
}

// DeleteRule removes a rule of owner. Log entries keep their rule id.
func (s *MemoryStore) DeleteRule(_ context.Context, owner string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok || r.Owner != owner {
		return ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// SetActive enables or disables a rule of owner.
func (s *MemoryStore) SetActive(ctx context.Context, owner string, id int64, active bool) (rules.Rule, error) {
	return s.UpdateRule(ctx, owner, id, RulePatch{IsActive: &active})
}

// SeedRules stores copies of seed as rules of owner.
func (s *MemoryStore) SeedRules(_ context.Context, owner string, seed []rules.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range seed {
		s.insertLocked(owner, r)
	}
	return nil
}

// AppendLog appends one processing log entry.
func (s *MemoryStore) AppendLog(_ context.Context, entry LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLog++
	entry.ID = s.nextLog
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = s.now()
	}
	s.logs = append(s.logs, entry)
	return nil
}

// newestFirstLocked returns owner's log entries, newest first.
func (s *MemoryStore) newestFirstLocked(owner string) []LogEntry {
	out := make([]LogEntry, 0)
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].UserID == owner {
			out = append(out, s.logs[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProcessedAt.After(out[j].ProcessedAt)
	})
	return out
}

// Activity returns a page of owner's log, newest first.
func (s *MemoryStore) Activity(_ context.Context, owner string, page Page) ([]LogEntry, error) {
	page = page.normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.newestFirstLocked(owner)
	if page.Offset >= len(all) {
		return []LogEntry{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[page.Offset:end], nil
}

// Stats summarizes owner's rules and log.
func (s *MemoryStore) Stats(_ context.Context, owner string, dayStart time.Time) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		TotalRules:        len(s.listLocked(owner, true)),
		CategoryBreakdown: []CategoryCount{},
		RulePerformance:   []RulePerformance{},
	}

	categories := make(map[string]int)
	var categoryOrder []string
	perRule := make(map[int64]int)

	logs := s.newestFirstLocked(owner)
	for _, e := range logs {
		if !e.ProcessedAt.Before(dayStart) {
			st.ProcessedToday++
		}
		if e.AppliedAction == rules.ActionTag {
			if e.ActionValue == rules.LabelBills {
				st.BillsTracked++
			}
			if _, seen := categories[e.ActionValue]; !seen {
				categoryOrder = append(categoryOrder, e.ActionValue)
			}
			categories[e.ActionValue]++
		}
		if e.RuleID != nil {
			perRule[*e.RuleID]++
		}
	}

	sort.Strings(categoryOrder)
	for _, c := range categoryOrder {
		st.CategoryBreakdown = append(st.CategoryBreakdown, CategoryCount{Category: c, Count: categories[c]})
	}

	// only rules that still exist and belong to owner
	for _, r := range s.listLocked(owner, false) {
		if n := perRule[r.ID]; n > 0 {
			st.RulePerformance = append(st.RulePerformance, RulePerformance{RuleID: r.ID, RuleName: r.Name, ProcessedCount: n})
		}
	}

	if len(logs) > RecentActivityLimit {
		logs = logs[:RecentActivityLimit]
	}
	st.RecentActivity = logs

	return st, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() {}
