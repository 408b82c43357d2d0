package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teemow/inboxrules/internal/rules"
)

// PostgresStore is a Store backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore creates a store on an existing pool.
// It ensures the rules and email_logs tables exist on creation.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure rule store schema: %w", err)
	}
	slog.Info("rule store initialised", "backend", "postgres")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rules (
			id           BIGSERIAL PRIMARY KEY,
			owner        TEXT NOT NULL,
			name         TEXT NOT NULL,
			description  TEXT DEFAULT '',
			match_type   TEXT NOT NULL,
			match_value  TEXT NOT NULL,
			action_type  TEXT NOT NULL,
			action_value TEXT DEFAULT '',
			priority     INTEGER NOT NULL DEFAULT 0,
			is_active    BOOLEAN NOT NULL DEFAULT TRUE,
			created_at   TIMESTAMPTZ DEFAULT NOW(),
			updated_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_rules_owner ON rules(owner, priority);

		CREATE TABLE IF NOT EXISTS email_logs (
			id             BIGSERIAL PRIMARY KEY,
			user_id        TEXT NOT NULL,
			rule_id        BIGINT,
			email_id       TEXT NOT NULL,
			subject        TEXT DEFAULT '',
			sender         TEXT DEFAULT '',
			received_at    TIMESTAMPTZ,
			applied_action TEXT NOT NULL,
			action_value   TEXT DEFAULT '',
			success        BOOLEAN NOT NULL,
			processed_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_logs_user_processed ON email_logs(user_id, processed_at DESC);
	`)
	return err
}

const ruleColumns = `id, owner, name, description, match_type, match_value,
	action_type, action_value, priority, is_active, created_at, updated_at`

// CreateRule validates and stores a new rule for owner.
func (s *PostgresStore) CreateRule(ctx context.Context, owner string, draft rules.Rule) (rules.Rule, error) {
	if err := rules.Check(draft); err != nil {
		return rules.Rule{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO rules
			(owner, name, description, match_type, match_value, action_type, action_value, priority, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+ruleColumns,
		owner, draft.Name, draft.Description, string(draft.MatchType), draft.MatchValue,
		string(draft.ActionType), draft.ActionValue, draft.Priority, draft.IsActive)
	r, err := scanRule(row)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	return r, nil
}

// GetRule returns one rule of owner.
func (s *PostgresStore) GetRule(ctx context.Context, owner string, id int64) (rules.Rule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1 AND owner = $2
	`, id, owner)
	return scanRule(row)
}

// ListRules returns all rules of owner ordered by priority.
func (s *PostgresStore) ListRules(ctx context.Context, owner string) ([]rules.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE owner = $1
		ORDER BY priority, id
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// ActiveRules returns the active rules of owner ordered by priority.
func (s *PostgresStore) ActiveRules(ctx context.Context, owner string) ([]rules.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE owner = $1 AND is_active
		ORDER BY priority, id
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// UpdateRule applies patch to a rule of owner and re-validates it.
func (s *PostgresStore) UpdateRule(ctx context.Context, owner string, id int64, patch RulePatch) (rules.Rule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return rules.Rule{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanRule(tx.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1 AND owner = $2
		FOR UPDATE
	`, id, owner))
	if err != nil {
		return rules.Rule{}, err
	}

	updated := patch.Apply(current)
	if err := rules.Check(updated); err != nil {
		return rules.Rule{}, err
	}

	r, err := scanRule(tx.QueryRow(ctx, `
		UPDATE rules
		SET name = $1, description = $2, match_type = $3, match_value = $4,
		    action_type = $5, action_value = $6, priority = $7, is_active = $8,
		    updated_at = NOW()
		WHERE id = $9 AND owner = $10
		RETURNING `+ruleColumns,
		updated.Name, updated.Description, string(updated.MatchType), updated.MatchValue,
		string(updated.ActionType), updated.ActionValue, updated.Priority, updated.IsActive,
		id, owner))
	if err != nil {
		return rules.Rule{}, fmt.Errorf("update rule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return rules.Rule{}, err
	}
	return r, nil
}

// DeleteRule removes a rule of owner.
func (s *PostgresStore) DeleteRule(ctx context.Context, owner string, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rules WHERE id = $1 AND owner = $2`, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive enables or disables a rule of owner.
func (s *PostgresStore) SetActive(ctx context.Context, owner string, id int64, active bool) (rules.Rule, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE rules SET is_active = $1, updated_at = NOW()
		WHERE id = $2 AND owner = $3
		RETURNING `+ruleColumns, active, id, owner)
	return scanRule(row)
}

// SeedRules stores copies of seed as rules of owner in one batch.
func (s *PostgresStore) SeedRules(ctx context.Context, owner string, seed []rules.Rule) error {
	batch := &pgx.Batch{}
	for _, r := range seed {
		batch.Queue(`
			INSERT INTO rules
				(owner, name, description, match_type, match_value, action_type, action_value, priority, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, owner, r.Name, r.Description, string(r.MatchType), r.MatchValue,
			string(r.ActionType), r.ActionValue, r.Priority, r.IsActive)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed rules: %w", err)
	}
	return nil
}

// AppendLog appends one processing log entry.
func (s *PostgresStore) AppendLog(ctx context.Context, e LogEntry) error {
	processedAt := e.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_logs
			(user_id, rule_id, email_id, subject, sender, received_at, applied_action, action_value, success, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.UserID, e.RuleID, e.EmailID, e.Subject, e.Sender, e.ReceivedAt,
		string(e.AppliedAction), e.ActionValue, e.Success, processedAt)
	return err
}

const logColumns = `id, user_id, rule_id, email_id, subject, sender, received_at,
	applied_action, action_value, success, processed_at`

// Activity returns a page of owner's log, newest first.
func (s *PostgresStore) Activity(ctx context.Context, owner string, page Page) ([]LogEntry, error) {
	page = page.normalize()
	rows, err := s.pool.Query(ctx, `
		SELECT `+logColumns+`
		FROM email_logs
		WHERE user_id = $1
		ORDER BY processed_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, owner, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

// Stats summarizes owner's rules and log.
func (s *PostgresStore) Stats(ctx context.Context, owner string, dayStart time.Time) (Stats, error) {
	st := Stats{}

	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM rules WHERE owner = $1 AND is_active),
			(SELECT COUNT(*) FROM email_logs WHERE user_id = $1 AND processed_at >= $2),
			(SELECT COUNT(*) FROM email_logs WHERE user_id = $1 AND applied_action = $3 AND action_value = $4)
	`, owner, dayStart, string(rules.ActionTag), rules.LabelBills).
		Scan(&st.TotalRules, &st.ProcessedToday, &st.BillsTracked)
	if err != nil {
		return Stats{}, fmt.Errorf("count stats: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT action_value, COUNT(*)
		FROM email_logs
		WHERE user_id = $1 AND applied_action = $2
		GROUP BY action_value
		ORDER BY action_value
	`, owner, string(rules.ActionTag))
	if err != nil {
		return Stats{}, fmt.Errorf("category breakdown: %w", err)
	}
	st.CategoryBreakdown, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (CategoryCount, error) {
		var c CategoryCount
		err := row.Scan(&c.Category, &c.Count)
		return c, err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("category breakdown: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT r.id, r.name, COUNT(l.id)
		FROM rules r
		JOIN email_logs l ON l.rule_id = r.id
		WHERE r.owner = $1
		GROUP BY r.id, r.name, r.priority
		ORDER BY r.priority, r.id
	`, owner)
	if err != nil {
		return Stats{}, fmt.Errorf("rule performance: %w", err)
	}
	st.RulePerformance, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (RulePerformance, error) {
		var p RulePerformance
		err := row.Scan(&p.RuleID, &p.RuleName, &p.ProcessedCount)
		return p, err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("rule performance: %w", err)
	}

	st.RecentActivity, err = s.Activity(ctx, owner, Page{Limit: RecentActivityLimit})
	if err != nil {
		return Stats{}, fmt.Errorf("recent activity: %w", err)
	}

	return st, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// scanRule scans a single row into a Rule, mapping no rows to ErrNotFound.
func scanRule(row pgx.Row) (rules.Rule, error) {
	var (
		r                     rules.Rule
		matchType, actionType string
		description, value    *string
	)
	err := row.Scan(
		&r.ID, &r.Owner, &r.Name, &description, &matchType, &r.MatchValue,
		&actionType, &value, &r.Priority, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return rules.Rule{}, ErrNotFound
	}
	if err != nil {
		return rules.Rule{}, err
	}
	r.MatchType = rules.MatchType(matchType)
	r.ActionType = rules.ActionType(actionType)
	if description != nil {
		r.Description = *description
	}
	if value != nil {
		r.ActionValue = *value
	}
	return r, nil
}

// collectRules scans multiple rows into a slice of Rules.
func collectRules(rows pgx.Rows) ([]rules.Rule, error) {
	out := make([]rules.Rule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// collectLogs scans multiple rows into a slice of LogEntries.
func collectLogs(rows pgx.Rows) ([]LogEntry, error) {
	out := make([]LogEntry, 0)
	for rows.Next() {
		var (
			e                      LogEntry
			action                 string
			subject, sender, value *string
			receivedAt             *time.Time
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.RuleID, &e.EmailID, &subject, &sender, &receivedAt,
			&action, &value, &e.Success, &e.ProcessedAt,
		); err != nil {
			return nil, err
		}
		e.AppliedAction = rules.ActionType(action)
		if subject != nil {
			e.Subject = *subject
		}
		if sender != nil {
			e.Sender = *sender
		}
		if value != nil {
			e.ActionValue = *value
		}
		if receivedAt != nil {
			e.ReceivedAt = *receivedAt
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
