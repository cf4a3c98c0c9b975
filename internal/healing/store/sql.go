package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLStore persists healing events through sqlx. The default driver is the
// embedded sqlite build; hosted deployments point it at postgres instead.
type SQLStore struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS healing_events (
    id TEXT PRIMARY KEY,
    test_result_id TEXT NOT NULL DEFAULT '',
    test_case_id TEXT NOT NULL,
    object_id TEXT NOT NULL DEFAULT '',
    step_index INTEGER NOT NULL,
    failed_locator TEXT NOT NULL,
    healed_locator TEXT NOT NULL DEFAULT '',
    strategy TEXT NOT NULL,
    confidence REAL NOT NULL,
    auto_applied INTEGER NOT NULL,
    approved INTEGER,
    approved_by TEXT NOT NULL DEFAULT '',
    approved_at TIMESTAMP,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_healing_events_test_case ON healing_events (test_case_id);
CREATE INDEX IF NOT EXISTS idx_healing_events_failed_locator ON healing_events (failed_locator);
CREATE INDEX IF NOT EXISTS idx_healing_events_strategy ON healing_events (strategy);
CREATE INDEX IF NOT EXISTS idx_healing_events_review ON healing_events (auto_applied, approved);
`

// OpenSQL opens (and migrates) a healing event store. driver is "sqlite" or
// "postgres"; dsn is driver-specific.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open healing store: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to healing store: %w", err)
	}

	s := &SQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate healing store: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type eventRow struct {
	Event
	MetadataJSON string `db:"metadata"`
}

func (s *SQLStore) Save(ctx context.Context, ev *Event) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	meta := "{}"
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to encode event metadata: %w", err)
		}
		meta = string(raw)
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO healing_events
			(id, test_result_id, test_case_id, object_id, step_index,
			 failed_locator, healed_locator, strategy, confidence,
			 auto_applied, approved, approved_by, approved_at, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ev.ID, ev.TestResultID, ev.TestCaseID, ev.ObjectID, ev.StepIndex,
		ev.FailedLocator, ev.HealedLocator, ev.Strategy, ev.Confidence,
		ev.AutoApplied, ev.Approved, ev.ApprovedBy, ev.ApprovedAt, meta, ev.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save healing event: %w", err)
	}
	return ev.ID, nil
}

func (s *SQLStore) Query(ctx context.Context, f Filter) ([]Event, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, vals ...any) {
		conds = append(conds, cond)
		args = append(args, vals...)
	}
	if f.TestCaseID != "" {
		add("test_case_id = ?", f.TestCaseID)
	}
	if f.ObjectID != "" {
		add("object_id = ?", f.ObjectID)
	}
	if f.Strategy != "" {
		add("strategy = ?", f.Strategy)
	}
	if f.FailedLocator != "" {
		add("failed_locator = ?", f.FailedLocator)
	}
	if f.AutoApplied != nil {
		add("auto_applied = ?", *f.AutoApplied)
	}
	if f.Pending {
		add("auto_applied = ? AND approved IS NULL", false)
	} else if f.Approved != nil {
		add("approved = ?", *f.Approved)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at <= ?", f.Until)
	}

	q := "SELECT * FROM healing_events"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("failed to query healing events: %w", err)
	}

	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		ev := r.Event
		if r.MetadataJSON != "" && r.MetadataJSON != "{}" {
			if err := json.Unmarshal([]byte(r.MetadataJSON), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for event %s: %w", ev.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *SQLStore) Approve(ctx context.Context, id, approver string, approved bool) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE healing_events
		SET approved = ?, approved_by = ?, approved_at = ?
		WHERE id = ? AND auto_applied = ? AND approved IS NULL`),
		approved, approver, time.Now().UTC(), id, false,
	)
	if err != nil {
		return fmt.Errorf("failed to review healing event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to review healing event: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("healing event %s not found or not awaiting review", id)
	}
	return nil
}

func (s *SQLStore) Statistics(ctx context.Context, days int) (*Statistics, error) {
	events, err := s.Query(ctx, Filter{Since: windowStart(days)})
	if err != nil {
		return nil, err
	}
	return aggregate(events, days), nil
}

var _ Store = (*SQLStore)(nil)
