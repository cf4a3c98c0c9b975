// Package store persists healing attempts and answers the analytics queries
// the HISTORICAL strategy and the review CLI are built on. The store is
// append-only: events are never mutated after creation except to record a
// reviewer's approval decision.
package store

import (
	"context"
	"time"
)

// Event is the persisted record of one healing attempt, successful or not.
type Event struct {
	ID            string         `db:"id" json:"id"`
	TestResultID  string         `db:"test_result_id" json:"test_result_id"`
	TestCaseID    string         `db:"test_case_id" json:"test_case_id"`
	ObjectID      string         `db:"object_id" json:"object_id,omitempty"`
	StepIndex     int            `db:"step_index" json:"step_index"`
	FailedLocator string         `db:"failed_locator" json:"failed_locator"`
	HealedLocator string         `db:"healed_locator" json:"healed_locator"`
	Strategy      string         `db:"strategy" json:"strategy"`
	Confidence    float64        `db:"confidence" json:"confidence"`
	AutoApplied   bool           `db:"auto_applied" json:"auto_applied"`
	Approved      *bool          `db:"approved" json:"approved"` // nil = pending review
	ApprovedBy    string         `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt    *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	Metadata      map[string]any `db:"-" json:"metadata,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// Succeeded reports whether this event counts as a successful heal for
// statistics: auto-applied, or suggested and approved by a reviewer.
func (e *Event) Succeeded() bool {
	return e.HealedLocator != "" && (e.AutoApplied || (e.Approved != nil && *e.Approved))
}

// Filter selects events. Zero values mean "no constraint". Pending selects
// suggestions still awaiting review (not auto-applied, approved IS NULL);
// auto-applied events never enter the review queue. Pending takes precedence
// over Approved when both are set.
type Filter struct {
	TestCaseID    string
	ObjectID      string
	Strategy      string
	FailedLocator string
	AutoApplied   *bool
	Approved      *bool
	Pending       bool
	Since         time.Time
	Until         time.Time
	Limit         int
}

// StrategyStats aggregates attempts for one strategy.
type StrategyStats struct {
	Attempts  int     `json:"attempts"`
	Successes int     `json:"successes"`
	Rate      float64 `json:"rate"`
}

// ObjectHealCount is one entry of the most-frequently-healed objects list.
type ObjectHealCount struct {
	ObjectID      string `json:"object_id"`
	FailedLocator string `json:"failed_locator"`
	Count         int    `json:"count"`
}

// Statistics is derived from the event log over a rolling window; it is never
// stored.
type Statistics struct {
	WindowDays      int                      `json:"window_days"`
	TotalAttempts   int                      `json:"total_attempts"`
	SuccessfulHeals int                      `json:"successful_heals"`
	SuccessRate     float64                  `json:"success_rate"`
	ByStrategy      map[string]StrategyStats `json:"by_strategy"`
	TopObjects      []ObjectHealCount        `json:"top_objects"`
}

// Store is the persistence collaborator for healing events.
type Store interface {
	Save(ctx context.Context, ev *Event) (string, error)
	Query(ctx context.Context, f Filter) ([]Event, error)
	Approve(ctx context.Context, id, approver string, approved bool) error
	Statistics(ctx context.Context, days int) (*Statistics, error)
}
