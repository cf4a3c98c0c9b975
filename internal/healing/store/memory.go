package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore returns an in-memory Store. Used by embedded runs and tests;
// safe for concurrent writers.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Save(ctx context.Context, ev *Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *ev
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Metadata != nil {
		meta := make(map[string]any, len(rec.Metadata))
		for k, v := range rec.Metadata {
			meta[k] = v
		}
		rec.Metadata = meta
	}
	s.events = append(s.events, rec)
	ev.ID = rec.ID
	ev.CreatedAt = rec.CreatedAt
	return rec.ID, nil
}

func (s *memoryStore) Query(ctx context.Context, f Filter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	// Newest first, matching the SQL implementation's ORDER BY.
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if !matches(&ev, f) {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func matches(ev *Event, f Filter) bool {
	if f.TestCaseID != "" && ev.TestCaseID != f.TestCaseID {
		return false
	}
	if f.ObjectID != "" && ev.ObjectID != f.ObjectID {
		return false
	}
	if f.Strategy != "" && ev.Strategy != f.Strategy {
		return false
	}
	if f.FailedLocator != "" && ev.FailedLocator != f.FailedLocator {
		return false
	}
	if f.AutoApplied != nil && ev.AutoApplied != *f.AutoApplied {
		return false
	}
	if f.Pending {
		if ev.AutoApplied || ev.Approved != nil {
			return false
		}
	} else if f.Approved != nil {
		if ev.Approved == nil || *ev.Approved != *f.Approved {
			return false
		}
	}
	if !f.Since.IsZero() && ev.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ev.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

func (s *memoryStore) Approve(ctx context.Context, id, approver string, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID != id {
			continue
		}
		if s.events[i].AutoApplied {
			return fmt.Errorf("healing event %s was auto-applied and is not reviewable", id)
		}
		if s.events[i].Approved != nil {
			return fmt.Errorf("healing event %s already reviewed", id)
		}
		now := time.Now().UTC()
		v := approved
		s.events[i].Approved = &v
		s.events[i].ApprovedBy = approver
		s.events[i].ApprovedAt = &now
		return nil
	}
	return fmt.Errorf("healing event %s not found", id)
}

func (s *memoryStore) Statistics(ctx context.Context, days int) (*Statistics, error) {
	events, err := s.Query(ctx, Filter{Since: windowStart(days)})
	if err != nil {
		return nil, err
	}
	return aggregate(events, days), nil
}

func windowStart(days int) time.Time {
	if days <= 0 {
		days = 30
	}
	return time.Now().UTC().AddDate(0, 0, -days)
}

// aggregate computes rolling-window statistics from a set of events. Shared
// by the memory and SQL stores so both report identical numbers.
func aggregate(events []Event, days int) *Statistics {
	if days <= 0 {
		days = 30
	}
	stats := &Statistics{
		WindowDays: days,
		ByStrategy: make(map[string]StrategyStats),
	}
	objectCounts := make(map[string]*ObjectHealCount)

	for i := range events {
		ev := &events[i]
		stats.TotalAttempts++
		ss := stats.ByStrategy[ev.Strategy]
		ss.Attempts++
		if ev.Succeeded() {
			stats.SuccessfulHeals++
			ss.Successes++

			key := ev.ObjectID
			if key == "" {
				key = ev.FailedLocator
			}
			oc, ok := objectCounts[key]
			if !ok {
				oc = &ObjectHealCount{ObjectID: ev.ObjectID, FailedLocator: ev.FailedLocator}
				objectCounts[key] = oc
			}
			oc.Count++
		}
		stats.ByStrategy[ev.Strategy] = ss
	}

	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.SuccessfulHeals) / float64(stats.TotalAttempts)
	}
	for name, ss := range stats.ByStrategy {
		if ss.Attempts > 0 {
			ss.Rate = float64(ss.Successes) / float64(ss.Attempts)
		}
		stats.ByStrategy[name] = ss
	}

	for _, oc := range objectCounts {
		stats.TopObjects = append(stats.TopObjects, *oc)
	}
	sort.Slice(stats.TopObjects, func(i, j int) bool {
		if stats.TopObjects[i].Count != stats.TopObjects[j].Count {
			return stats.TopObjects[i].Count > stats.TopObjects[j].Count
		}
		return stats.TopObjects[i].FailedLocator < stats.TopObjects[j].FailedLocator
	})
	return stats
}
