package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/core/storage"
)

// Store is an in-memory implementation of EventStore, AlertStore and GoalStore.
// Useful for testing and development.
type Store struct {
	mu       sync.RWMutex
	events   []*v1.Event
	seq      int64
	alerts   map[string]*v1.Alert
	triggers map[string][]*v1.TriggerRecord
	goals    map[string]*v1.Goal
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		alerts:   make(map[string]*v1.Alert),
		triggers: make(map[string][]*v1.TriggerRecord),
		goals:    make(map[string]*v1.Goal),
	}
}

// SaveEvents appends all events under one lock, so readers see all or none of them.
func (s *Store) SaveEvents(ctx context.Context, events []*v1.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		s.seq++
		e.IngestSeq = s.seq
		// Store a copy to prevent external modification
		copy := *e
		s.events = append(s.events, &copy)
	}
	return nil
}

func (s *Store) QueryEvents(ctx context.Context, q storage.EventQuery) ([]*v1.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*v1.Event
	for _, e := range s.events {
		if e.SiteID != q.SiteID {
			continue
		}
		if e.IngestedAt.Before(q.From) || !e.IngestedAt.Before(q.To) {
			continue
		}
		if !matchesEquals(e, q.Equals) {
			continue
		}
		copy := *e
		result = append(result, &copy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].IngestedAt.Equal(result[j].IngestedAt) {
			return result[i].IngestSeq < result[j].IngestSeq
		}
		return result[i].IngestedAt.Before(result[j].IngestedAt)
	})
	return result, nil
}

func matchesEquals(e *v1.Event, equals map[string]string) bool {
	for col, want := range equals {
		got, ok := storage.ColumnValue(e, col)
		if !ok {
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

// PutAlert inserts or replaces an alert definition.
func (s *Store) PutAlert(a *v1.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *a
	s.alerts[a.ID] = &copy
}

// GetAlert returns a copy of an alert, including its current trigger state.
func (s *Store) GetAlert(ctx context.Context, id string) (*v1.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *a
	return &copy, nil
}

func (s *Store) ListEnabledAlerts(ctx context.Context) ([]*v1.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*v1.Alert
	for _, a := range s.alerts {
		if !a.Enabled {
			continue
		}
		copy := *a
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) RecordTrigger(ctx context.Context, rec *v1.TriggerRecord, notBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[rec.AlertID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if !a.Enabled {
		return false, nil
	}
	if a.LastTriggeredAt != nil && a.LastTriggeredAt.After(notBefore) {
		return false, nil
	}

	at := rec.TriggeredAt
	a.LastTriggeredAt = &at
	a.TriggerCount++

	copy := *rec
	s.triggers[rec.AlertID] = append(s.triggers[rec.AlertID], &copy)
	return true, nil
}

func (s *Store) ListTriggers(ctx context.Context, alertID string, limit int) ([]*v1.TriggerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.triggers[alertID]
	result := make([]*v1.TriggerRecord, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		copy := *history[i]
		result = append(result, &copy)
	}
	return result, nil
}

// PutGoal inserts or replaces a goal definition.
func (s *Store) PutGoal(g *v1.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *g
	s.goals[goalKey(g.SiteID, g.ID)] = &copy
}

func (s *Store) GetGoal(ctx context.Context, siteID, goalID string) (*v1.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.goals[goalKey(siteID, goalID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *g
	return &copy, nil
}

func goalKey(siteID, goalID string) string {
	return siteID + "/" + goalID
}

// Ping satisfies the health check contract used by the server.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
