package memory

import (
	"context"
	"testing"
	"time"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/core/storage"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndQueryEvents(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []*v1.Event{
		{ID: "e2", SiteID: "site-a", Kind: v1.KindPageview, Path: "/b", IngestedAt: base.Add(time.Minute)},
		{ID: "e1", SiteID: "site-a", Kind: v1.KindPageview, Path: "/a", IngestedAt: base},
		{ID: "e3", SiteID: "site-b", Kind: v1.KindPageview, Path: "/a", IngestedAt: base},
		{ID: "e4", SiteID: "site-a", Kind: v1.KindEvent, Path: "/a", IngestedAt: base.Add(time.Hour)},
	}
	require.NoError(t, s.SaveEvents(ctx, events))
	require.Equal(t, int64(1), events[0].IngestSeq)
	require.Equal(t, int64(4), events[3].IngestSeq)

	got, err := s.QueryEvents(ctx, storage.EventQuery{SiteID: "site-a", From: base, To: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "e1", got[0].ID, "ordered by ingested_at")
	require.Equal(t, "e2", got[1].ID)

	got, err = s.QueryEvents(ctx, storage.EventQuery{
		SiteID: "site-a",
		From:   base,
		To:     base.Add(2 * time.Hour),
		Equals: map[string]string{storage.ColumnPath: "/a"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []string{"e1", "e4"}, []string{got[0].ID, got[1].ID})

	// Returned events are copies.
	got[0].Path = "/mutated"
	again, err := s.QueryEvents(ctx, storage.EventQuery{SiteID: "site-a", From: base, To: base.Add(time.Second)})
	require.NoError(t, err)
	require.Equal(t, "/a", again[0].Path)
}

func TestStore_RecordTriggerHonoursNotBefore(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.PutAlert(&v1.Alert{ID: "a1", SiteID: "site-a", Type: v1.AlertThreshold, Enabled: true})

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &v1.TriggerRecord{ID: "t1", AlertID: "a1", TriggeredAt: t0}

	ok, err := s.RecordTrigger(ctx, rec, t0.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	// Second attempt inside the window is refused.
	ok, err = s.RecordTrigger(ctx, &v1.TriggerRecord{ID: "t2", AlertID: "a1", TriggeredAt: t0.Add(30 * time.Minute)}, t0.Add(-30*time.Minute))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.RecordTrigger(ctx, &v1.TriggerRecord{ID: "t3", AlertID: "a1", TriggeredAt: t0.Add(time.Hour)}, t0)
	require.NoError(t, err)
	require.True(t, ok)

	a, err := s.GetAlert(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 2, a.TriggerCount)
	require.True(t, a.LastTriggeredAt.Equal(t0.Add(time.Hour)))

	history, err := s.ListTriggers(ctx, "a1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "t3", history[0].ID, "newest first")

	_, err = s.RecordTrigger(ctx, &v1.TriggerRecord{AlertID: "missing"}, t0)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_RecordTriggerSkipsDisabled(t *testing.T) {
	s := NewStore()
	s.PutAlert(&v1.Alert{ID: "a1", Enabled: false})

	ok, err := s.RecordTrigger(context.Background(), &v1.TriggerRecord{AlertID: "a1", TriggeredAt: time.Now()}, time.Now())
	require.NoError(t, err)
	require.False(t, ok)

	enabled, err := s.ListEnabledAlerts(context.Background())
	require.NoError(t, err)
	require.Empty(t, enabled)
}

func TestStore_GetGoal(t *testing.T) {
	s := NewStore()
	s.PutGoal(&v1.Goal{ID: "g1", SiteID: "site-a", Kind: v1.GoalPageview, Path: "/thanks"})

	g, err := s.GetGoal(context.Background(), "site-a", "g1")
	require.NoError(t, err)
	require.Equal(t, "/thanks", g.Path)

	_, err = s.GetGoal(context.Background(), "site-b", "g1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
