package realtime

import (
	"context"
	"log/slog"
	"strings"
	"time"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
	"github.com/pulse-analytics/pulse/internal/core/storage"
	"github.com/pulse-analytics/pulse/internal/metrics"
)

const (
	defaultSessionTimeout = 30 * time.Minute
	defaultWindowMinutes  = 30
	maxWindowMinutes      = 1440
)

// Options configures a Tracker. Zero values fall back to defaults.
type Options struct {
	SessionTimeout time.Duration
	Metrics        *metrics.Metrics
}

// Tracker keeps live sessions in memory and builds realtime snapshots.
// It is fed through Publish after events are stored.
type Tracker struct {
	sessions SessionStore
	events   storage.EventStore
	timeout  time.Duration
	metrics  *metrics.Metrics
	nowFn    func() time.Time
}

func NewTracker(sessions SessionStore, events storage.EventStore, opts Options) *Tracker {
	if sessions == nil {
		panic("realtime: session store must not be nil")
	}
	if events == nil {
		panic("realtime: event store must not be nil")
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = defaultSessionTimeout
	}
	return &Tracker{
		sessions: sessions,
		events:   events,
		timeout:  opts.SessionTimeout,
		metrics:  opts.Metrics,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// TrackEvent updates the session map. A pageview creates or advances its
// session; engagement and heartbeat events only keep an existing session alive.
func (t *Tracker) TrackEvent(e *v1.Event) {
	if e == nil || e.SessionID == "" {
		return
	}

	switch e.Kind {
	case v1.KindPageview:
		t.sessions.Update(e.SiteID, e.SessionID, true, func(s *Session) {
			// Expired but not yet evicted: the pageview starts a new session.
			if !s.LastActivity.IsZero() && e.IngestedAt.Sub(s.LastActivity) >= t.timeout {
				*s = Session{SessionID: s.SessionID, SiteID: s.SiteID}
			}
			if s.Start.IsZero() || e.IngestedAt.Before(s.Start) {
				s.Start = e.IngestedAt
				s.LandingPath = e.Path
			}
			if e.IngestedAt.After(s.LastActivity) {
				s.LastActivity = e.IngestedAt
				s.CurrentPath = e.Path
			}
			s.PageCount++
			if e.Country != "" {
				s.Country = e.Country
			}
			if e.Device != "" {
				s.Device = e.Device
			}
		})
	case v1.KindEngagement, v1.KindHeartbeat:
		t.sessions.Update(e.SiteID, e.SessionID, false, func(s *Session) {
			if e.IngestedAt.After(s.LastActivity) {
				s.LastActivity = e.IngestedAt
			}
		})
	case v1.KindEvent:
		// Custom events carry no session state.
	}
}

// GetActiveSessions returns the site's sessions active within the session
// timeout, most recent first.
func (t *Tracker) GetActiveSessions(siteID string) []Session {
	return t.sessions.Active(siteID, t.nowFn().Add(-t.timeout))
}

// ExpireInactiveSessions evicts sessions idle for longer than the timeout.
func (t *Tracker) ExpireInactiveSessions() int {
	removed := t.sessions.Expire(t.nowFn().Add(-t.timeout))
	if t.metrics != nil {
		t.metrics.ActiveSessions.Set(float64(t.sessions.Len()))
	}
	return removed
}

// RunJanitor expires inactive sessions every interval until ctx is cancelled.
func (t *Tracker) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("[Realtime] Starting session janitor", "interval", interval, "timeout", t.timeout)
	for {
		select {
		case <-ticker.C:
			if n := t.ExpireInactiveSessions(); n > 0 {
				slog.Debug("[Realtime] Expired sessions", "count", n)
			}
		case <-ctx.Done():
			slog.Info("[Realtime] Stopping session janitor")
			return nil
		}
	}
}

// GetRealtime builds a snapshot over the last windowMinutes of stored events.
// A zero window means the default of 30 minutes.
func (t *Tracker) GetRealtime(ctx context.Context, siteID string, windowMinutes int) (*Snapshot, error) {
	verr := &httperr.ValidationError{}
	if strings.TrimSpace(siteID) == "" {
		verr.Add("siteId", "is required")
	}
	if windowMinutes == 0 {
		windowMinutes = defaultWindowMinutes
	}
	if windowMinutes < 1 || windowMinutes > maxWindowMinutes {
		verr.Add("timeWindow", "must be between 1 and %d minutes", maxWindowMinutes)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	now := t.nowFn()
	from := now.Add(-time.Duration(windowMinutes) * time.Minute)
	events, err := t.events.QueryEvents(ctx, storage.EventQuery{
		SiteID: siteID,
		From:   from,
		To:     now.Add(time.Nanosecond),
	})
	if err != nil {
		slog.Error("[Realtime] Failed to load events", "site_id", siteID, "error", err)
		return nil, httperr.Persistence("query events", err)
	}

	snap := buildSnapshot(events, from, now)
	snap.SiteID = siteID
	snap.TimeWindow = windowMinutes
	snap.GeneratedAt = now
	snap.LiveSessions = t.GetActiveSessions(siteID)
	return snap, nil
}

// Name, Publish and Close let the tracker sit behind the event stream fan-out.
func (t *Tracker) Name() string { return "realtime" }

func (t *Tracker) Publish(_ context.Context, events []*v1.Event) error {
	for _, e := range events {
		t.TrackEvent(e)
	}
	return nil
}

func (t *Tracker) Close() error { return nil }
