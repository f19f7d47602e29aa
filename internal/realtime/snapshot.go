package realtime

import (
	"sort"
	"time"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/core/aggregation"
)

const (
	topN         = 10
	peakInterval = 5 * time.Minute
)

// Count is one entry of a top list: a value and how many distinct sessions saw it.
type Count struct {
	Value    string `json:"value"`
	Sessions int    `json:"sessions"`
}

// SessionMetrics summarises the sessions in the window.
type SessionMetrics struct {
	BounceRate         float64 `json:"bounceRate"`
	PagesPerSession    float64 `json:"pagesPerSession"`
	AvgSessionDuration float64 `json:"avgSessionDuration"` // seconds
}

// Bucket is one fixed interval of the timeline.
type Bucket struct {
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	Sessions    int       `json:"sessions"`
	PageViews   int       `json:"pageViews"`
}

// Snapshot is the realtime view of one site.
type Snapshot struct {
	SiteID         string         `json:"siteId"`
	TimeWindow     int            `json:"timeWindow"` // minutes
	ActiveVisitors int            `json:"activeVisitors"`
	PageViews      int            `json:"pageViews"`
	TopPages       []Count        `json:"topPages"`
	TopCountries   []Count        `json:"topCountries"`
	TopReferrers   []Count        `json:"topReferrers"`
	Metrics        SessionMetrics `json:"metrics"`
	PeakVisitors   int            `json:"peakVisitors"`
	PeakTime       *time.Time     `json:"peakTime,omitempty"`
	Timeline       []Bucket       `json:"timeline"`
	LiveSessions   []Session      `json:"liveSessions"`
	GeneratedAt    time.Time      `json:"generatedAt"`
}

type sessionSpan struct {
	first, last time.Time
	pageviews   int
}

// buildSnapshot computes everything derived from stored events in [from, to].
// events must be ordered by time.
func buildSnapshot(events []*v1.Event, from, to time.Time) *Snapshot {
	var (
		pages     = newTally()
		countries = newTally()
		referrers = newTally()
		active    = make(map[string]struct{})
		spans     = make(map[string]*sessionSpan)
		pageViews int
	)

	for _, e := range events {
		if e.SessionID == "" {
			continue
		}
		active[e.SessionID] = struct{}{}
		if e.Country != "" {
			countries.add(e.Country, e.SessionID)
		}
		if e.ReferrerDomain != "" {
			referrers.add(e.ReferrerDomain, e.SessionID)
		}
		if !e.IsPageview() {
			continue
		}

		pageViews++
		pages.add(e.Path, e.SessionID)
		sp, ok := spans[e.SessionID]
		if !ok {
			sp = &sessionSpan{first: e.IngestedAt}
			spans[e.SessionID] = sp
		}
		sp.last = e.IngestedAt
		sp.pageviews++
	}

	timeline := buildTimeline(events, from, to)
	snap := &Snapshot{
		ActiveVisitors: len(active),
		PageViews:      pageViews,
		TopPages:       pages.top(topN),
		TopCountries:   countries.top(topN),
		TopReferrers:   referrers.top(topN),
		Metrics:        sessionMetrics(spans, pageViews),
		Timeline:       timeline,
	}
	for i := range timeline {
		if timeline[i].Sessions > snap.PeakVisitors {
			snap.PeakVisitors = timeline[i].Sessions
			at := timeline[i].WindowStart
			snap.PeakTime = &at
		}
	}
	return snap
}

func sessionMetrics(spans map[string]*sessionSpan, pageViews int) SessionMetrics {
	if len(spans) == 0 {
		return SessionMetrics{}
	}
	bounces := 0
	var durations []float64
	for _, sp := range spans {
		if sp.pageviews == 1 {
			bounces++
			continue
		}
		durations = append(durations, sp.last.Sub(sp.first).Seconds())
	}
	total := float64(len(spans))
	return SessionMetrics{
		BounceRate:         aggregation.Percent(float64(bounces), total),
		PagesPerSession:    aggregation.Round(float64(pageViews)/total, 1),
		AvgSessionDuration: aggregation.Round(aggregation.Mean(durations), 0),
	}
}

// buildTimeline buckets events into fixed intervals covering [from, to],
// including empty intervals.
func buildTimeline(events []*v1.Event, from, to time.Time) []Bucket {
	type cell struct {
		sessions  map[string]struct{}
		pageviews int
	}
	cells := make(map[time.Time]*cell)
	for _, e := range events {
		if e.SessionID == "" {
			continue
		}
		start := aggregation.BucketFor(e.IngestedAt, peakInterval)
		c, ok := cells[start]
		if !ok {
			c = &cell{sessions: make(map[string]struct{})}
			cells[start] = c
		}
		c.sessions[e.SessionID] = struct{}{}
		if e.IsPageview() {
			c.pageviews++
		}
	}

	var buckets []Bucket
	for cur := aggregation.BucketFor(from, peakInterval); !cur.After(to); cur = cur.Add(peakInterval) {
		b := Bucket{WindowStart: cur, WindowEnd: cur.Add(peakInterval)}
		if c, ok := cells[cur]; ok {
			b.Sessions = len(c.sessions)
			b.PageViews = c.pageviews
		}
		buckets = append(buckets, b)
	}
	return buckets
}

// tally counts distinct sessions per value and remembers first-seen order.
type tally struct {
	order    []string
	sessions map[string]map[string]struct{}
}

func newTally() *tally {
	return &tally{sessions: make(map[string]map[string]struct{})}
}

func (t *tally) add(value, sessionID string) {
	set, ok := t.sessions[value]
	if !ok {
		set = make(map[string]struct{})
		t.sessions[value] = set
		t.order = append(t.order, value)
	}
	set[sessionID] = struct{}{}
}

// top returns the n values with the most sessions. Ties keep first-seen order.
func (t *tally) top(n int) []Count {
	counts := make([]Count, 0, len(t.order))
	for _, v := range t.order {
		counts = append(counts, Count{Value: v, Sessions: len(t.sessions[v])})
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Sessions > counts[j].Sessions
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
