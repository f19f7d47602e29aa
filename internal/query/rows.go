package query

import (
	"sort"
	"strconv"
	"time"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/core/aggregation"
)

type sessionSpan struct {
	first     time.Time
	last      time.Time
	hits      int
	pageviews int
}

// bucket accumulates the events of one (day, group) cell, or of a whole set for totals.
type bucket struct {
	pageviews int64
	events    int64
	visitors  map[string]struct{}
	sessions  map[string]*sessionSpan
}

func newBucket() *bucket {
	return &bucket{
		visitors: make(map[string]struct{}),
		sessions: make(map[string]*sessionSpan),
	}
}

func (b *bucket) add(e *v1.Event) {
	switch e.Kind {
	case v1.KindPageview:
		b.pageviews++
	case v1.KindEvent:
		b.events++
	case v1.KindEngagement, v1.KindHeartbeat:
	}

	if e.VisitorID != "" {
		b.visitors[e.VisitorID] = struct{}{}
	}
	if e.SessionID == "" {
		return
	}
	span, ok := b.sessions[e.SessionID]
	if !ok {
		span = &sessionSpan{first: e.IngestedAt, last: e.IngestedAt}
		b.sessions[e.SessionID] = span
	}
	if e.IngestedAt.Before(span.first) {
		span.first = e.IngestedAt
	}
	if e.IngestedAt.After(span.last) {
		span.last = e.IngestedAt
	}
	span.hits++
	if e.IsPageview() {
		span.pageviews++
	}
}

// bounceRate is the share of sessions with exactly one pageview.
func (b *bucket) bounceRate() float64 {
	bounced := 0
	for _, s := range b.sessions {
		if s.pageviews == 1 {
			bounced++
		}
	}
	return aggregation.Percent(float64(bounced), float64(len(b.sessions)))
}

// avgSessionDuration is the mean span in seconds of sessions with more than one event.
// The second return is false when no session qualifies.
func (b *bucket) avgSessionDuration() (float64, bool) {
	var spans []float64
	for _, s := range b.sessions {
		if s.hits > 1 {
			spans = append(spans, s.last.Sub(s.first).Seconds())
		}
	}
	if len(spans) == 0 {
		return 0, false
	}
	return aggregation.Mean(spans), true
}

func (b *bucket) totals() Totals {
	avg, _ := b.avgSessionDuration()
	return Totals{
		Pageviews:          b.pageviews,
		Visitors:           int64(len(b.visitors)),
		Sessions:           int64(len(b.sessions)),
		Events:             b.events,
		BounceRate:         b.bounceRate(),
		AvgSessionDuration: aggregation.Round(avg, 0),
	}
}

func computeTotals(events []*v1.Event) Totals {
	b := newBucket()
	for _, e := range events {
		b.add(e)
	}
	return b.totals()
}

// groupState holds the daily cells of one group value.
type groupState struct {
	value    string
	days     map[string]*bucket
	visitors map[string]struct{}
}

// groupRows builds daily stat cells per group and folds them into one row per
// group: counts are summed, visitors are a distinct count across days, and
// the rates are the mean of the daily values.
// Date grouping yields one row per calendar day in range, empty days included.
// Rows come back in first-seen order.
func groupRows(events []*v1.Event, groupBy string, rng timeRange) []Row {
	if groupBy == DimDate {
		return dailySeries(events, rng)
	}

	var order []*groupState
	groups := make(map[string]*groupState)
	for _, e := range events {
		key := dimensionValue(e, groupBy)
		g, ok := groups[key]
		if !ok {
			g = &groupState{
				value:    key,
				days:     make(map[string]*bucket),
				visitors: make(map[string]struct{}),
			}
			groups[key] = g
			order = append(order, g)
		}
		day := aggregation.DayKey(e.IngestedAt)
		cell, ok := g.days[day]
		if !ok {
			cell = newBucket()
			g.days[day] = cell
		}
		cell.add(e)
		if e.VisitorID != "" {
			g.visitors[e.VisitorID] = struct{}{}
		}
	}

	rows := make([]Row, 0, len(order))
	for _, g := range order {
		rows = append(rows, g.row())
	}
	return rows
}

func (g *groupState) row() Row {
	var (
		t         Totals
		bounces   []float64
		durations []float64
	)
	for _, cell := range g.days {
		t.Pageviews += cell.pageviews
		t.Events += cell.events
		t.Sessions += int64(len(cell.sessions))
		if len(cell.sessions) > 0 {
			bounces = append(bounces, cell.bounceRate())
		}
		if avg, ok := cell.avgSessionDuration(); ok {
			durations = append(durations, avg)
		}
	}
	t.Visitors = int64(len(g.visitors))
	t.BounceRate = aggregation.Round(aggregation.Mean(bounces), 1)
	t.AvgSessionDuration = aggregation.Round(aggregation.Mean(durations), 0)
	return Row{Group: g.value, Totals: t}
}

func dailySeries(events []*v1.Event, rng timeRange) []Row {
	first := aggregation.DayStart(rng.From)
	last := aggregation.DayStart(rng.To.Add(-time.Nanosecond))

	cells := make(map[string]*bucket)
	for _, e := range events {
		day := aggregation.DayKey(e.IngestedAt)
		cell, ok := cells[day]
		if !ok {
			cell = newBucket()
			cells[day] = cell
		}
		cell.add(e)
	}

	var rows []Row
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := aggregation.DayKey(d)
		cell, ok := cells[key]
		if !ok {
			cell = newBucket()
		}
		rows = append(rows, Row{Group: key, Totals: cell.totals()})
	}
	return rows
}

// sortRows orders rows by a metric (numerically) or the group value
// (lexicographically, or numerically for numeric dimensions). Equal keys keep
// their input order.
func sortRows(rows []Row, field string, desc bool, groupBy string) {
	if field == groupBy {
		less := func(a, b string) bool { return a < b }
		if IsNumericDimension(groupBy) {
			less = numericLess
		}
		sort.SliceStable(rows, func(i, j int) bool {
			if desc {
				return less(rows[j].Group, rows[i].Group)
			}
			return less(rows[i].Group, rows[j].Group)
		})
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := rows[i].Totals.Value(field)
		b, _ := rows[j].Totals.Value(field)
		if desc {
			return a > b
		}
		return a < b
	})
}

// numericLess compares two group values as numbers. Values that do not parse
// sort after every number.
func numericLess(a, b string) bool {
	x, errA := strconv.ParseFloat(a, 64)
	y, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA != nil && errB != nil:
		return a < b
	case errA != nil:
		return false
	case errB != nil:
		return true
	default:
		return x < y
	}
}

func paginate(rows []Row, offset, limit int) []Row {
	if offset >= len(rows) {
		return []Row{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

// project renders a row with its group value under the groupBy name.
func project(row Row, groupBy string, selected []string) map[string]interface{} {
	if selected == nil {
		selected = AllMetrics
	}
	out := make(map[string]interface{}, len(selected)+1)
	out[groupBy] = row.Group
	for _, m := range selected {
		switch m {
		case MetricPageviews:
			out[m] = row.Totals.Pageviews
		case MetricVisitors:
			out[m] = row.Totals.Visitors
		case MetricSessions:
			out[m] = row.Totals.Sessions
		case MetricEvents:
			out[m] = row.Totals.Events
		case MetricBounceRate:
			out[m] = row.Totals.BounceRate
		case MetricAvgSessionDuration:
			out[m] = row.Totals.AvgSessionDuration
		}
	}
	return out
}
