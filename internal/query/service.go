package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/core/aggregation"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
	"github.com/pulse-analytics/pulse/internal/core/storage"
	"github.com/pulse-analytics/pulse/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxSpanDays = 90
	defaultLimit       = 100
	defaultMaxLimit    = 1000
)

// Options bounds query shapes. Zero values fall back to defaults.
type Options struct {
	MaxSpanDays  int
	DefaultLimit int
	MaxLimit     int
	Metrics      *metrics.Metrics
}

// Service answers stats queries over stored events.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	store   storage.EventStore
	opts    Options
	metrics *metrics.Metrics
	nowFn   func() time.Time
}

func NewService(store storage.EventStore, opts Options) *Service {
	if store == nil {
		panic("query: store must not be nil")
	}
	if opts.MaxSpanDays <= 0 {
		opts.MaxSpanDays = defaultMaxSpanDays
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = defaultMaxLimit
	}
	if opts.DefaultLimit <= 0 || opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = defaultLimit
	}
	return &Service{
		store:   store,
		opts:    opts,
		metrics: opts.Metrics,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// timeRange is a resolved query range. From is inclusive, To exclusive.
type timeRange struct {
	From      time.Time
	To        time.Time
	StartDate string
	EndDate   string
}

// ExecuteQuery filters, groups, orders and paginates events for one site.
func (s *Service) ExecuteQuery(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	defer s.observe("execute", start)

	q, rng, err := s.normalizeAndValidate(q)
	if err != nil {
		return nil, err
	}

	events, err := s.load(ctx, q.SiteID, rng.From, rng.To, q.Filters)
	if err != nil {
		return nil, err
	}

	rows := groupRows(events, q.GroupBy, rng)
	if q.OrderBy != "" {
		field, desc := parseOrderBy(q.OrderBy)
		sortRows(rows, field, desc, q.GroupBy)
	}

	totalGroups := len(rows)
	page := paginate(rows, q.Offset, q.Limit)

	data := make([]map[string]interface{}, 0, len(page))
	for _, row := range page {
		data = append(data, project(row, q.GroupBy, q.Metrics))
	}

	return &Result{
		Data:   data,
		Totals: computeTotals(events),
		Metadata: Metadata{
			SiteID:      q.SiteID,
			StartDate:   rng.StartDate,
			EndDate:     rng.EndDate,
			GroupBy:     q.GroupBy,
			OrderBy:     q.OrderBy,
			Limit:       q.Limit,
			Offset:      q.Offset,
			TotalGroups: totalGroups,
			HasMore:     q.Offset+q.Limit < totalGroups,
		},
		rows: page,
	}, nil
}

// Aggregate computes totals over an exact time range [from, to).
func (s *Service) Aggregate(ctx context.Context, siteID string, from, to time.Time, filters []Filter) (Totals, error) {
	start := time.Now()
	defer s.observe("aggregate", start)

	verr := &httperr.ValidationError{}
	if strings.TrimSpace(siteID) == "" {
		verr.Add("siteId", "is required")
	}
	if !to.After(from) {
		verr.Add("to", "must be after from")
	}
	checkFilters(verr, filters)
	if err := verr.OrNil(); err != nil {
		return Totals{}, err
	}

	events, err := s.load(ctx, siteID, from, to, filters)
	if err != nil {
		return Totals{}, err
	}
	return computeTotals(events), nil
}

// ComparePeriods runs both queries concurrently and reports per-metric change.
// changePercent is 0 when the previous value is 0.
func (s *Service) ComparePeriods(ctx context.Context, current, previous Query) (*Comparison, error) {
	start := time.Now()
	defer s.observe("compare", start)

	var cur, prev *Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cur, err = s.ExecuteQuery(gctx, current)
		return err
	})
	g.Go(func() error {
		var err error
		prev, err = s.ExecuteQuery(gctx, previous)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	changes := make(map[string]Change, len(AllMetrics))
	for _, m := range AllMetrics {
		c, _ := cur.Totals.Value(m)
		p, _ := prev.Totals.Value(m)
		changes[m] = NewChange(c, p)
	}

	return &Comparison{
		Current:  cur.Metadata,
		Previous: prev.Metadata,
		Metrics:  changes,
	}, nil
}

// Range resolves the period or explicit dates of q into [from, to).
func (s *Service) Range(q Query) (time.Time, time.Time, error) {
	_, rng, err := s.normalizeAndValidate(q)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return rng.From, rng.To, nil
}

// Events returns the events of a site in [from, to) that pass every filter,
// ordered by ingestion time.
func (s *Service) Events(ctx context.Context, siteID string, from, to time.Time, filters []Filter) ([]*v1.Event, error) {
	verr := &httperr.ValidationError{}
	checkFilters(verr, filters)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return s.load(ctx, siteID, from, to, filters)
}

// NewChange reports the absolute and relative change from previous to current.
// ChangePercent is 0 when previous is 0.
func NewChange(current, previous float64) Change {
	diff := aggregation.Round(current-previous, 2)
	return Change{
		Current:       current,
		Previous:      previous,
		Change:        diff,
		ChangePercent: aggregation.Percent(diff, previous),
	}
}

// PreviousQuery returns q shifted back by its own length, ending where q starts.
func (s *Service) PreviousQuery(q Query) (Query, error) {
	_, rng, err := s.normalizeAndValidate(q)
	if err != nil {
		return Query{}, err
	}

	prev := q
	if q.StartDate == "" && q.EndDate == "" {
		prev.Period = ""
		prev.anchor = rng.From
		prev.span = rng.To.Sub(rng.From)
		return prev, nil
	}

	days := aggregation.DaysInclusive(rng.From, rng.To.Add(-time.Nanosecond))
	prevEnd := rng.From.AddDate(0, 0, -1)
	prev.EndDate = aggregation.DayKey(prevEnd)
	prev.StartDate = aggregation.DayKey(prevEnd.AddDate(0, 0, -(days - 1)))
	return prev, nil
}

func (s *Service) load(ctx context.Context, siteID string, from, to time.Time, filters []Filter) ([]*v1.Event, error) {
	events, err := s.store.QueryEvents(ctx, storage.EventQuery{
		SiteID: siteID,
		From:   from,
		To:     to,
		Equals: pushdownEquals(filters),
	})
	if err != nil {
		slog.Error("[Query] Failed to load events", "site_id", siteID, "from", from, "to", to, "error", err)
		return nil, httperr.Persistence("query events", err)
	}
	return applyFilters(events, filters), nil
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// normalizeAndValidate fills defaults and collects every violation into one error.
func (s *Service) normalizeAndValidate(q Query) (Query, timeRange, error) {
	verr := &httperr.ValidationError{Fields: append([]httperr.FieldError(nil), q.parseErrs...)}
	var rng timeRange

	if strings.TrimSpace(q.SiteID) == "" {
		verr.Add("siteId", "is required")
	}

	explicit := q.StartDate != "" || q.EndDate != ""
	switch {
	case explicit:
		rng = s.resolveDates(q, verr)
	case q.Period != "":
		size, ok := q.Period.Duration()
		if !ok {
			verr.Add("period", "must be one of 24h, 7d, 30d, 90d, 365d")
			break
		}
		rng = s.resolveRelative(q.anchor, size)
	case q.span > 0:
		rng = s.resolveRelative(q.anchor, q.span)
	default:
		verr.Add("period", "period or startDate and endDate is required")
	}

	if q.Limit == 0 {
		q.Limit = s.opts.DefaultLimit
	}
	if q.Limit < 1 || q.Limit > s.opts.MaxLimit {
		verr.Add("limit", "must be between 1 and %d", s.opts.MaxLimit)
	}
	if q.Offset < 0 {
		verr.Add("offset", "must be >= 0")
	}

	if q.Metrics != nil {
		if len(q.Metrics) == 0 {
			verr.Add("metrics", "must not be empty")
		}
		for _, m := range q.Metrics {
			if !IsMetric(m) {
				verr.Add("metrics", "unknown metric %q", m)
			}
		}
	}

	checkFilters(verr, q.Filters)

	if q.GroupBy == "" {
		q.GroupBy = DimDate
	} else if !IsDimension(q.GroupBy) {
		verr.Add("groupBy", "unknown dimension %q", q.GroupBy)
	}

	if q.OrderBy != "" {
		if msg := checkOrderBy(q.OrderBy, q.GroupBy); msg != "" {
			verr.Add("orderBy", "%s", msg)
		}
	}

	return q, rng, verr.OrNil()
}

func (s *Service) resolveDates(q Query, verr *httperr.ValidationError) timeRange {
	if q.StartDate == "" {
		verr.Add("startDate", "is required")
	}
	if q.EndDate == "" {
		verr.Add("endDate", "is required")
	}
	if q.StartDate == "" || q.EndDate == "" {
		return timeRange{}
	}

	start, errStart := time.Parse(aggregation.DayLayout, q.StartDate)
	if errStart != nil {
		verr.Add("startDate", "must be a date in YYYY-MM-DD format")
	}
	end, errEnd := time.Parse(aggregation.DayLayout, q.EndDate)
	if errEnd != nil {
		verr.Add("endDate", "must be a date in YYYY-MM-DD format")
	}
	if errStart != nil || errEnd != nil {
		return timeRange{}
	}

	if start.After(end) {
		verr.Add("startDate", "must not be after endDate")
		return timeRange{}
	}
	if days := aggregation.DaysInclusive(start, end); days > s.opts.MaxSpanDays {
		verr.Add("endDate", "range spans %d days, maximum is %d", days, s.opts.MaxSpanDays)
	}

	return timeRange{
		From:      start,
		To:        end.AddDate(0, 0, 1),
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
	}
}

func (s *Service) resolveRelative(anchor time.Time, size time.Duration) timeRange {
	to := anchor
	if to.IsZero() {
		to = s.nowFn()
	}
	from := to.Add(-size)
	return timeRange{
		From:      from,
		To:        to,
		StartDate: aggregation.DayKey(from),
		EndDate:   aggregation.DayKey(to.Add(-time.Nanosecond)),
	}
}

func checkFilters(verr *httperr.ValidationError, filters []Filter) {
	for i, f := range filters {
		if msg := checkFilter(f); msg != "" {
			verr.Add(fmt.Sprintf("filters[%d]", i), "%s", msg)
		}
	}
}

// checkOrderBy validates "field" or "field:asc|desc".
func checkOrderBy(orderBy, groupBy string) string {
	field, dir, hasDir := strings.Cut(orderBy, ":")
	if hasDir && dir != "asc" && dir != "desc" {
		return fmt.Sprintf("direction must be asc or desc, got %q", dir)
	}
	if !IsMetric(field) && field != groupBy {
		return fmt.Sprintf("cannot order by %q", field)
	}
	return ""
}

// parseOrderBy splits a validated orderBy. Direction defaults to descending.
func parseOrderBy(orderBy string) (string, bool) {
	field, dir, _ := strings.Cut(orderBy, ":")
	return field, dir != "asc"
}
