package query

import (
	"time"

	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
)

// Period is a relative range resolved against the current time.
type Period string

const (
	Period24h  Period = "24h"
	Period7d   Period = "7d"
	Period30d  Period = "30d"
	Period90d  Period = "90d"
	Period365d Period = "365d"
)

// Duration returns the length of the period and false for an unknown value.
func (p Period) Duration() (time.Duration, bool) {
	switch p {
	case Period24h:
		return 24 * time.Hour, true
	case Period7d:
		return 7 * 24 * time.Hour, true
	case Period30d:
		return 30 * 24 * time.Hour, true
	case Period90d:
		return 90 * 24 * time.Hour, true
	case Period365d:
		return 365 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Operator is a filter comparison.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpLt, OpGte, OpLte, OpIn, OpContains:
		return true
	default:
		return false
	}
}

// Filter is one predicate. Filters in a query are ANDed.
// Value is a string or number, or a list of them for OpIn.
type Filter struct {
	Dimension string      `json:"dimension"`
	Operator  Operator    `json:"operator"`
	Value     interface{} `json:"value"`
}

// Metric names.
const (
	MetricPageviews          = "pageviews"
	MetricVisitors           = "visitors"
	MetricSessions           = "sessions"
	MetricEvents             = "events"
	MetricBounceRate         = "bounceRate"
	MetricAvgSessionDuration = "avgSessionDuration"
)

// AllMetrics lists every metric in response order.
var AllMetrics = []string{
	MetricPageviews,
	MetricVisitors,
	MetricSessions,
	MetricEvents,
	MetricBounceRate,
	MetricAvgSessionDuration,
}

// IsMetric reports whether name is a known metric.
func IsMetric(name string) bool {
	for _, m := range AllMetrics {
		if m == name {
			return true
		}
	}
	return false
}

// Query is one stats request.
// Either Period or StartDate/EndDate (YYYY-MM-DD, inclusive) selects the range.
type Query struct {
	SiteID    string   `json:"siteId"`
	Period    Period   `json:"period,omitempty"`
	StartDate string   `json:"startDate,omitempty"`
	EndDate   string   `json:"endDate,omitempty"`
	Filters   []Filter `json:"filters,omitempty"`
	GroupBy   string   `json:"groupBy,omitempty"`
	OrderBy   string   `json:"orderBy,omitempty"`

	// Limit of 0 selects the default.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Metrics restricts the metrics in each row. nil means all.
	Metrics []string `json:"metrics,omitempty"`

	// anchor and span describe a relative range ending before now. Set by PreviousQuery.
	anchor time.Time
	span   time.Duration

	// parseErrs holds URL parameters that could not be decoded. They are
	// reported together with the rest of the validation.
	parseErrs []httperr.FieldError
}

// Totals are computed over the whole filtered set, before grouping or pagination.
type Totals struct {
	Pageviews          int64   `json:"pageviews"`
	Visitors           int64   `json:"visitors"`
	Sessions           int64   `json:"sessions"`
	Events             int64   `json:"events"`
	BounceRate         float64 `json:"bounceRate"`
	AvgSessionDuration float64 `json:"avgSessionDuration"`
}

// Value returns a metric by name.
func (t Totals) Value(metric string) (float64, bool) {
	switch metric {
	case MetricPageviews:
		return float64(t.Pageviews), true
	case MetricVisitors:
		return float64(t.Visitors), true
	case MetricSessions:
		return float64(t.Sessions), true
	case MetricEvents:
		return float64(t.Events), true
	case MetricBounceRate:
		return t.BounceRate, true
	case MetricAvgSessionDuration:
		return t.AvgSessionDuration, true
	default:
		return 0, false
	}
}

// Row is one aggregated group.
type Row struct {
	Group  string
	Totals Totals
}

// Metadata describes the resolved range and the page.
type Metadata struct {
	SiteID      string `json:"siteId"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	GroupBy     string `json:"groupBy"`
	OrderBy     string `json:"orderBy,omitempty"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
	TotalGroups int    `json:"totalGroups"`
	HasMore     bool   `json:"hasMore"`
}

// Result is the response of ExecuteQuery. Each Data entry holds the group
// value under the groupBy name plus the selected metrics.
type Result struct {
	Data     []map[string]interface{} `json:"data"`
	Totals   Totals                   `json:"totals"`
	Metadata Metadata                 `json:"metadata"`
	rows     []Row
}

// Rows returns the page of rows before projection to response maps.
func (r *Result) Rows() []Row {
	return r.rows
}

// Change compares one metric across two periods.
type Change struct {
	Current       float64 `json:"current"`
	Previous      float64 `json:"previous"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// Comparison is the result of ComparePeriods.
type Comparison struct {
	Current  Metadata          `json:"current"`
	Previous Metadata          `json:"previous"`
	Metrics  map[string]Change `json:"metrics"`
}
