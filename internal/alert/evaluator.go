package alert

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/core/aggregation"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
	"github.com/pulse-analytics/pulse/internal/query"
	"golang.org/x/sync/errgroup"
)

// baselinePeriods is how many preceding periods form the anomaly baseline.
const baselinePeriods = 7

// Status is the outcome of one evaluation.
type Status string

const (
	StatusTriggered    Status = "triggered"
	StatusNotTriggered Status = "not_triggered"
	StatusDisabled     Status = "disabled"
	StatusCooldown     Status = "cooldown"
)

// Aggregator is the part of the query engine alerts read through.
type Aggregator interface {
	Aggregate(ctx context.Context, siteID string, from, to time.Time, filters []query.Filter) (query.Totals, error)
}

// TriggerResult is the decision for one alert at one instant.
// Value is the observed figure: the metric for threshold and anomaly alerts,
// the change percent for comparison alerts.
type TriggerResult struct {
	AlertID     string    `json:"alertId,omitempty"`
	Status      Status    `json:"status"`
	Value       float64   `json:"value"`
	Baseline    float64   `json:"baseline"`
	Threshold   float64   `json:"threshold"`
	Message     string    `json:"message,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Triggered reports whether the alert should fire.
func (r *TriggerResult) Triggered() bool {
	return r != nil && r.Status == StatusTriggered
}

// Evaluator decides whether an alert fires. It never writes.
type Evaluator struct {
	agg Aggregator
}

func NewEvaluator(agg Aggregator) *Evaluator {
	if agg == nil {
		panic("alert: aggregator must not be nil")
	}
	return &Evaluator{agg: agg}
}

// Evaluate checks a at now. Disabled alerts and alerts inside their cooldown
// are reported as such without reading any data.
func (e *Evaluator) Evaluate(ctx context.Context, a *v1.Alert, now time.Time) (*TriggerResult, error) {
	period, err := validate(a)
	if err != nil {
		return nil, err
	}

	res := &TriggerResult{AlertID: a.ID, Threshold: a.Threshold, EvaluatedAt: now}
	switch {
	case !a.Enabled:
		res.Status = StatusDisabled
		return res, nil
	case a.InCooldown(now):
		res.Status = StatusCooldown
		return res, nil
	}

	var fired bool
	switch a.Type {
	case v1.AlertThreshold:
		fired, err = e.threshold(ctx, a, period, now, res)
	case v1.AlertComparison:
		fired, err = e.comparison(ctx, a, period, now, res)
	case v1.AlertAnomaly:
		fired, err = e.anomaly(ctx, a, period, now, res)
	}
	if err != nil {
		return nil, err
	}

	res.Status = StatusNotTriggered
	if fired {
		res.Status = StatusTriggered
	}
	return res, nil
}

func (e *Evaluator) threshold(ctx context.Context, a *v1.Alert, period time.Duration, now time.Time, res *TriggerResult) (bool, error) {
	value, err := e.metric(ctx, a, now.Add(-period), now)
	if err != nil {
		return false, err
	}
	res.Value = value
	fired, _ := a.Operator.Compare(value, a.Threshold)
	if fired {
		res.Message = fmt.Sprintf("%s is %s over the last %s (%s %s)", a.Metric, formatValue(value), a.Period, a.Operator, formatValue(a.Threshold))
	}
	return fired, nil
}

func (e *Evaluator) comparison(ctx context.Context, a *v1.Alert, period time.Duration, now time.Time, res *TriggerResult) (bool, error) {
	from := now.Add(-period)
	baseFrom, baseTo := baselineWindow(a.CompareWith, from, now)

	var current, previous float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = e.metric(gctx, a, from, now)
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = e.metric(gctx, a, baseFrom, baseTo)
		return err
	})
	if err := g.Wait(); err != nil {
		return false, err
	}

	change := query.NewChange(current, previous)
	res.Value = change.ChangePercent
	res.Baseline = previous
	fired, _ := a.Operator.Compare(change.ChangePercent, a.Threshold)
	if fired {
		res.Message = fmt.Sprintf("%s changed %s%% against the %s (%s -> %s)",
			a.Metric, formatValue(change.ChangePercent), strings.ReplaceAll(string(a.CompareWith), "_", " "),
			formatValue(previous), formatValue(current))
	}
	return fired, nil
}

// anomaly compares the current period with the mean of the preceding periods.
// It fires when |current - mean| > k * stddev. A flat history (stddev 0)
// makes any deviation fire.
func (e *Evaluator) anomaly(ctx context.Context, a *v1.Alert, period time.Duration, now time.Time, res *TriggerResult) (bool, error) {
	values := make([]float64, baselinePeriods+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range values {
		to := now.Add(-time.Duration(i) * period)
		g.Go(func() error {
			v, err := e.metric(gctx, a, to.Add(-period), to)
			values[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	current, history := values[0], values[1:]
	mean, stddev := meanStdDev(history)
	band := a.Sensitivity.Multiplier() * stddev

	res.Value = current
	res.Baseline = aggregation.Round(mean, 2)
	res.Threshold = aggregation.Round(band, 2)
	fired := math.Abs(current-mean) > band
	if fired {
		res.Message = fmt.Sprintf("%s is %s, outside %s ± %s (%s sensitivity)",
			a.Metric, formatValue(current), formatValue(res.Baseline), formatValue(res.Threshold), sensitivityName(a.Sensitivity))
	}
	return fired, nil
}

func (e *Evaluator) metric(ctx context.Context, a *v1.Alert, from, to time.Time) (float64, error) {
	totals, err := e.agg.Aggregate(ctx, a.SiteID, from, to, nil)
	if err != nil {
		return 0, err
	}
	v, _ := totals.Value(a.Metric)
	return v, nil
}

// baselineWindow returns the window a comparison alert measures against.
func baselineWindow(with v1.CompareWith, from, to time.Time) (time.Time, time.Time) {
	switch with {
	case v1.ComparePreviousWeek:
		return from.AddDate(0, 0, -7), to.AddDate(0, 0, -7)
	case v1.ComparePreviousMonth:
		return from.AddDate(0, -1, 0), to.AddDate(0, -1, 0)
	case v1.ComparePreviousPeriod, "":
		return from.Add(-to.Sub(from)), from
	default:
		return from.Add(-to.Sub(from)), from
	}
}

// meanStdDev returns the mean and population standard deviation of values.
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := aggregation.Mean(values)
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

func sensitivityName(s v1.Sensitivity) string {
	if s == "" {
		return string(v1.SensitivityMedium)
	}
	return string(s)
}

func formatValue(v float64) string {
	return fmt.Sprintf("%g", aggregation.Round(v, 2))
}

// validate checks the definition and returns its parsed period.
func validate(a *v1.Alert) (time.Duration, error) {
	verr := &httperr.ValidationError{}
	if a == nil {
		verr.Add("alert", "is required")
		return 0, verr
	}
	if strings.TrimSpace(a.SiteID) == "" {
		verr.Add("siteId", "is required")
	}
	if !a.Type.Valid() {
		verr.Add("type", "must be threshold, comparison, or anomaly")
	}
	if !query.IsMetric(a.Metric) {
		verr.Add("metric", "unknown metric %q", a.Metric)
	}
	if a.Type != v1.AlertAnomaly {
		if _, ok := a.Operator.Compare(0, 0); !ok {
			verr.Add("operator", "must be one of gt, lt, gte, lte, eq")
		}
	}
	switch a.CompareWith {
	case "", v1.ComparePreviousPeriod, v1.ComparePreviousWeek, v1.ComparePreviousMonth:
	default:
		verr.Add("compareWith", "must be previous_period, previous_week, or previous_month")
	}
	switch a.Sensitivity {
	case "", v1.SensitivityLow, v1.SensitivityMedium, v1.SensitivityHigh:
	default:
		verr.Add("sensitivity", "must be low, medium, or high")
	}

	period, err := aggregation.ParseWindow(a.Period)
	if err != nil {
		verr.Add("period", "must be a positive duration such as 1h or 7d")
	}
	for i, ch := range a.Channels {
		switch ch.Type {
		case v1.ChannelWebhook:
			if !strings.HasPrefix(ch.Target, "http://") && !strings.HasPrefix(ch.Target, "https://") {
				verr.Add(fmt.Sprintf("channels[%d].target", i), "must be an http(s) URL")
			}
		case v1.ChannelLog:
		default:
			verr.Add(fmt.Sprintf("channels[%d].type", i), "must be webhook or log")
		}
	}
	return period, verr.OrNil()
}
