package funnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/core/aggregation"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
	"github.com/pulse-analytics/pulse/internal/core/storage"
	"github.com/pulse-analytics/pulse/internal/query"
)

const (
	minSteps = 2
	maxSteps = 10
)

// RowSource is the part of the query engine the evaluator reads through.
type RowSource interface {
	Events(ctx context.Context, siteID string, from, to time.Time, filters []query.Filter) ([]*v1.Event, error)
	Range(q query.Query) (time.Time, time.Time, error)
}

// Period is the evaluated range, [From, To).
type Period struct {
	From time.Time
	To   time.Time
}

// StepResult holds the counts for one funnel step. Index is 1-based.
type StepResult struct {
	Index        int     `json:"index"`
	Name         string  `json:"name"`
	Visitors     int     `json:"visitors"`
	DropOff      int     `json:"dropOff"`
	DropOffRate  float64 `json:"dropOffRate"`
	ProgressRate float64 `json:"progressRate"`
}

// Result is the evaluation of one funnel over one period.
type Result struct {
	FunnelID          string       `json:"funnelId,omitempty"`
	Name              string       `json:"name"`
	Steps             []StepResult `json:"steps"`
	TotalVisitors     int          `json:"totalVisitors"`
	Completions       int          `json:"completions"`
	ConversionRate    float64      `json:"conversionRate"`
	AvgTimeToComplete float64      `json:"avgTimeToComplete"` // seconds
}

// Evaluator computes funnel statistics. It never writes.
type Evaluator struct {
	rows  RowSource
	goals storage.GoalStore
}

func NewEvaluator(rows RowSource, goals storage.GoalStore) *Evaluator {
	if rows == nil {
		panic("funnel: row source must not be nil")
	}
	if goals == nil {
		panic("funnel: goal store must not be nil")
	}
	return &Evaluator{rows: rows, goals: goals}
}

// Evaluate walks each visitor's events in order with a step pointer. A visitor
// can only reach step k after step k-1, and only while within TimeWindow of
// their step 1 match. When the window lapses, a later step 1 match starts a
// new attempt; the furthest step ever reached counts.
func (e *Evaluator) Evaluate(ctx context.Context, f v1.Funnel, period Period, filters []query.Filter) (*Result, error) {
	if err := validate(f, period); err != nil {
		return nil, err
	}

	matchers, err := e.compile(ctx, f)
	if err != nil {
		return nil, err
	}

	events, err := e.rows.Events(ctx, f.SiteID, period.From, period.To, filters)
	if err != nil {
		return nil, err
	}

	window := time.Duration(f.TimeWindow) * time.Second
	progress := make(map[string]*visitorProgress)
	var order []*visitorProgress
	for _, evt := range events {
		if evt.VisitorID == "" {
			continue
		}
		vp, ok := progress[evt.VisitorID]
		if !ok {
			vp = &visitorProgress{}
			progress[evt.VisitorID] = vp
			order = append(order, vp)
		}
		vp.observe(evt, matchers, window)
	}

	counts := make([]int, len(matchers))
	var durations []float64
	for _, vp := range order {
		for k := 0; k < vp.best; k++ {
			counts[k]++
		}
		if vp.completed {
			durations = append(durations, vp.timeToComplete.Seconds())
		}
	}

	names := make([]string, len(f.Steps))
	for i, s := range f.Steps {
		names[i] = s.Name
		if names[i] == "" {
			names[i] = fmt.Sprintf("Step %d", i+1)
		}
	}

	entered := counts[0]
	completions := counts[len(counts)-1]
	return &Result{
		FunnelID:          f.ID,
		Name:              f.Name,
		Steps:             buildSteps(names, counts),
		TotalVisitors:     entered,
		Completions:       completions,
		ConversionRate:    aggregation.Percent(float64(completions), float64(entered)),
		AvgTimeToComplete: aggregation.Round(aggregation.Mean(durations), 0),
	}, nil
}

type visitorProgress struct {
	pointer        int
	start          time.Time
	best           int
	completed      bool
	timeToComplete time.Duration
}

func (vp *visitorProgress) observe(evt *v1.Event, matchers []*matcher, window time.Duration) {
	if vp.completed {
		return
	}
	if vp.pointer > 0 && evt.IngestedAt.Sub(vp.start) > window {
		vp.pointer = 0
	}
	if !matchers[vp.pointer].matches(evt) {
		return
	}

	if vp.pointer == 0 {
		vp.start = evt.IngestedAt
	}
	vp.pointer++
	if vp.pointer > vp.best {
		vp.best = vp.pointer
	}
	if vp.pointer == len(matchers) {
		vp.completed = true
		vp.timeToComplete = evt.IngestedAt.Sub(vp.start)
	}
}

// buildSteps derives drop-off and progress figures from per-step visitor counts.
func buildSteps(names []string, counts []int) []StepResult {
	steps := make([]StepResult, len(counts))
	for i, n := range counts {
		step := StepResult{Index: i + 1, Name: names[i], Visitors: n}
		if i == 0 {
			step.ProgressRate = aggregation.Percent(float64(n), float64(n))
		} else {
			prev := counts[i-1]
			step.DropOff = prev - n
			step.DropOffRate = aggregation.Percent(float64(step.DropOff), float64(prev))
			step.ProgressRate = aggregation.Percent(float64(n), float64(counts[0]))
		}
		steps[i] = step
	}
	return steps
}

type matcher struct {
	kind      v1.StepKind
	path      string
	matchType v1.MatchType
	re        *regexp.Regexp
	action    string
	category  string
}

func (m *matcher) matches(evt *v1.Event) bool {
	switch m.kind {
	case v1.StepPageview:
		return evt.Kind == v1.KindPageview && m.matchPath(evt.Path)
	case v1.StepEvent:
		if evt.Kind != v1.KindEvent || evt.Action != m.action {
			return false
		}
		return m.category == "" || evt.Category == m.category
	case v1.StepGoal:
		// Goal steps are resolved to pageview or event matchers before evaluation.
		return false
	default:
		return false
	}
}

func (m *matcher) matchPath(path string) bool {
	switch m.matchType {
	case v1.MatchPrefix:
		return strings.HasPrefix(path, m.path)
	case v1.MatchContains:
		return strings.Contains(path, m.path)
	case v1.MatchRegex:
		return m.re.MatchString(path)
	case v1.MatchExact, "":
		return path == m.path
	default:
		return false
	}
}

// compile resolves goal references and builds a matcher per step.
func (e *Evaluator) compile(ctx context.Context, f v1.Funnel) ([]*matcher, error) {
	matchers := make([]*matcher, len(f.Steps))
	for i, step := range f.Steps {
		if step.Kind == v1.StepGoal {
			goal, err := e.goals.GetGoal(ctx, f.SiteID, step.GoalID)
			if errors.Is(err, storage.ErrNotFound) {
				return nil, httperr.NotFoundf("goal %s", step.GoalID)
			}
			if err != nil {
				slog.Error("[Funnel] Failed to load goal", "site_id", f.SiteID, "goal_id", step.GoalID, "error", err)
				return nil, httperr.Persistence("get goal", err)
			}
			step = goal.AsStep(step.Name)
		}

		m := &matcher{
			kind:      step.Kind,
			path:      step.Path,
			matchType: step.MatchType,
			action:    step.Action,
			category:  step.Category,
		}
		if step.Kind == v1.StepPageview && step.MatchType == v1.MatchRegex {
			re, err := regexp.Compile(step.Path)
			if err != nil {
				return nil, httperr.NewValidationError(fmt.Sprintf("steps[%d].path", i), "invalid regular expression: %v", err)
			}
			m.re = re
		}
		matchers[i] = m
	}
	return matchers, nil
}

func validate(f v1.Funnel, period Period) error {
	verr := &httperr.ValidationError{}
	if strings.TrimSpace(f.SiteID) == "" {
		verr.Add("siteId", "is required")
	}
	if n := len(f.Steps); n < minSteps || n > maxSteps {
		verr.Add("steps", "must have between %d and %d steps, got %d", minSteps, maxSteps, n)
	}
	if f.TimeWindow <= 0 {
		verr.Add("timeWindow", "must be a positive number of seconds")
	}
	if !period.To.After(period.From) {
		verr.Add("period", "end must be after start")
	}

	for i, step := range f.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		switch step.Kind {
		case v1.StepPageview:
			if step.Path == "" {
				verr.Add(field+".path", "is required for pageview steps")
			}
			if !step.MatchType.Valid() {
				verr.Add(field+".matchType", "unknown match type %q", step.MatchType)
			}
		case v1.StepEvent:
			if step.Action == "" {
				verr.Add(field+".action", "is required for event steps")
			}
		case v1.StepGoal:
			if step.GoalID == "" {
				verr.Add(field+".goalId", "is required for goal steps")
			}
		default:
			verr.Add(field+".type", "must be pageview, event, or goal")
		}
	}
	return verr.OrNil()
}
