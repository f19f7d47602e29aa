package funnel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
	"github.com/pulse-analytics/pulse/internal/core/storage/memory"
	"github.com/pulse-analytics/pulse/internal/query"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func pv(visitor, path string, at time.Time) *v1.Event {
	return &v1.Event{
		ID:         fmt.Sprintf("%s-%s-%d", visitor, path, at.UnixNano()),
		SiteID:     "site-a",
		Kind:       v1.KindPageview,
		VisitorID:  visitor,
		SessionID:  "sess-" + visitor,
		Path:       path,
		IngestedAt: at,
	}
}

func custom(visitor, action string, at time.Time) *v1.Event {
	e := pv(visitor, "/", at)
	e.Kind = v1.KindEvent
	e.Action = action
	e.Category = "conversion"
	return e
}

func newTestEvaluator(t *testing.T, events []*v1.Event) (*Evaluator, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.SaveEvents(context.Background(), events))
	return NewEvaluator(query.NewService(store, query.Options{}), store), store
}

func signupFunnel() v1.Funnel {
	return v1.Funnel{
		ID:     "f-1",
		SiteID: "site-a",
		Name:   "Signup",
		Steps: []v1.FunnelStep{
			{Name: "Landing", Kind: v1.StepPageview, Path: "/"},
			{Name: "Pricing", Kind: v1.StepPageview, Path: "/pricing"},
			{Name: "Signup", Kind: v1.StepEvent, Action: "signup"},
		},
		TimeWindow: 3600,
	}
}

func day() Period {
	return Period{From: t0.Truncate(24 * time.Hour), To: t0.Truncate(24 * time.Hour).Add(24 * time.Hour)}
}

func scenarioEvents() []*v1.Event {
	return []*v1.Event{
		// v1 completes in two minutes.
		pv("v1", "/", t0),
		pv("v1", "/pricing", t0.Add(time.Minute)),
		custom("v1", "signup", t0.Add(2*time.Minute)),
		// v2 stops at pricing.
		pv("v2", "/", t0),
		pv("v2", "/pricing", t0.Add(5*time.Minute)),
		// v3 skips the landing step and never enters.
		pv("v3", "/pricing", t0),
		custom("v3", "signup", t0.Add(time.Minute)),
		// v4 skips pricing.
		pv("v4", "/", t0),
		custom("v4", "signup", t0.Add(time.Minute)),
		// v5 misses the window once, then restarts and reaches pricing.
		pv("v5", "/", t0),
		pv("v5", "/pricing", t0.Add(2*time.Hour)),
		pv("v5", "/", t0.Add(3*time.Hour)),
		pv("v5", "/pricing", t0.Add(3*time.Hour+time.Minute)),
	}
}

func TestEvaluate_Scenario(t *testing.T) {
	ev, _ := newTestEvaluator(t, scenarioEvents())

	res, err := ev.Evaluate(context.Background(), signupFunnel(), day(), nil)
	require.NoError(t, err)

	require.Equal(t, 4, res.TotalVisitors)
	require.Equal(t, 1, res.Completions)
	require.Equal(t, 25.0, res.ConversionRate)
	require.Equal(t, 120.0, res.AvgTimeToComplete)

	require.Equal(t, []StepResult{
		{Index: 1, Name: "Landing", Visitors: 4, ProgressRate: 100},
		{Index: 2, Name: "Pricing", Visitors: 3, DropOff: 1, DropOffRate: 25, ProgressRate: 75},
		{Index: 3, Name: "Signup", Visitors: 1, DropOff: 2, DropOffRate: 66.7, ProgressRate: 25},
	}, res.Steps)
}

func TestBuildSteps_Rates(t *testing.T) {
	steps := buildSteps([]string{"a", "b"}, []int{8243, 3421})

	require.Equal(t, 4822, steps[1].DropOff)
	require.Equal(t, 58.5, steps[1].DropOffRate)
	require.Equal(t, 41.5, steps[1].ProgressRate)
}

func TestBuildSteps_EmptyFunnel(t *testing.T) {
	steps := buildSteps([]string{"a", "b"}, []int{0, 0})
	require.Zero(t, steps[0].ProgressRate)
	require.Zero(t, steps[1].DropOffRate)
	require.Zero(t, steps[1].ProgressRate)
}

func TestEvaluate_VisitorCountsNeverIncrease(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	paths := []string{"/", "/pricing", "/docs", "/checkout"}

	var events []*v1.Event
	for v := 0; v < 200; v++ {
		visitor := fmt.Sprintf("v%d", v)
		at := t0
		n := 1 + rng.Intn(8)
		for i := 0; i < n; i++ {
			at = at.Add(time.Duration(rng.Intn(40)) * time.Minute)
			if rng.Intn(5) == 0 {
				events = append(events, custom(visitor, "signup", at))
				continue
			}
			events = append(events, pv(visitor, paths[rng.Intn(len(paths))], at))
		}
	}

	ev, _ := newTestEvaluator(t, events)
	f := signupFunnel()
	f.Steps = []v1.FunnelStep{
		f.Steps[0],
		f.Steps[1],
		{Kind: v1.StepPageview, Path: "/checkout"},
		f.Steps[2],
	}

	res, err := ev.Evaluate(context.Background(), f, day(), nil)
	require.NoError(t, err)
	require.Greater(t, res.Steps[0].Visitors, 0)
	for k := 1; k < len(res.Steps); k++ {
		require.LessOrEqual(t, res.Steps[k].Visitors, res.Steps[k-1].Visitors, "step %d", k+1)
		require.Equal(t, res.Steps[k-1].Visitors-res.Steps[k].Visitors, res.Steps[k].DropOff)
	}
	require.Equal(t, "Step 3", res.Steps[2].Name)
}

func TestEvaluate_MatchTypes(t *testing.T) {
	events := []*v1.Event{
		pv("v1", "/blog/hello", t0),
		pv("v1", "/product/42/buy", t0.Add(time.Minute)),
	}
	ev, _ := newTestEvaluator(t, events)

	tests := []struct {
		name  string
		first v1.FunnelStep
		next  v1.FunnelStep
		want  int
	}{
		{
			name:  "prefix and regex",
			first: v1.FunnelStep{Kind: v1.StepPageview, Path: "/blog/", MatchType: v1.MatchPrefix},
			next:  v1.FunnelStep{Kind: v1.StepPageview, Path: `^/product/\d+/buy$`, MatchType: v1.MatchRegex},
			want:  1,
		},
		{
			name:  "contains",
			first: v1.FunnelStep{Kind: v1.StepPageview, Path: "hello", MatchType: v1.MatchContains},
			next:  v1.FunnelStep{Kind: v1.StepPageview, Path: "buy", MatchType: v1.MatchContains},
			want:  1,
		},
		{
			name:  "exact does not match a prefix",
			first: v1.FunnelStep{Kind: v1.StepPageview, Path: "/blog"},
			next:  v1.FunnelStep{Kind: v1.StepPageview, Path: "/product/42/buy"},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := v1.Funnel{SiteID: "site-a", Steps: []v1.FunnelStep{tt.first, tt.next}, TimeWindow: 600}
			res, err := ev.Evaluate(context.Background(), f, day(), nil)
			require.NoError(t, err)
			require.Equal(t, tt.want, res.Completions)
		})
	}
}

func TestEvaluate_GoalStep(t *testing.T) {
	ev, store := newTestEvaluator(t, scenarioEvents())
	store.PutGoal(&v1.Goal{ID: "g-pricing", SiteID: "site-a", Kind: v1.GoalPageview, Path: "/pri", MatchType: v1.MatchPrefix})

	f := signupFunnel()
	f.Steps[1] = v1.FunnelStep{Name: "Pricing goal", Kind: v1.StepGoal, GoalID: "g-pricing"}

	res, err := ev.Evaluate(context.Background(), f, day(), nil)
	require.NoError(t, err)
	require.Equal(t, 3, res.Steps[1].Visitors)
	require.Equal(t, "Pricing goal", res.Steps[1].Name)
}

func TestEvaluate_UnknownGoal(t *testing.T) {
	ev, _ := newTestEvaluator(t, nil)

	f := signupFunnel()
	f.Steps[1] = v1.FunnelStep{Kind: v1.StepGoal, GoalID: "missing"}

	_, err := ev.Evaluate(context.Background(), f, day(), nil)
	require.ErrorIs(t, err, httperr.ErrNotFound)
}

func TestEvaluate_Validation(t *testing.T) {
	ev, _ := newTestEvaluator(t, nil)

	tests := []struct {
		name      string
		mutate    func(f *v1.Funnel)
		wantField string
	}{
		{"one step", func(f *v1.Funnel) { f.Steps = f.Steps[:1] }, "steps"},
		{"eleven steps", func(f *v1.Funnel) {
			for len(f.Steps) < 11 {
				f.Steps = append(f.Steps, f.Steps[0])
			}
		}, "steps"},
		{"no window", func(f *v1.Funnel) { f.TimeWindow = 0 }, "timeWindow"},
		{"pageview without path", func(f *v1.Funnel) { f.Steps[0].Path = "" }, "steps[0].path"},
		{"event without action", func(f *v1.Funnel) { f.Steps[2].Action = "" }, "steps[2].action"},
		{"unknown kind", func(f *v1.Funnel) { f.Steps[1].Kind = "click" }, "steps[1].type"},
		{"bad match type", func(f *v1.Funnel) { f.Steps[0].MatchType = "fuzzy" }, "steps[0].matchType"},
		{"bad regex", func(f *v1.Funnel) {
			f.Steps[0].MatchType = v1.MatchRegex
			f.Steps[0].Path = "(("
		}, "steps[0].path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := signupFunnel()
			tt.mutate(&f)
			_, err := ev.Evaluate(context.Background(), f, day(), nil)
			var verr *httperr.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.wantField, verr.FirstField())
		})
	}
}

func TestHandleEvaluate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ev, _ := newTestEvaluator(t, scenarioEvents())
	r := gin.New()
	ev.RegisterRoutes(r)

	post := func(body interface{}) *httptest.ResponseRecorder {
		b, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/funnels/evaluate", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp
	}

	resp := post(map[string]interface{}{
		"funnel":    signupFunnel(),
		"startDate": "2026-03-01",
		"endDate":   "2026-03-01",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	var res Result
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
	require.Equal(t, 4, res.TotalVisitors)

	missingGoal := signupFunnel()
	missingGoal.Steps[1] = v1.FunnelStep{Kind: v1.StepGoal, GoalID: "nope"}
	resp = post(map[string]interface{}{"funnel": missingGoal, "period": "7d"})
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = post(map[string]interface{}{"funnel": signupFunnel()})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
