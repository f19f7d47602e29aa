package v1

// StepKind is the closed set of funnel step types.
type StepKind string

const (
	StepPageview StepKind = "pageview"
	StepEvent    StepKind = "event"
	StepGoal     StepKind = "goal"
)

// MatchType selects how a pageview step compares paths.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchPrefix   MatchType = "prefix"
	MatchContains MatchType = "contains"
	MatchRegex    MatchType = "regex"
)

// Valid reports whether m is one of the known match types. Empty is treated as exact.
func (m MatchType) Valid() bool {
	switch m {
	case "", MatchExact, MatchPrefix, MatchContains, MatchRegex:
		return true
	default:
		return false
	}
}

// FunnelStep is one ordered step of a funnel.
// Which fields apply depends on Kind: pageview uses Path/MatchType,
// event uses Action/Category, goal uses GoalID.
type FunnelStep struct {
	Name      string    `json:"name"`
	Kind      StepKind  `json:"type"`
	Path      string    `json:"path,omitempty"`
	MatchType MatchType `json:"matchType,omitempty"`
	Action    string    `json:"action,omitempty"`
	Category  string    `json:"category,omitempty"`
	GoalID    string    `json:"goalId,omitempty"`
}

// Funnel is an externally owned funnel definition.
type Funnel struct {
	ID     string       `json:"id,omitempty"`
	SiteID string       `json:"siteId"`
	Name   string       `json:"name"`
	Steps  []FunnelStep `json:"steps"`

	// TimeWindow bounds, in seconds, how long a visitor has to go from step 1 to the last step.
	TimeWindow int64 `json:"timeWindow"`
}

// GoalKind is the closed set of goal types.
type GoalKind string

const (
	GoalPageview GoalKind = "pageview"
	GoalEvent    GoalKind = "event"
)

// Goal is an externally owned conversion goal, referenced by funnel goal steps.
type Goal struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"siteId"`
	Name      string    `json:"name"`
	Kind      GoalKind  `json:"type"`
	Path      string    `json:"path,omitempty"`
	MatchType MatchType `json:"matchType,omitempty"`
	Action    string    `json:"action,omitempty"`
	Category  string    `json:"category,omitempty"`
}

// AsStep converts a goal into the equivalent concrete funnel step.
func (g *Goal) AsStep(name string) FunnelStep {
	switch g.Kind {
	case GoalEvent:
		return FunnelStep{Name: name, Kind: StepEvent, Action: g.Action, Category: g.Category}
	case GoalPageview:
		return FunnelStep{Name: name, Kind: StepPageview, Path: g.Path, MatchType: g.MatchType}
	default:
		return FunnelStep{Name: name, Kind: StepPageview, Path: g.Path, MatchType: g.MatchType}
	}
}
