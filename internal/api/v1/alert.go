package v1

import "time"

// AlertType is the closed set of alert evaluation strategies.
type AlertType string

const (
	AlertThreshold  AlertType = "threshold"
	AlertComparison AlertType = "comparison"
	AlertAnomaly    AlertType = "anomaly"
)

// Cooldown is the fixed quiet period after a trigger. It does not depend on
// whether the condition is still true.
func (t AlertType) Cooldown() time.Duration {
	switch t {
	case AlertThreshold:
		return time.Hour
	case AlertComparison:
		return 24 * time.Hour
	case AlertAnomaly:
		return 6 * time.Hour
	default:
		return time.Hour
	}
}

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertThreshold, AlertComparison, AlertAnomaly:
		return true
	default:
		return false
	}
}

// AlertOperator compares an observed value against a threshold.
type AlertOperator string

const (
	AlertGT  AlertOperator = "gt"
	AlertLT  AlertOperator = "lt"
	AlertGTE AlertOperator = "gte"
	AlertLTE AlertOperator = "lte"
	AlertEQ  AlertOperator = "eq"
)

// Compare applies the operator as "value <op> threshold".
// The second return is false for an unknown operator.
func (o AlertOperator) Compare(value, threshold float64) (bool, bool) {
	switch o {
	case AlertGT:
		return value > threshold, true
	case AlertLT:
		return value < threshold, true
	case AlertGTE:
		return value >= threshold, true
	case AlertLTE:
		return value <= threshold, true
	case AlertEQ:
		return value == threshold, true
	default:
		return false, false
	}
}

// CompareWith selects the baseline window for comparison alerts.
type CompareWith string

const (
	ComparePreviousPeriod CompareWith = "previous_period"
	ComparePreviousWeek   CompareWith = "previous_week"
	ComparePreviousMonth  CompareWith = "previous_month"
)

// Sensitivity scales the acceptable band for anomaly alerts.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Multiplier is the number of standard deviations tolerated before an anomaly fires.
// Higher sensitivity means a narrower band.
func (s Sensitivity) Multiplier() float64 {
	switch s {
	case SensitivityLow:
		return 3.0
	case SensitivityHigh:
		return 1.5
	case SensitivityMedium:
		return 2.0
	default:
		return 2.0
	}
}

// ChannelType is the closed set of notification channels.
type ChannelType string

const (
	ChannelWebhook ChannelType = "webhook"
	ChannelLog     ChannelType = "log"
)

// Channel is one notification destination.
type Channel struct {
	Type   ChannelType `json:"type"`
	Target string      `json:"target,omitempty"`
}

// Alert is an externally owned alert definition plus its trigger state.
// Only Enabled/LastTriggeredAt/TriggerCount are ever written by this service.
type Alert struct {
	ID          string        `json:"id"`
	SiteID      string        `json:"siteId"`
	Name        string        `json:"name"`
	Type        AlertType     `json:"type"`
	Metric      string        `json:"metric"`
	Operator    AlertOperator `json:"operator"`
	Threshold   float64       `json:"threshold"`
	Period      string        `json:"period"`
	CompareWith CompareWith   `json:"compareWith,omitempty"`
	Sensitivity Sensitivity   `json:"sensitivity,omitempty"`
	Channels    []Channel     `json:"channels,omitempty"`

	Enabled         bool       `json:"enabled"`
	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
	TriggerCount    int        `json:"triggerCount"`
}

// InCooldown reports whether the alert fired recently enough to be suppressed at now.
func (a *Alert) InCooldown(now time.Time) bool {
	if a.LastTriggeredAt == nil {
		return false
	}
	return now.Before(a.LastTriggeredAt.Add(a.Type.Cooldown()))
}

// TriggerRecord is one entry of an alert's trigger history.
type TriggerRecord struct {
	ID          string    `json:"id"`
	AlertID     string    `json:"alertId"`
	SiteID      string    `json:"siteId"`
	Value       float64   `json:"value"`
	Baseline    float64   `json:"baseline"`
	Threshold   float64   `json:"threshold"`
	Message     string    `json:"message"`
	TriggeredAt time.Time `json:"triggeredAt"`
}
