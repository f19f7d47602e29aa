package v1

import (
	"time"
)

// Kind is the closed set of event kinds accepted by the collector.
type Kind string

const (
	KindPageview   Kind = "pageview"
	KindEvent      Kind = "event"
	KindEngagement Kind = "engagement"
	KindHeartbeat  Kind = "heartbeat"
)

// Kinds lists every valid kind in declaration order.
var Kinds = []Kind{KindPageview, KindEvent, KindEngagement, KindHeartbeat}

// ParseKind maps a wire string onto a Kind. The second return is false for
// anything outside the closed set.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindPageview, KindEvent, KindEngagement, KindHeartbeat:
		return Kind(s), true
	default:
		return "", false
	}
}

// SessionBearing reports whether events of this kind must carry a session token.
func (k Kind) SessionBearing() bool {
	switch k {
	case KindPageview, KindEngagement, KindHeartbeat:
		return true
	case KindEvent:
		return false
	default:
		return false
	}
}

// UTM holds campaign attribution. Each part is optional.
type UTM struct {
	Source   *string `json:"source,omitempty"`
	Medium   *string `json:"medium,omitempty"`
	Campaign *string `json:"campaign,omitempty"`
}

// Event is one stored, pseudonymized visit event.
// Events are append-only: created by ingestion, never mutated afterwards.
type Event struct {
	// ID is assigned by the server at ingestion time.
	ID     string `json:"id"`
	SiteID string `json:"site_id"`
	Kind   Kind   `json:"kind"`

	// SessionID and VisitorID are one-way pseudonyms, never raw client values.
	SessionID string `json:"session_id"`
	VisitorID string `json:"visitor_id"`

	Path           string `json:"path"`
	ReferrerDomain string `json:"referrer_domain,omitempty"`
	UTM            UTM    `json:"utm"`

	Device  string `json:"device,omitempty"`
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`

	// Custom event attributes (KindEvent).
	Action   string `json:"action,omitempty"`
	Category string `json:"category,omitempty"`

	// Numeric properties.
	Duration    float64 `json:"duration"`     // seconds
	ScrollDepth float64 `json:"scroll_depth"` // percent
	Value       float64 `json:"value"`

	// IngestedAt is the server clock at acceptance; all analytics use it.
	IngestedAt time.Time `json:"ingested_at"`

	// ClientTimestamp is what the client reported. Only used for plausibility checks.
	ClientTimestamp time.Time `json:"client_timestamp"`

	// IngestSeq is assigned by the store (BIGSERIAL). Not part of the public API.
	IngestSeq int64 `json:"-"`
}

// IsPageview is a small convenience used throughout the read side.
func (e *Event) IsPageview() bool {
	return e.Kind == KindPageview
}
