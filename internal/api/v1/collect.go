package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawEvent is the client wire shape of one event before validation.
// Loosely typed fields are kept as interface{} so that the validator can
// report a precise field-level error for wrong types instead of a generic
// decode failure.
type RawEvent struct {
	SiteID    interface{} `json:"siteId"`
	Type      interface{} `json:"type"`
	URL       string      `json:"url"`
	Path      string      `json:"path"`
	Referrer  string      `json:"referrer"`
	Timestamp interface{} `json:"timestamp"` // milliseconds since epoch
	SessionID interface{} `json:"sessionId"`

	UTMSource   *string `json:"utm_source,omitempty"`
	UTMMedium   *string `json:"utm_medium,omitempty"`
	UTMCampaign *string `json:"utm_campaign,omitempty"`

	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`

	Action   string `json:"action,omitempty"`
	Category string `json:"category,omitempty"`

	Duration    float64 `json:"duration,omitempty"`
	ScrollDepth float64 `json:"scrollDepth,omitempty"`
	Value       float64 `json:"value,omitempty"`
}

// batchEnvelope is the `{batch: true, events: [...]}` form.
type batchEnvelope struct {
	Batch  bool              `json:"batch"`
	Events []json.RawMessage `json:"events"`
}

// DecodeCollectPayload normalizes a collection body into a list of raw events.
// A body is either a single event object or a batch envelope.
func DecodeCollectPayload(body []byte) ([]RawEvent, bool, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false, fmt.Errorf("body must be a JSON object")
	}

	var env batchEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, false, fmt.Errorf("decode body: %w", err)
	}

	if !env.Batch {
		var single RawEvent
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, false, fmt.Errorf("decode event: %w", err)
		}
		return []RawEvent{single}, false, nil
	}

	events := make([]RawEvent, 0, len(env.Events))
	for i, raw := range env.Events {
		var evt RawEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, true, fmt.Errorf("decode events[%d]: %w", i, err)
		}
		events = append(events, evt)
	}
	return events, true, nil
}

// EffectivePath returns Path, or URL when Path is empty. Callers normalize it.
func (r *RawEvent) EffectivePath() string {
	if r.Path != "" {
		return r.Path
	}
	return r.URL
}
