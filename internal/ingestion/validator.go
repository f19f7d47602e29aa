package ingestion

import (
	"fmt"
	"math"
	"strings"
	"time"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
)

// validEvent is a raw event that passed validation, with its loosely typed
// fields resolved.
type validEvent struct {
	raw             *v1.RawEvent
	siteID          string
	kind            v1.Kind
	path            string
	sessionToken    string
	clientTimestamp time.Time
}

// validator checks collection payloads. A batch is all-or-nothing: the first
// invalid event fails the whole request.
type validator struct {
	maxBatchSize int
	clockSkew    time.Duration
}

func (v *validator) validate(raws []v1.RawEvent, batch bool, now time.Time) ([]validEvent, error) {
	if batch && len(raws) == 0 {
		return nil, httperr.NewValidationError("events", "batch must contain at least one event")
	}
	if len(raws) > v.maxBatchSize {
		return nil, httperr.NewValidationError("events", "batch exceeds maximum of %d events", v.maxBatchSize)
	}

	out := make([]validEvent, 0, len(raws))
	for i := range raws {
		prefix := ""
		if batch {
			prefix = fmt.Sprintf("events[%d].", i)
		}
		ev, err := v.validateOne(&raws[i], prefix, now)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (v *validator) validateOne(raw *v1.RawEvent, prefix string, now time.Time) (validEvent, error) {
	ev := validEvent{raw: raw}

	siteID, ok := raw.SiteID.(string)
	if raw.SiteID == nil {
		return ev, httperr.NewValidationError(prefix+"siteId", "is required")
	}
	if !ok || strings.TrimSpace(siteID) == "" {
		return ev, httperr.NewValidationError(prefix+"siteId", "must be a non-empty string")
	}
	ev.siteID = siteID

	kindStr, _ := raw.Type.(string)
	kind, ok := v1.ParseKind(kindStr)
	if !ok {
		return ev, httperr.NewValidationError(prefix+"type", "must be one of pageview, event, engagement, heartbeat")
	}
	ev.kind = kind

	ev.path = raw.EffectivePath()
	if strings.TrimSpace(ev.path) == "" {
		return ev, httperr.NewValidationError(prefix+"url", "url or path is required")
	}

	ts, ok := raw.Timestamp.(float64)
	if !ok || math.IsNaN(ts) || math.IsInf(ts, 0) {
		return ev, httperr.NewValidationError(prefix+"timestamp", "must be a number of milliseconds since epoch")
	}
	clientTime := time.UnixMilli(int64(ts)).UTC()
	if clientTime.Before(now.Add(-v.clockSkew)) || clientTime.After(now.Add(v.clockSkew)) {
		return ev, httperr.NewValidationError(prefix+"timestamp", "must be within %s of server time", v.clockSkew)
	}
	ev.clientTimestamp = clientTime

	switch token := raw.SessionID.(type) {
	case nil:
		if kind.SessionBearing() {
			return ev, httperr.NewValidationError(prefix+"sessionId", "is required for %s events", kind)
		}
	case string:
		if strings.TrimSpace(token) == "" && kind.SessionBearing() {
			return ev, httperr.NewValidationError(prefix+"sessionId", "is required for %s events", kind)
		}
		ev.sessionToken = token
	default:
		return ev, httperr.NewValidationError(prefix+"sessionId", "must be a string")
	}

	return ev, nil
}
