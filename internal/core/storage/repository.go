package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// Columns that support equality pushdown in EventQuery.Equals.
const (
	ColumnPath           = "path"
	ColumnCountry        = "country"
	ColumnDevice         = "device"
	ColumnBrowser        = "browser"
	ColumnOS             = "os"
	ColumnReferrerDomain = "referrer_domain"
	ColumnKind           = "kind"
)

// PushdownColumns is the set of columns an EventStore may filter on natively.
var PushdownColumns = map[string]struct{}{
	ColumnPath:           {},
	ColumnCountry:        {},
	ColumnDevice:         {},
	ColumnBrowser:        {},
	ColumnOS:             {},
	ColumnReferrerDomain: {},
	ColumnKind:           {},
}

// EventQuery scopes an event read.
// The range is half-open: From <= ingested_at < To.
type EventQuery struct {
	SiteID string
	From   time.Time
	To     time.Time

	// Equals holds optional column equality predicates. Keys must be in PushdownColumns.
	// Stores may ignore predicates they cannot push down; callers re-apply filters in process.
	Equals map[string]string
}

// EventStore persists and reads events.
type EventStore interface {
	// SaveEvents writes all events atomically. Either every row commits or none does.
	// IngestSeq is populated on success.
	SaveEvents(ctx context.Context, events []*v1.Event) error

	// QueryEvents returns matching events ordered by ingested_at, then ingest_seq.
	QueryEvents(ctx context.Context, q EventQuery) ([]*v1.Event, error)
}

// AlertStore reads alert definitions and records trigger state.
type AlertStore interface {
	ListEnabledAlerts(ctx context.Context) ([]*v1.Alert, error)

	// RecordTrigger appends rec to the alert's history and advances its trigger
	// state, but only if the alert is enabled and its last trigger is at or before
	// notBefore. It returns false without writing when that condition fails.
	// The check and the write are one atomic step.
	RecordTrigger(ctx context.Context, rec *v1.TriggerRecord, notBefore time.Time) (bool, error)

	// ListTriggers returns the most recent trigger records for an alert, newest first.
	ListTriggers(ctx context.Context, alertID string, limit int) ([]*v1.TriggerRecord, error)
}

// GoalStore resolves goal references. Returns ErrNotFound for unknown goals.
type GoalStore interface {
	GetGoal(ctx context.Context, siteID, goalID string) (*v1.Goal, error)
}

// ColumnValue returns the value of a pushdown column for an event.
func ColumnValue(e *v1.Event, column string) (string, bool) {
	switch column {
	case ColumnPath:
		return e.Path, true
	case ColumnCountry:
		return e.Country, true
	case ColumnDevice:
		return e.Device, true
	case ColumnBrowser:
		return e.Browser, true
	case ColumnOS:
		return e.OS, true
	case ColumnReferrerDomain:
		return e.ReferrerDomain, true
	case ColumnKind:
		return string(e.Kind), true
	default:
		return "", false
	}
}
