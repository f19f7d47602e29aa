package postgres

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/core/storage"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEventRow scans a database row into an Event struct.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanEventRow(row scanner) (*v1.Event, error) {
	var evt v1.Event
	var kind string
	var utmSource, utmMedium, utmCampaign sql.NullString

	err := row.Scan(
		&evt.ID,
		&evt.SiteID,
		&kind,
		&evt.SessionID,
		&evt.VisitorID,
		&evt.Path,
		&evt.ReferrerDomain,
		&utmSource,
		&utmMedium,
		&utmCampaign,
		&evt.Device,
		&evt.Browser,
		&evt.OS,
		&evt.Country,
		&evt.Region,
		&evt.Action,
		&evt.Category,
		&evt.Duration,
		&evt.ScrollDepth,
		&evt.Value,
		&evt.IngestedAt,
		&evt.ClientTimestamp,
		&evt.IngestSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event row: %w", err)
	}

	k, ok := v1.ParseKind(kind)
	if !ok {
		return nil, fmt.Errorf("event %s has unknown kind %q", evt.ID, kind)
	}
	evt.Kind = k
	evt.UTM = v1.UTM{
		Source:   fromNullString(utmSource),
		Medium:   fromNullString(utmMedium),
		Campaign: fromNullString(utmCampaign),
	}
	return &evt, nil
}

// saveEventArgs flattens an event into querySaveEvent's positional arguments.
func saveEventArgs(e *v1.Event) []interface{} {
	return []interface{}{
		e.ID,
		e.SiteID,
		string(e.Kind),
		e.SessionID,
		e.VisitorID,
		e.Path,
		e.ReferrerDomain,
		toNullString(e.UTM.Source),
		toNullString(e.UTM.Medium),
		toNullString(e.UTM.Campaign),
		e.Device,
		e.Browser,
		e.OS,
		e.Country,
		e.Region,
		e.Action,
		e.Category,
		e.Duration,
		e.ScrollDepth,
		e.Value,
		e.IngestedAt,
		e.ClientTimestamp,
	}
}

// buildEventQuery appends equality pushdown predicates to the range query.
// Column names come from storage.PushdownColumns only; values are always bound.
// Predicates are emitted in column-name order so the SQL text is deterministic.
func buildEventQuery(q storage.EventQuery) (string, []interface{}) {
	args := []interface{}{q.SiteID, q.From, q.To}
	if len(q.Equals) == 0 {
		return queryEventsInRange + orderEvents, args
	}

	cols := make([]string, 0, len(q.Equals))
	for col := range q.Equals {
		if _, ok := storage.PushdownColumns[col]; ok {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)

	var b strings.Builder
	b.WriteString(queryEventsInRange)
	for _, col := range cols {
		args = append(args, q.Equals[col])
		fmt.Fprintf(&b, "\n\t\t  AND %s = $%d", col, len(args))
	}
	b.WriteString(orderEvents)
	return b.String(), args
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
