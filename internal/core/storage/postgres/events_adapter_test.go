package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/core/storage"
	"github.com/stretchr/testify/require"
)

func TestAdapter_SaveEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	source := "newsletter"

	newBatch := func() []*v1.Event {
		return []*v1.Event{
			{ID: "evt-1", SiteID: "site-1", Kind: v1.KindPageview, SessionID: "s1", VisitorID: "v1", Path: "/", UTM: v1.UTM{Source: &source}, IngestedAt: now, ClientTimestamp: now},
			{ID: "evt-2", SiteID: "site-1", Kind: v1.KindEvent, SessionID: "s1", VisitorID: "v1", Path: "/", Action: "signup", IngestedAt: now, ClientTimestamp: now},
		}
	}

	tests := []struct {
		name       string
		mockResult func(mock sqlmock.Sqlmock)
		assertions func(t *testing.T, events []*v1.Event, err error)
	}{
		{
			name: "success sets ingest seq after commit",
			mockResult: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				prep := mock.ExpectPrepare(regexp.QuoteMeta(querySaveEvent))
				prep.ExpectQuery().
					WithArgs(saveArgsMatcher("evt-1", "site-1", "pageview", "newsletter")...).
					WillReturnRows(sqlmock.NewRows([]string{"ingest_seq"}).AddRow(int64(41)))
				prep.ExpectQuery().
					WithArgs(saveArgsMatcher("evt-2", "site-1", "event", nil)...).
					WillReturnRows(sqlmock.NewRows([]string{"ingest_seq"}).AddRow(int64(42)))
				mock.ExpectCommit()
			},
			assertions: func(t *testing.T, events []*v1.Event, err error) {
				require.NoError(t, err)
				require.Equal(t, int64(41), events[0].IngestSeq)
				require.Equal(t, int64(42), events[1].IngestSeq)
			},
		},
		{
			name: "second row failure rolls back whole batch",
			mockResult: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				prep := mock.ExpectPrepare(regexp.QuoteMeta(querySaveEvent))
				prep.ExpectQuery().
					WithArgs(saveArgsMatcher("evt-1", "site-1", "pageview", "newsletter")...).
					WillReturnRows(sqlmock.NewRows([]string{"ingest_seq"}).AddRow(int64(41)))
				prep.ExpectQuery().
					WithArgs(saveArgsMatcher("evt-2", "site-1", "event", nil)...).
					WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			assertions: func(t *testing.T, events []*v1.Event, err error) {
				require.Error(t, err)
				require.ErrorContains(t, err, "insert evt-2")
				require.Equal(t, int64(0), events[0].IngestSeq, "no sequence is published for a rolled back batch")
			},
		},
		{
			name: "begin failure",
			mockResult: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
			},
			assertions: func(t *testing.T, events []*v1.Event, err error) {
				require.ErrorContains(t, err, "begin tx")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adapter, mock, db := newMockAdapter(t)
			defer db.Close()

			tc.mockResult(mock)

			events := newBatch()
			err := adapter.SaveEvents(context.Background(), events)
			tc.assertions(t, events, err)

			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAdapter_SaveEventsEmptyIsNoop(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	require.NoError(t, adapter.SaveEvents(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_QueryEventsRange(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(queryEventsInRange+orderEvents)).
		WithArgs("site-1", from, to).
		WillReturnRows(sqlmock.NewRows(eventRowColumns()).
			AddRow(eventRowValues("evt-1", "pageview", "/pricing", "google", from.Add(time.Hour), 7)...).
			AddRow(eventRowValues("evt-2", "event", "/pricing", nil, from.Add(2*time.Hour), 8)...),
		).RowsWillBeClosed()

	events, err := adapter.QueryEvents(context.Background(), storage.EventQuery{SiteID: "site-1", From: from, To: to})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "evt-1", events[0].ID)
	require.Equal(t, v1.KindPageview, events[0].Kind)
	require.NotNil(t, events[0].UTM.Source)
	require.Equal(t, "google", *events[0].UTM.Source)
	require.Nil(t, events[1].UTM.Source)
	require.Equal(t, int64(8), events[1].IngestSeq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_QueryEventsPushdown(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	q := storage.EventQuery{
		SiteID: "site-1",
		From:   from,
		To:     to,
		Equals: map[string]string{
			storage.ColumnPath:    "/pricing",
			storage.ColumnCountry: "DE",
			"unknown; DROP TABLE": "x",
		},
	}

	query, args := buildEventQuery(q)
	require.Contains(t, query, "AND country = $4")
	require.Contains(t, query, "AND path = $5")
	require.NotContains(t, query, "DROP")
	require.Len(t, args, 5)

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("site-1", from, to, "DE", "/pricing").
		WillReturnRows(sqlmock.NewRows(eventRowColumns()))

	events, err := adapter.QueryEvents(context.Background(), q)
	require.NoError(t, err)
	require.Empty(t, events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_QueryEventsRejectsUnknownKind(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(queryEventsInRange+orderEvents)).
		WithArgs("site-1", from, from.Add(time.Hour)).
		WillReturnRows(sqlmock.NewRows(eventRowColumns()).
			AddRow(eventRowValues("evt-1", "purchase", "/", nil, from, 1)...))

	_, err := adapter.QueryEvents(context.Background(), storage.EventQuery{SiteID: "site-1", From: from, To: from.Add(time.Hour)})
	require.ErrorContains(t, err, "unknown kind")
}

func TestAdapter_CloseReturnsDBCloseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	dbCloseErr := errors.New("db close failed")

	mock.ExpectPrepare(regexp.QuoteMeta(queryEventsInRange + orderEvents)).WillBeClosed()
	stmtRange, err := db.Prepare(queryEventsInRange + orderEvents)
	require.NoError(t, err)

	mock.ExpectClose().WillReturnError(dbCloseErr)

	adapter := &Adapter{
		db:              db,
		stmtEventsRange: stmtRange,
	}

	err = adapter.Close()
	require.Error(t, err)
	require.ErrorContains(t, err, "failed to close database")
	require.ErrorIs(t, err, dbCloseErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	adapter := &Adapter{
		db:              db,
		stmtEventsRange: mustPrepareStmt(t, db, mock, queryEventsInRange+orderEvents),
	}

	return adapter, mock, db
}

func mustPrepareStmt(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock, query string) *sql.Stmt {
	t.Helper()

	mock.ExpectPrepare(regexp.QuoteMeta(query))
	stmt, err := db.Prepare(query)
	require.NoError(t, err)

	return stmt
}

// saveArgsMatcher pins the identifying columns and the UTM source; the rest match anything.
func saveArgsMatcher(id, siteID, kind string, utmSource interface{}) []driver.Value {
	args := make([]driver.Value, 22)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[0] = id
	args[1] = siteID
	args[2] = kind
	args[7] = utmSource
	return args
}

func eventRowColumns() []string {
	return []string{
		"id", "site_id", "kind", "session_id", "visitor_id",
		"path", "referrer_domain", "utm_source", "utm_medium", "utm_campaign",
		"device", "browser", "os", "country", "region",
		"action", "category", "duration", "scroll_depth", "value",
		"ingested_at", "client_timestamp", "ingest_seq",
	}
}

func eventRowValues(id, kind, path string, utmSource interface{}, at time.Time, seq int64) []driver.Value {
	return []driver.Value{
		id, "site-1", kind, "sess-1", "vis-1",
		path, "google.com", utmSource, nil, nil,
		"desktop", "Firefox", "Linux", "DE", "BE",
		"", "", 12.5, 80.0, 0.0,
		at, at, seq,
	}
}
