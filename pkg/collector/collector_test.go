package collector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// collectServer records every request body it receives.
type collectServer struct {
	*httptest.Server

	mu       sync.Mutex
	bodies   []map[string]json.RawMessage
	received chan struct{}
	status   int
	delay    time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func newCollectServer(t *testing.T, status int, delay time.Duration) *collectServer {
	t.Helper()
	cs := &collectServer{received: make(chan struct{}, 100), status: status, delay: delay}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := cs.active.Add(1)
		defer cs.active.Add(-1)
		for {
			prev := cs.maxActive.Load()
			if n <= prev || cs.maxActive.CompareAndSwap(prev, n) {
				break
			}
		}
		if cs.delay > 0 {
			time.Sleep(cs.delay)
		}

		raw, _ := io.ReadAll(r.Body)
		var body map[string]json.RawMessage
		_ = json.Unmarshal(raw, &body)

		cs.mu.Lock()
		cs.bodies = append(cs.bodies, body)
		cs.mu.Unlock()

		w.WriteHeader(cs.status)
		cs.received <- struct{}{}
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *collectServer) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-cs.received:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for request %d", i+1)
		}
	}
}

func (cs *collectServer) requests() []map[string]json.RawMessage {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]map[string]json.RawMessage(nil), cs.bodies...)
}

func eventsIn(t *testing.T, body map[string]json.RawMessage) []Event {
	t.Helper()
	var events []Event
	require.NoError(t, json.Unmarshal(body["events"], &events))
	return events
}

func newClient(t *testing.T, endpoint string, interval time.Duration) *Client {
	t.Helper()
	c, err := New(Options{Endpoint: endpoint, SiteID: "site-a", FlushInterval: interval})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresEndpointAndSite(t *testing.T) {
	_, err := New(Options{SiteID: "site-a"})
	require.Error(t, err)
	_, err = New(Options{Endpoint: "http://localhost/api/collect"})
	require.Error(t, err)
}

func TestTrack_FullBatchSendsImmediately(t *testing.T) {
	srv := newCollectServer(t, http.StatusOK, 0)
	c := newClient(t, srv.URL, time.Hour)

	for i := 0; i < 10; i++ {
		c.Pageview("https://example.com/", "", "s1")
	}
	srv.wait(t, 1)

	reqs := srv.requests()
	require.Len(t, reqs, 1)
	require.JSONEq(t, "true", string(reqs[0]["batch"]))

	events := eventsIn(t, reqs[0])
	require.Len(t, events, 10)
	for _, e := range events {
		require.Equal(t, "site-a", e.SiteID)
		require.Equal(t, "pageview", e.Type)
		require.NotZero(t, e.Timestamp)
	}

	require.NoError(t, c.Close(context.Background()))
	require.Equal(t, Stats{Sent: 10}, c.Stats())
}

func TestTrack_TimerFlushesPartialBatch(t *testing.T) {
	srv := newCollectServer(t, http.StatusOK, 0)
	c := newClient(t, srv.URL, 20*time.Millisecond)

	c.Pageview("https://example.com/a", "", "s1")
	c.Pageview("https://example.com/b", "", "s1")
	c.Track(Event{Type: "event", URL: "https://example.com/b", Action: "signup", Category: "cta"})
	srv.wait(t, 1)

	reqs := srv.requests()
	require.Len(t, reqs, 1)
	events := eventsIn(t, reqs[0])
	require.Len(t, events, 3)
	require.Equal(t, "signup", events[2].Action)

	require.NoError(t, c.Close(context.Background()))
	require.Len(t, srv.requests(), 1)
}

func TestSingleEventIsSentUnwrapped(t *testing.T) {
	srv := newCollectServer(t, http.StatusOK, 0)
	c := newClient(t, srv.URL, time.Hour)

	c.Track(Event{Type: "pageview", URL: "https://example.com/", Timestamp: 1767225600000})
	require.NoError(t, c.Flush(context.Background()))

	reqs := srv.requests()
	require.Len(t, reqs, 1)
	require.NotContains(t, reqs[0], "batch")
	require.JSONEq(t, `"site-a"`, string(reqs[0]["siteId"]))
	require.JSONEq(t, "1767225600000", string(reqs[0]["timestamp"]))
}

func TestClose_FlushesRemainingAndRejectsLateEvents(t *testing.T) {
	srv := newCollectServer(t, http.StatusOK, 0)
	c := newClient(t, srv.URL, time.Hour)

	c.Pageview("https://example.com/a", "", "s1")
	c.Pageview("https://example.com/b", "", "s1")
	require.NoError(t, c.Close(context.Background()))
	require.Len(t, srv.requests(), 1)

	c.Pageview("https://example.com/c", "", "s1")
	require.ErrorIs(t, c.Flush(context.Background()), ErrClosed)
	require.NoError(t, c.Close(context.Background()))

	require.Len(t, srv.requests(), 1)
	require.Equal(t, Stats{Sent: 2, Dropped: 1}, c.Stats())
}

func TestFailedSendIsDroppedWithoutRetry(t *testing.T) {
	srv := newCollectServer(t, http.StatusServiceUnavailable, 0)
	c := newClient(t, srv.URL, time.Hour)

	for i := 0; i < 3; i++ {
		c.Pageview("https://example.com/", "", "s1")
	}
	require.NoError(t, c.Flush(context.Background()))
	require.NoError(t, c.Close(context.Background()))

	require.Len(t, srv.requests(), 1)
	require.Equal(t, Stats{Dropped: 3}, c.Stats())
}

func TestUnreachableEndpointDropsBatch(t *testing.T) {
	srv := newCollectServer(t, http.StatusOK, 0)
	url := srv.URL
	srv.Close()

	c := newClient(t, url, time.Hour)
	c.Pageview("https://example.com/", "", "s1")
	require.NoError(t, c.Flush(context.Background()))
	require.Equal(t, Stats{Dropped: 1}, c.Stats())
}

func TestOneSendInFlight(t *testing.T) {
	srv := newCollectServer(t, http.StatusOK, 20*time.Millisecond)
	c := newClient(t, srv.URL, time.Hour)

	for i := 0; i < 30; i++ {
		c.Pageview("https://example.com/", "", "s1")
	}
	require.NoError(t, c.Close(context.Background()))

	require.Len(t, srv.requests(), 3)
	require.Equal(t, int32(1), srv.maxActive.Load())
	require.Equal(t, Stats{Sent: 30}, c.Stats())
}
