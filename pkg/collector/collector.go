// Package collector is a batching client for the collection endpoint.
//
// Delivery is at most once: events are queued in memory and sent in the
// background, and a failed send is dropped, never retried.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultMaxBatch      = 10
	defaultFlushInterval = 5 * time.Second
	defaultTimeout       = 10 * time.Second
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("collector: closed")

// Event is one client event in wire form.
type Event struct {
	SiteID    string `json:"siteId"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	Referrer  string `json:"referrer,omitempty"`
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
	SessionID string `json:"sessionId,omitempty"`

	UTMSource   *string `json:"utm_source,omitempty"`
	UTMMedium   *string `json:"utm_medium,omitempty"`
	UTMCampaign *string `json:"utm_campaign,omitempty"`

	Action   string `json:"action,omitempty"`
	Category string `json:"category,omitempty"`

	Duration    float64 `json:"duration,omitempty"`
	ScrollDepth float64 `json:"scrollDepth,omitempty"`
	Value       float64 `json:"value,omitempty"`
}

// Options configures a Client. Endpoint and SiteID are required.
type Options struct {
	Endpoint      string
	SiteID        string
	UserAgent     string
	MaxBatch      int
	FlushInterval time.Duration
	HTTPClient    *http.Client
}

// Stats counts delivery outcomes since the client was created.
type Stats struct {
	Sent    int64
	Dropped int64
}

// Client queues events and sends them when MaxBatch events are queued,
// FlushInterval after the first queued event, or on Close.
// At most one send is in flight at a time.
type Client struct {
	opts Options

	mu     sync.Mutex
	queue  []Event
	timer  *time.Timer
	closed bool

	sendMu   sync.Mutex
	inflight sync.WaitGroup

	sent    atomic.Int64
	dropped atomic.Int64

	nowFn func() time.Time
}

func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("collector: endpoint is required")
	}
	if opts.SiteID == "" {
		return nil, fmt.Errorf("collector: site id is required")
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = defaultMaxBatch
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{opts: opts, nowFn: time.Now}, nil
}

// Track queues an event. SiteID and Timestamp are filled in when empty.
// Events tracked after Close are dropped.
func (c *Client) Track(e Event) {
	if e.SiteID == "" {
		e.SiteID = c.opts.SiteID
	}
	if e.Timestamp == 0 {
		e.Timestamp = c.nowFn().UnixMilli()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.dropped.Add(1)
		return
	}
	c.queue = append(c.queue, e)
	if len(c.queue) >= c.opts.MaxBatch {
		batch := c.takeLocked()
		c.mu.Unlock()
		c.sendAsync(batch)
		return
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(c.opts.FlushInterval, c.flushFromTimer)
	}
	c.mu.Unlock()
}

// Pageview queues a pageview for url.
func (c *Client) Pageview(url, referrer, sessionID string) {
	c.Track(Event{Type: "pageview", URL: url, Referrer: referrer, SessionID: sessionID})
}

// Flush sends everything queued and waits for the send to finish.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	batch := c.takeLocked()
	c.mu.Unlock()

	c.send(ctx, batch)
	return nil
}

// Close sends what is left and waits for in-flight sends.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	batch := c.takeLocked()
	c.mu.Unlock()

	c.send(ctx, batch)

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns delivery counters.
func (c *Client) Stats() Stats {
	return Stats{Sent: c.sent.Load(), Dropped: c.dropped.Load()}
}

// takeLocked empties the queue and cancels the pending timer. c.mu must be held.
func (c *Client) takeLocked() []Event {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	batch := c.queue
	c.queue = nil
	return batch
}

func (c *Client) flushFromTimer() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	batch := c.takeLocked()
	c.mu.Unlock()
	c.sendAsync(batch)
}

func (c *Client) sendAsync(batch []Event) {
	if len(batch) == 0 {
		return
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.send(context.Background(), batch)
	}()
}

// send posts one batch. Sends are serialized by sendMu.
func (c *Client) send(ctx context.Context, batch []Event) {
	if len(batch) == 0 {
		return
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.post(ctx, batch); err != nil {
		c.dropped.Add(int64(len(batch)))
		slog.Debug("[Collector] Dropped batch", "events", len(batch), "error", err)
		return
	}
	c.sent.Add(int64(len(batch)))
}

func (c *Client) post(ctx context.Context, batch []Event) error {
	var payload interface{} = batch[0]
	if len(batch) > 1 {
		payload = struct {
			Batch  bool    `json:"batch"`
			Events []Event `json:"events"`
		}{Batch: true, Events: batch}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("collect returned %d", resp.StatusCode)
	}
	return nil
}
