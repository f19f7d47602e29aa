package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/metrics"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
)

// Notification is the webhook payload for one trigger.
type Notification struct {
	AlertID     string       `json:"alertId"`
	AlertName   string       `json:"alertName"`
	SiteID      string       `json:"siteId"`
	Type        v1.AlertType `json:"type"`
	Metric      string       `json:"metric"`
	Value       float64      `json:"value"`
	Baseline    float64      `json:"baseline"`
	Threshold   float64      `json:"threshold"`
	Message     string       `json:"message"`
	TriggeredAt time.Time    `json:"triggeredAt"`
}

// DispatcherOptions configures notification delivery. Zero values fall back to defaults.
type DispatcherOptions struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	Metrics        *metrics.Metrics
}

// Dispatcher delivers trigger notifications. Delivery is best effort:
// each channel is tried independently with bounded retries.
type Dispatcher struct {
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	metrics        *metrics.Metrics
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultWebhookTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	return &Dispatcher{
		client:         &http.Client{Timeout: opts.Timeout},
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		metrics:        opts.Metrics,
	}
}

// Dispatch sends rec to every channel of a. A failing channel does not stop
// the others; all failures are returned joined.
func (d *Dispatcher) Dispatch(ctx context.Context, a *v1.Alert, rec *v1.TriggerRecord) error {
	n := Notification{
		AlertID:     a.ID,
		AlertName:   a.Name,
		SiteID:      a.SiteID,
		Type:        a.Type,
		Metric:      a.Metric,
		Value:       rec.Value,
		Baseline:    rec.Baseline,
		Threshold:   rec.Threshold,
		Message:     rec.Message,
		TriggeredAt: rec.TriggeredAt,
	}

	var errs []error
	for _, ch := range a.Channels {
		var err error
		switch ch.Type {
		case v1.ChannelWebhook:
			err = d.webhook(ctx, ch.Target, n)
		case v1.ChannelLog:
			slog.Warn("[Alert] Triggered",
				"alert_id", n.AlertID,
				"site_id", n.SiteID,
				"metric", n.Metric,
				"value", n.Value,
				"message", n.Message,
			)
		default:
			err = fmt.Errorf("unknown channel type %q", ch.Type)
		}
		if err != nil {
			slog.Error("[Alert] Notification failed",
				"alert_id", a.ID,
				"channel", ch.Type,
				"error", err,
			)
			if d.metrics != nil {
				d.metrics.NotificationFailures.WithLabelValues(string(ch.Type)).Inc()
			}
			errs = append(errs, fmt.Errorf("%s channel: %w", ch.Type, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) webhook(ctx context.Context, url string, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.initialBackoff
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(d.maxRetries)), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			slog.Debug("[Alert] Webhook attempt failed", "attempt", attempt, "error", err)
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			slog.Debug("[Alert] Webhook attempt failed", "attempt", attempt, "status", resp.StatusCode)
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
	}, policy)
}
