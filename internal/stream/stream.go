package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/metrics"
)

// Publisher receives events after they are durably stored.
// Delivery is best effort: a failing publisher never fails ingestion.
type Publisher interface {
	Publish(ctx context.Context, events []*v1.Event) error
}

// Sink is a named Publisher with resources to release.
type Sink interface {
	Publisher
	Name() string
	Close() error
}

const defaultPublishTimeout = 2 * time.Second

// Fanout delivers each batch to every sink. Each sink gets its own timeout
// and a failure in one does not stop delivery to the others.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewFanout creates a Fanout over the given sinks. m may be nil.
func NewFanout(m *metrics.Metrics, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, timeout: defaultPublishTimeout, metrics: m}
}

// Add appends a sink. Not safe to call concurrently with Publish.
func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

// Publish sends events to every sink and joins their errors.
func (f *Fanout) Publish(ctx context.Context, events []*v1.Event) error {
	if len(events) == 0 {
		return nil
	}

	var errs []error
	for _, s := range f.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, f.timeout)
		err := s.Publish(sinkCtx, events)
		cancel()
		if err != nil {
			slog.Warn("[Stream] Publish failed",
				"sink", s.Name(),
				"events", len(events),
				"error", err)
			if f.metrics != nil {
				f.metrics.StreamFailures.WithLabelValues(s.Name()).Inc()
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every sink and returns the first error.
func (f *Fanout) Close() error {
	var firstErr error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", s.Name(), err)
		}
	}
	return firstErr
}

// Names lists the configured sinks in order.
func (f *Fanout) Names() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}
