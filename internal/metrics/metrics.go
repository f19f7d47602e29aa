package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pulse"

// Event outcomes recorded by EventsCollected.
const (
	OutcomeStored   = "stored"
	OutcomeBot      = "bot"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	EventsCollected      *prometheus.CounterVec
	CollectDuration      prometheus.Histogram
	RateLimited          prometheus.Counter
	QueryDuration        *prometheus.HistogramVec
	AlertEvaluations     *prometheus.CounterVec
	AlertTriggers        *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	StreamFailures       *prometheus.CounterVec
	ActiveSessions       prometheus.Gauge
}

// New registers all collectors on a fresh registry.
// Pass withRuntime=true in the server to also export Go runtime and process metrics.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EventsCollected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_total",
			Help:      "Collected events by outcome.",
		}, []string{"outcome"}),
		CollectDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "collect_duration_seconds",
			Help:      "Latency of collect requests that reached storage.",
			Buckets:   prometheus.DefBuckets,
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "rate_limited_total",
			Help:      "Collect requests rejected by the per-site rate limiter.",
		}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Latency of read-side operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		AlertEvaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "evaluations_total",
			Help:      "Alert evaluations by result.",
		}, []string{"result"}),
		AlertTriggers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "triggers_total",
			Help:      "Recorded alert triggers by alert type.",
		}, []string{"type"}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "notification_failures_total",
			Help:      "Notifications that exhausted their retries, by channel type.",
		}, []string{"channel"}),
		StreamFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "publish_failures_total",
			Help:      "Failed event stream publishes by sink.",
		}, []string{"sink"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "active_sessions",
			Help:      "Sessions held by the realtime tracker after the last janitor pass.",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
