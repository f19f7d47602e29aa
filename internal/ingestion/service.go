package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/core/botfilter"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
	"github.com/pulse-analytics/pulse/internal/core/identity"
	"github.com/pulse-analytics/pulse/internal/core/storage"
	"github.com/pulse-analytics/pulse/internal/metrics"
	"github.com/pulse-analytics/pulse/internal/stream"
)

// ErrInvalidBody marks a body that is not a JSON event or batch envelope.
var ErrInvalidBody = errors.New("invalid request body")

// Options tunes the pipeline. Zero values fall back to defaults.
type Options struct {
	MaxBatchSize  int
	ClockSkew     time.Duration
	MaxBodySizeMB int

	// RateLimitPerSecond is per site. 0 disables rate limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Publisher receives stored events. Optional.
	Publisher stream.Publisher
	Metrics   *metrics.Metrics
}

// Request is one collection call.
type Request struct {
	Body       []byte
	UserAgent  string
	RemoteAddr string
}

// Result reports how many events were accepted. Bot traffic is counted as accepted.
type Result struct {
	Accepted int
}

type Service struct {
	store     storage.EventStore
	hasher    *identity.Hasher
	bots      *botfilter.Filter
	validator validator
	limiter   *siteLimiter
	publisher stream.Publisher
	metrics   *metrics.Metrics

	maxBodySizeBytes int
	nowFn            func() time.Time
}

func NewService(repo storage.EventStore, hasher *identity.Hasher, bots *botfilter.Filter, opts Options) *Service {
	if repo == nil {
		panic("ingestion: store must not be nil")
	}
	if hasher == nil {
		panic("ingestion: hasher must not be nil")
	}
	if bots == nil {
		panic("ingestion: bot filter must not be nil")
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 100
	}
	if opts.ClockSkew <= 0 {
		opts.ClockSkew = time.Hour
	}
	if opts.MaxBodySizeMB <= 0 {
		opts.MaxBodySizeMB = 1
	}

	s := &Service{
		store:            repo,
		hasher:           hasher,
		bots:             bots,
		validator:        validator{maxBatchSize: opts.MaxBatchSize, clockSkew: opts.ClockSkew},
		publisher:        opts.Publisher,
		metrics:          opts.Metrics,
		maxBodySizeBytes: opts.MaxBodySizeMB * 1024 * 1024,
		nowFn:            func() time.Time { return time.Now().UTC() },
	}
	if opts.RateLimitPerSecond > 0 {
		s.limiter = newSiteLimiter(opts.RateLimitPerSecond, opts.RateLimitBurst)
	}
	return s
}

// RegisterRoutes registers the collection endpoints.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/collect", s.CollectHandler)
	r.POST("/v1/events", s.CollectHandler)
}

// Collect runs one request through parse, validation, bot filtering, hashing,
// a single batch write and the output stream.
func (s *Service) Collect(ctx context.Context, req Request) (Result, error) {
	now := s.nowFn()

	raws, batch, err := v1.DecodeCollectPayload(req.Body)
	if err != nil {
		s.countOutcome(metrics.OutcomeRejected, 1)
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}

	valid, err := s.validator.validate(raws, batch, now)
	if err != nil {
		s.countOutcome(metrics.OutcomeRejected, len(raws))
		slog.Warn("[Ingestion] Validation failed", "events", len(raws), "error", err)
		return Result{}, err
	}

	if s.limiter != nil {
		counts := make(map[string]int, 1)
		for _, ev := range valid {
			counts[ev.siteID]++
		}
		if err := s.limiter.reserve(counts, now); err != nil {
			if s.metrics != nil {
				s.metrics.RateLimited.Inc()
			}
			return Result{}, err
		}
	}

	// The user-agent belongs to the request, so a bot verdict covers the whole batch.
	if s.bots.IsBot(req.UserAgent) {
		s.countOutcome(metrics.OutcomeBot, len(valid))
		slog.Debug("[Ingestion] Dropped bot traffic", "events", len(valid))
		return Result{Accepted: len(valid)}, nil
	}

	events := s.buildEvents(valid, req, now)

	start := time.Now()
	if err := s.store.SaveEvents(ctx, events); err != nil {
		s.countOutcome(metrics.OutcomeFailed, len(events))
		slog.Error("[Ingestion] Failed to persist events", "events", len(events), "error", err)
		return Result{}, httperr.Persistence("save events", err)
	}
	if s.metrics != nil {
		s.metrics.CollectDuration.Observe(time.Since(start).Seconds())
	}
	s.countOutcome(metrics.OutcomeStored, len(events))

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events); err != nil {
			slog.Warn("[Ingestion] Event stream publish failed", "events", len(events), "error", err)
		}
	}

	return Result{Accepted: len(events)}, nil
}

func (s *Service) buildEvents(valid []validEvent, req Request, now time.Time) []*v1.Event {
	client := identity.Classify(req.UserAgent)
	visitorID := s.hasher.VisitorID(req.RemoteAddr, req.UserAgent, now)

	events := make([]*v1.Event, 0, len(valid))
	for _, ev := range valid {
		raw := ev.raw
		e := &v1.Event{
			ID:             uuid.NewString(),
			SiteID:         ev.siteID,
			Kind:           ev.kind,
			VisitorID:      visitorID,
			Path:           identity.NormalizePath(ev.path),
			ReferrerDomain: identity.ReferrerDomain(raw.Referrer),
			UTM: v1.UTM{
				Source:   raw.UTMSource,
				Medium:   raw.UTMMedium,
				Campaign: raw.UTMCampaign,
			},
			Device:          client.Device,
			Browser:         client.Browser,
			OS:              client.OS,
			Country:         raw.Country,
			Region:          raw.Region,
			Action:          raw.Action,
			Category:        raw.Category,
			Duration:        raw.Duration,
			ScrollDepth:     raw.ScrollDepth,
			Value:           raw.Value,
			IngestedAt:      now,
			ClientTimestamp: ev.clientTimestamp,
		}
		if ev.sessionToken != "" {
			e.SessionID = s.hasher.SessionID(ev.sessionToken, ev.siteID, now)
		}
		events = append(events, e)
	}
	return events
}

func (s *Service) countOutcome(outcome string, n int) {
	if s.metrics == nil || n <= 0 {
		return
	}
	s.metrics.EventsCollected.WithLabelValues(outcome).Add(float64(n))
}
