package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
	"github.com/pulse-analytics/pulse/internal/core/storage"
	"github.com/pulse-analytics/pulse/internal/metrics"
)

// Notifier delivers a recorded trigger.
type Notifier interface {
	Dispatch(ctx context.Context, a *v1.Alert, rec *v1.TriggerRecord) error
}

// Service evaluates alerts, records triggers and sends notifications.
type Service struct {
	evaluator *Evaluator
	store     storage.AlertStore
	notifier  Notifier
	metrics   *metrics.Metrics
	nowFn     func() time.Time
}

func NewService(evaluator *Evaluator, store storage.AlertStore, notifier Notifier, m *metrics.Metrics) *Service {
	if evaluator == nil {
		panic("alert: evaluator must not be nil")
	}
	if store == nil {
		panic("alert: store must not be nil")
	}
	if notifier == nil {
		panic("alert: notifier must not be nil")
	}
	return &Service{
		evaluator: evaluator,
		store:     store,
		notifier:  notifier,
		metrics:   m,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Process evaluates a at now and, if it fires, records the trigger and
// notifies its channels. The trigger is only recorded when the stored
// alert is still outside its cooldown, so overlapping runs notify once.
// Notification failures are logged and do not fail the call.
func (s *Service) Process(ctx context.Context, a *v1.Alert, now time.Time) (*TriggerResult, error) {
	res, err := s.evaluator.Evaluate(ctx, a, now)
	if err != nil {
		s.countEvaluation("error")
		return nil, err
	}
	if !res.Triggered() {
		s.countEvaluation(string(res.Status))
		return res, nil
	}

	rec := &v1.TriggerRecord{
		ID:          uuid.NewString(),
		AlertID:     a.ID,
		SiteID:      a.SiteID,
		Value:       res.Value,
		Baseline:    res.Baseline,
		Threshold:   res.Threshold,
		Message:     res.Message,
		TriggeredAt: now,
	}
	recorded, err := s.store.RecordTrigger(ctx, rec, now.Add(-a.Type.Cooldown()))
	if err != nil {
		s.countEvaluation("error")
		slog.Error("[Alert] Failed to record trigger", "alert_id", a.ID, "error", err)
		return nil, httperr.Persistence("record trigger", err)
	}
	if !recorded {
		// Another run recorded a trigger first, or the alert was disabled meanwhile.
		res.Status = StatusCooldown
		s.countEvaluation(string(res.Status))
		return res, nil
	}

	s.countEvaluation(string(res.Status))
	if s.metrics != nil {
		s.metrics.AlertTriggers.WithLabelValues(string(a.Type)).Inc()
	}
	slog.Info("[Alert] Trigger recorded",
		"alert_id", a.ID,
		"site_id", a.SiteID,
		"type", a.Type,
		"value", res.Value,
	)

	if err := s.notifier.Dispatch(ctx, a, rec); err != nil {
		slog.Warn("[Alert] Some notifications were not delivered", "alert_id", a.ID, "error", err)
	}
	return res, nil
}

// Triggers returns the newest trigger records of an alert.
func (s *Service) Triggers(ctx context.Context, alertID string, limit int) ([]*v1.TriggerRecord, error) {
	records, err := s.store.ListTriggers(ctx, alertID, limit)
	if err != nil {
		slog.Error("[Alert] Failed to list triggers", "alert_id", alertID, "error", err)
		return nil, httperr.Persistence("list triggers", err)
	}
	return records, nil
}

func (s *Service) countEvaluation(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.AlertEvaluations.WithLabelValues(result).Inc()
}
