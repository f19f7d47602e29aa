package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
	"github.com/pulse-analytics/pulse/internal/core/storage/memory"
	"github.com/pulse-analytics/pulse/internal/metrics"
	storagemocks "github.com/pulse-analytics/pulse/internal/mocks/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*v1.TriggerRecord
	err  error
}

func (n *recordingNotifier) Dispatch(_ context.Context, _ *v1.Alert, rec *v1.TriggerRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, rec)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func newTestService(t *testing.T, agg Aggregator) (*Service, *memory.Store, *recordingNotifier, *metrics.Metrics) {
	t.Helper()
	store := memory.NewStore()
	notifier := &recordingNotifier{}
	m := metrics.New(false)
	return NewService(NewEvaluator(agg), store, notifier, m), store, notifier, m
}

func TestProcess_RecordsAndNotifies(t *testing.T) {
	svc, store, notifier, m := newTestService(t, &fakeAggregator{fallback: 500})
	store.PutAlert(thresholdAlert())

	a, err := store.GetAlert(context.Background(), "a-1")
	require.NoError(t, err)

	res, err := svc.Process(context.Background(), a, now)
	require.NoError(t, err)
	require.True(t, res.Triggered())
	require.Equal(t, 1, notifier.count())

	history, err := svc.Triggers(context.Background(), "a-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, 500.0, history[0].Value)
	require.Equal(t, now, history[0].TriggeredAt)
	require.NotEmpty(t, history[0].ID)

	stored, err := store.GetAlert(context.Background(), "a-1")
	require.NoError(t, err)
	require.Equal(t, 1, stored.TriggerCount)
	require.Equal(t, now, *stored.LastTriggeredAt)

	require.Equal(t, 1.0, testutil.ToFloat64(m.AlertTriggers.WithLabelValues(string(v1.AlertThreshold))))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AlertEvaluations.WithLabelValues(string(StatusTriggered))))
}

// An alert whose condition holds the whole time fires once per cooldown.
func TestProcess_NeverFiresInsideCooldown(t *testing.T) {
	svc, store, notifier, _ := newTestService(t, &fakeAggregator{fallback: 500})
	store.PutAlert(thresholdAlert())

	var fired []time.Time
	for at := now; !at.After(now.Add(3 * time.Hour)); at = at.Add(5 * time.Minute) {
		a, err := store.GetAlert(context.Background(), "a-1")
		require.NoError(t, err)

		res, err := svc.Process(context.Background(), a, at)
		require.NoError(t, err)
		if res.Triggered() {
			fired = append(fired, at)
		}
	}

	require.Equal(t, []time.Time{now, now.Add(time.Hour), now.Add(2 * time.Hour), now.Add(3 * time.Hour)}, fired)
	require.Equal(t, 4, notifier.count())
	for i := 1; i < len(fired); i++ {
		require.GreaterOrEqual(t, fired[i].Sub(fired[i-1]), v1.AlertThreshold.Cooldown())
	}
}

// Overlapping runs holding the same stale definition notify once.
func TestProcess_OverlappingRunsNotifyOnce(t *testing.T) {
	svc, store, notifier, _ := newTestService(t, &fakeAggregator{fallback: 500})
	store.PutAlert(thresholdAlert())
	stale, err := store.GetAlert(context.Background(), "a-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	triggered := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			a := *stale
			res, err := svc.Process(context.Background(), &a, now.Add(time.Duration(offset)*time.Minute))
			if err == nil && res.Triggered() {
				mu.Lock()
				triggered++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, triggered)
	require.Equal(t, 1, notifier.count())

	history, err := store.ListTriggers(context.Background(), "a-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestProcess_NotificationFailureStillRecords(t *testing.T) {
	svc, store, notifier, _ := newTestService(t, &fakeAggregator{fallback: 500})
	notifier.err = errors.New("webhook down")
	store.PutAlert(thresholdAlert())
	a, _ := store.GetAlert(context.Background(), "a-1")

	res, err := svc.Process(context.Background(), a, now)
	require.NoError(t, err)
	require.True(t, res.Triggered())

	history, err := store.ListTriggers(context.Background(), "a-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestProcess_QuietAlertWritesNothing(t *testing.T) {
	svc, store, notifier, m := newTestService(t, &fakeAggregator{fallback: 5})
	store.PutAlert(thresholdAlert())
	a, _ := store.GetAlert(context.Background(), "a-1")

	res, err := svc.Process(context.Background(), a, now)
	require.NoError(t, err)
	require.Equal(t, StatusNotTriggered, res.Status)
	require.Zero(t, notifier.count())
	require.Equal(t, 1.0, testutil.ToFloat64(m.AlertEvaluations.WithLabelValues(string(StatusNotTriggered))))

	history, _ := store.ListTriggers(context.Background(), "a-1", 0)
	require.Empty(t, history)
}

func TestProcess_StoreError(t *testing.T) {
	store := storagemocks.NewAlertStore(t)
	store.EXPECT().
		RecordTrigger(mock.Anything, mock.Anything, now.Add(-time.Hour)).
		Return(false, errors.New("connection reset")).
		Once()

	notifier := &recordingNotifier{}
	svc := NewService(NewEvaluator(&fakeAggregator{fallback: 500}), store, notifier, nil)

	_, err := svc.Process(context.Background(), thresholdAlert(), now)
	require.ErrorIs(t, err, httperr.ErrPersistence)
	require.Zero(t, notifier.count())
}

func TestNewService_PanicsOnNilDeps(t *testing.T) {
	ev := NewEvaluator(&fakeAggregator{})
	store := memory.NewStore()
	require.Panics(t, func() { NewService(nil, store, &recordingNotifier{}, nil) })
	require.Panics(t, func() { NewService(ev, nil, &recordingNotifier{}, nil) })
	require.Panics(t, func() { NewService(ev, store, nil, nil) })
}
