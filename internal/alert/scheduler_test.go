package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	storagemocks "github.com/pulse-analytics/pulse/internal/mocks/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunOnce(t *testing.T) {
	svc, store, notifier, _ := newTestService(t, &fakeAggregator{fallback: 500})

	for _, id := range []string{"a-1", "a-2", "a-3"} {
		a := thresholdAlert()
		a.ID = id
		store.PutAlert(a)
	}
	off := thresholdAlert()
	off.ID = "a-off"
	off.Enabled = false
	store.PutAlert(off)

	quiet := thresholdAlert()
	quiet.ID = "a-quiet"
	quiet.Threshold = 10000
	store.PutAlert(quiet)

	sched := NewScheduler(time.Minute, 2, store, svc)
	sched.nowFn = func() time.Time { return now }

	sched.RunOnce(context.Background())
	require.Equal(t, 3, notifier.count())

	// A second pass at the same instant is inside every cooldown.
	sched.RunOnce(context.Background())
	require.Equal(t, 3, notifier.count())

	history, err := store.ListTriggers(context.Background(), "a-off", 0)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestScheduler_RunOnceNotifiesEachAlertOnce(t *testing.T) {
	svc, store, notifier, _ := newTestService(t, &fakeAggregator{fallback: 500})

	ids := []string{"a-1", "a-2", "a-3", "a-4", "a-5", "a-6"}
	for _, id := range ids {
		a := thresholdAlert()
		a.ID = id
		store.PutAlert(a)
	}

	sched := NewScheduler(time.Minute, 3, store, svc)
	sched.nowFn = func() time.Time { return now }
	sched.RunOnce(context.Background())

	notifier.mu.Lock()
	got := make([]string, 0, len(notifier.sent))
	for _, rec := range notifier.sent {
		got = append(got, rec.AlertID)
	}
	notifier.mu.Unlock()
	require.ElementsMatch(t, ids, got)
}

func TestScheduler_ListFailureIsLogged(t *testing.T) {
	store := storagemocks.NewAlertStore(t)
	store.EXPECT().ListEnabledAlerts(mock.Anything).Return(nil, errors.New("db down")).Once()

	notifier := &recordingNotifier{}
	svc := NewService(NewEvaluator(&fakeAggregator{}), store, notifier, nil)

	NewScheduler(time.Minute, 1, store, svc).RunOnce(context.Background())
	require.Zero(t, notifier.count())
}

func TestScheduler_StartStopsOnCancel(t *testing.T) {
	svc, store, notifier, _ := newTestService(t, &fakeAggregator{fallback: 500})
	store.PutAlert(thresholdAlert())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sched := NewScheduler(time.Hour, 0, store, svc)
	sched.nowFn = func() time.Time { return now }
	require.NoError(t, sched.Start(ctx))
	require.Equal(t, defaultWorkers, sched.workers)
	require.Equal(t, 1, notifier.count())
}
