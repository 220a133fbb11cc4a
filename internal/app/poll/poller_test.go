package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPoller_StaleResponseIsDropped(t *testing.T) {
	releaseFirst := make(chan struct{})
	firstStarted := make(chan struct{})
	var calls atomic.Int32
	var mu sync.Mutex
	var applied []string

	p := &Poller[string]{
		Fetch: func(ctx context.Context) (string, error) {
			if calls.Add(1) == 1 {
				close(firstStarted)
				// Ignores cancellation, like a transport that answers late.
				<-releaseFirst
				return "stale", nil
			}
			return "fresh", nil
		},
		Apply: func(v string) {
			mu.Lock()
			defer mu.Unlock()
			applied = append(applied, v)
		},
	}

	ctx := context.Background()
	p.Trigger(ctx)
	<-firstStarted
	p.Trigger(ctx)
	// Let the second cycle finish before the first one answers.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) == 1
	}, time.Second, 5*time.Millisecond)
	close(releaseFirst)
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"fresh"}, applied)
}

func TestPoller_NewCycleCancelsPrevious(t *testing.T) {
	cancelled := make(chan struct{})
	var calls atomic.Int32
	p := &Poller[int]{
		Fetch: func(ctx context.Context) (int, error) {
			if calls.Add(1) == 1 {
				<-ctx.Done()
				close(cancelled)
				return 0, ctx.Err()
			}
			return 2, nil
		},
		Apply: func(int) {},
		OnError: func(err error) {
			t.Errorf("unexpected error callback: %v", err)
		},
	}
	p.Trigger(context.Background())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	p.Trigger(context.Background())

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("first cycle was not cancelled")
	}
	p.Wait()
}

func TestPoller_ReportsErrorsOfLatestCycle(t *testing.T) {
	errCh := make(chan error, 1)
	p := &Poller[int]{
		Fetch:   func(context.Context) (int, error) { return 0, errors.New("boom") },
		Apply:   func(int) { t.Error("apply must not run on error") },
		OnError: func(err error) { errCh <- err },
	}
	p.Trigger(context.Background())
	p.Wait()
	require.EqualError(t, <-errCh, "boom")
}

func TestPoller_RunStopsWithContext(t *testing.T) {
	var applied atomic.Int32
	p := &Poller[int]{
		Interval: 5 * time.Millisecond,
		Fetch:    func(context.Context) (int, error) { return 1, nil },
		Apply:    func(int) { applied.Add(1) },
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return applied.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestPoller_RequiresCallbacks(t *testing.T) {
	require.ErrorIs(t, (&Poller[int]{}).Run(context.Background()), ErrPollerNotConfigured)
}

func TestPoller_TriggerAfterStopStartsNothing(t *testing.T) {
	var calls atomic.Int32
	p := &Poller[int]{
		Fetch: func(context.Context) (int, error) { return int(calls.Add(1)), nil },
		Apply: func(int) {},
	}

	p.Trigger(context.Background())
	p.Stop()
	before := calls.Load()

	require.Zero(t, p.Trigger(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Zero(t, (&Poller[int]{Fetch: p.Fetch, Apply: p.Apply}).Trigger(ctx))
	p.Wait()
	require.Equal(t, before, calls.Load())
}
