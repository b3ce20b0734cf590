package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastBackoff() Backoff {
	return Backoff{Kind: BackoffFixed, Base: 5 * time.Millisecond}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestBackoff_Delay(t *testing.T) {
	exp := Backoff{Kind: BackoffExponential, Base: 2 * time.Second}
	require.Equal(t, 2*time.Second, exp.Delay(1))
	require.Equal(t, 4*time.Second, exp.Delay(2))
	require.Equal(t, 8*time.Second, exp.Delay(3))

	fixed := Backoff{Kind: BackoffFixed, Base: time.Second}
	require.Equal(t, time.Second, fixed.Delay(1))
	require.Equal(t, time.Second, fixed.Delay(4))

	capped := Backoff{Kind: BackoffExponential, Base: time.Minute, Max: 2 * time.Minute}
	require.Equal(t, 2*time.Minute, capped.Delay(5))
}

func TestOrchestrator_RetriesUntilSuccess(t *testing.T) {
	o := NewOrchestrator()
	defer o.Stop()

	var attempts int32
	err := o.Register("test", Config{MaxAttempts: 5, Backoff: fastBackoff()},
		func(_ context.Context, _ any, attempt int) (any, error) {
			atomic.AddInt32(&attempts, 1)
			if attempt < 3 {
				return nil, errors.New("transient")
			}
			return "done", nil
		})
	require.NoError(t, err)

	var mu sync.Mutex
	var succeeded *Job
	o.OnSuccess("test", func(job *Job, _ any) {
		mu.Lock()
		succeeded = job
		mu.Unlock()
	})

	o.Start()

	_, err = o.Enqueue("test", "payload")
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return succeeded != nil
	})

	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	require.Equal(t, JobStatusCompleted, succeeded.Status)
	require.Equal(t, "done", succeeded.Result)
}

func TestOrchestrator_PermanentFailureExactlyOnce(t *testing.T) {
	o := NewOrchestrator()
	defer o.Stop()

	var attempts, failures int32
	require.NoError(t, o.Register("test", Config{MaxAttempts: 3, Backoff: fastBackoff()},
		func(_ context.Context, _ any, _ int) (any, error) {
			atomic.AddInt32(&attempts, 1)
			return nil, errors.New("always broken")
		}))

	o.OnFailure("test", func(_ *Job, _ error) {
		atomic.AddInt32(&failures, 1)
	})

	o.Start()

	_, err := o.Enqueue("test", nil)
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool {
		return atomic.LoadInt32(&failures) == 1
	})

	// Give a retry window a chance to fire if the job wrongly re-entered.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	require.Equal(t, int32(1), atomic.LoadInt32(&failures))

	failed := o.FailedJobs("test")
	require.Len(t, failed, 1)
	require.Equal(t, JobStatusFailed, failed[0].Status)
	require.Equal(t, "always broken", failed[0].LastError)
}

func TestOrchestrator_SuccessHookChainsQueues(t *testing.T) {
	o := NewOrchestrator()
	defer o.Stop()

	require.NoError(t, o.Register("first", Config{MaxAttempts: 1, Backoff: fastBackoff()},
		func(_ context.Context, payload any, _ int) (any, error) {
			return payload, nil
		}))

	var chained atomic.Bool
	require.NoError(t, o.Register("second", Config{MaxAttempts: 1, Backoff: fastBackoff()},
		func(_ context.Context, _ any, _ int) (any, error) {
			chained.Store(true)
			return nil, nil
		}))

	o.OnSuccess("first", func(_ *Job, result any) {
		_, err := o.Enqueue("second", result)
		require.NoError(t, err)
	})

	o.Start()

	_, err := o.Enqueue("first", "evidence")
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool { return chained.Load() })
}

func TestOrchestrator_HooksRegisteredAfterStart(t *testing.T) {
	o := NewOrchestrator()
	defer o.Stop()

	release := make(chan struct{})
	require.NoError(t, o.Register("late", Config{MaxAttempts: 1, Backoff: fastBackoff()},
		func(_ context.Context, payload any, _ int) (any, error) {
			<-release
			return payload, nil
		}))

	o.Start()

	_, err := o.Enqueue("late", "payload")
	require.NoError(t, err)

	var fired atomic.Bool
	o.OnSuccess("late", func(_ *Job, _ any) {
		fired.Store(true)
	})
	close(release)

	waitFor(t, time.Second, func() bool { return fired.Load() })
}

func TestOrchestrator_HistoryIsBounded(t *testing.T) {
	o := NewOrchestrator()
	defer o.Stop()

	require.NoError(t, o.Register("test", Config{MaxAttempts: 1, Backoff: fastBackoff(), HistoryLimit: 5},
		func(_ context.Context, payload any, _ int) (any, error) {
			return payload, nil
		}))

	o.Start()

	for i := 0; i < 20; i++ {
		_, err := o.Enqueue("test", i)
		require.NoError(t, err)
	}

	waitFor(t, time.Second, func() bool {
		jobs := o.CompletedJobs("test")
		return len(jobs) == 5 && jobs[len(jobs)-1].Payload == 19
	})

	// Oldest-first eviction keeps only the most recent jobs.
	completed := o.CompletedJobs("test")
	require.Equal(t, 15, completed[0].Payload)
}

func TestOrchestrator_EnqueueUnknownQueue(t *testing.T) {
	o := NewOrchestrator()
	defer o.Stop()

	_, err := o.Enqueue("missing", nil)
	require.Error(t, err)
}

func TestOrchestrator_RegisterTwice(t *testing.T) {
	o := NewOrchestrator()
	defer o.Stop()

	handler := func(_ context.Context, _ any, _ int) (any, error) { return nil, nil }
	require.NoError(t, o.Register("dup", Config{}, handler))
	require.Error(t, o.Register("dup", Config{}, handler))
}
