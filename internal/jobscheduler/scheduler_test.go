package jobscheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/revflow-dev/queue/internal/jobscheduler"
	"github.com/revflow-dev/queue/internal/jobscheduler/persister"
)

type funcRunner struct {
	run      func(ctx context.Context) error
	onRetry  func(err error) jobscheduler.RetryConstraint
	onRemove func(jobscheduler.Completion)
}

func (f *funcRunner) Run(ctx context.Context) error { return f.run(ctx) }
func (f *funcRunner) OnRetry(err error) jobscheduler.RetryConstraint {
	if f.onRetry != nil {
		return f.onRetry(err)
	}
	return jobscheduler.RetryCancel()
}
func (f *funcRunner) OnRemove(c jobscheduler.Completion) {
	if f.onRemove != nil {
		f.onRemove(c)
	}
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
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestScheduleRunsJobToSuccess(t *testing.T) {
	s := jobscheduler.New("test-queue")
	var ran atomic.Bool
	done := make(chan jobscheduler.Completion, 1)

	runner := &funcRunner{
		run: func(ctx context.Context) error {
			ran.Store(true)
			return nil
		},
		onRemove: func(c jobscheduler.Completion) { done <- c },
	}

	_, err := jobscheduler.NewJobBuilder("send-batch", runner).Schedule(context.Background(), s)
	require.NoError(t, err)

	select {
	case c := <-done:
		require.True(t, c.Success)
	case <-time.After(time.Second):
		t.Fatal("job did not complete")
	}
	require.True(t, ran.Load())
}

func TestRetryExponentialEventuallySucceeds(t *testing.T) {
	s := jobscheduler.New("test-queue")
	var attempts atomic.Int32
	done := make(chan jobscheduler.Completion, 1)

	runner := &funcRunner{
		run: func(ctx context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
		onRetry: func(err error) jobscheduler.RetryConstraint {
			return jobscheduler.RetryExponential(time.Millisecond)
		},
		onRemove: func(c jobscheduler.Completion) { done <- c },
	}

	_, err := jobscheduler.NewJobBuilder("send-batch", runner).Retry(5).Schedule(context.Background(), s)
	require.NoError(t, err)

	select {
	case c := <-done:
		require.True(t, c.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not complete")
	}
	require.Equal(t, int32(3), attempts.Load())
}

func TestRetriesExhaustedTerminatesWithFailureAndDeadLetter(t *testing.T) {
	s := jobscheduler.New("test-queue")
	done := make(chan jobscheduler.Completion, 1)
	sentinel := errors.New("permanent")

	runner := &funcRunner{
		run: func(ctx context.Context) error { return sentinel },
		onRetry: func(err error) jobscheduler.RetryConstraint {
			return jobscheduler.RetryNow()
		},
		onRemove: func(c jobscheduler.Completion) { done <- c },
	}

	_, err := jobscheduler.NewJobBuilder("send-batch", runner).Retry(2).Schedule(context.Background(), s)
	require.NoError(t, err)

	select {
	case c := <-done:
		require.False(t, c.Success)
		require.ErrorIs(t, c.Err, sentinel)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not terminate")
	}

	var letters []jobscheduler.DeadLetter
	waitFor(t, time.Second, func() bool {
		letters = s.DeadLetters()
		return len(letters) > 0
	})
	require.Len(t, letters, 1)
	require.Equal(t, "send-batch", letters[0].JobType)
	require.ErrorIs(t, letters[0].Err, sentinel)
}

func TestGroupSerializesExecutionOrder(t *testing.T) {
	s := jobscheduler.New("test-queue")

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 1; i <= 3; i++ {
		i := i
		runner := &funcRunner{
			run: func(ctx context.Context) error {
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			},
			onRemove: func(jobscheduler.Completion) { wg.Done() },
		}
		_, err := jobscheduler.NewJobBuilder("send-batch", runner).Group("delivery").Schedule(context.Background(), s)
		require.NoError(t, err)
	}

	waitDone := make(chan struct{})
	go func() { wg.Wait(); close(waitDone) }()
	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("group jobs did not all complete")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestUniqueNameDropIncomingRejectsDuplicate(t *testing.T) {
	s := jobscheduler.New("test-queue")
	block := make(chan struct{})
	runner1 := &funcRunner{run: func(ctx context.Context) error { <-block; return nil }}
	runner2 := &funcRunner{run: func(ctx context.Context) error { return nil }}

	_, err := jobscheduler.NewJobBuilder("flush", runner1).Unique("flush-job", jobscheduler.PolicyDropIncoming).Schedule(context.Background(), s)
	require.NoError(t, err)

	_, err = jobscheduler.NewJobBuilder("flush", runner2).Unique("flush-job", jobscheduler.PolicyDropIncoming).Schedule(context.Background(), s)
	require.Error(t, err)

	close(block)
}

func TestPersistedJobIsRemovedOnTerminalSuccess(t *testing.T) {
	mem := persister.NewMemory()
	s := jobscheduler.New("test-queue", jobscheduler.WithPersister(mem))
	done := make(chan struct{})

	runner := &funcRunner{
		run:      func(ctx context.Context) error { return nil },
		onRemove: func(jobscheduler.Completion) { close(done) },
	}

	uuid, err := jobscheduler.NewJobBuilder("flush", runner).Persist().Schedule(context.Background(), s)
	require.NoError(t, err)
	require.NotEmpty(t, uuid)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not complete")
	}

	waitFor(t, time.Second, func() bool {
		blobs, err := mem.Restore(context.Background(), "test-queue")
		return err == nil && len(blobs) == 0
	})
}

func TestReachabilityGatesInternetConstrainedJob(t *testing.T) {
	var reachable atomic.Bool
	s := jobscheduler.New("test-queue", jobscheduler.WithReachability(
		jobscheduler.ReachabilityFunc(func(jobscheduler.InternetLevel) bool { return reachable.Load() }),
	))

	ran := make(chan struct{})
	runner := &funcRunner{run: func(ctx context.Context) error { close(ran); return nil }}

	_, err := jobscheduler.NewJobBuilder("flush", runner).Internet(jobscheduler.InternetAny).Schedule(context.Background(), s)
	require.NoError(t, err)

	select {
	case <-ran:
		t.Fatal("job ran before reachability was satisfied")
	case <-time.After(50 * time.Millisecond):
	}

	reachable.Store(true)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run once reachable")
	}
}
