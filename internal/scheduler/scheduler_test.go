package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sourcequal/codequal/internal/errs"
	"github.com/sourcequal/codequal/pkg/logger"
)

func TestSchedulerRunsSubmittedTask(t *testing.T) {
	s := New(2, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	done := make(chan error, 1)
	s.Submit(&Task{
		RepoID: "r1",
		Phase:  PhaseIngest,
		Run:    func(ctx context.Context) error { return nil },
		OnDone: func(err error) { done <- err },
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete")
	}
}

func TestSchedulerRetriesTransientFailures(t *testing.T) {
	s := New(1, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	var attempts atomic.Int32
	done := make(chan error, 1)
	s.Submit(&Task{
		RepoID: "r1",
		Phase:  PhaseIngest,
		Run: func(ctx context.Context) error {
			n := attempts.Add(1)
			if n < 2 {
				return errs.New(errs.Transient, "temporary")
			}
			return nil
		},
		OnDone: func(err error) { done <- err },
	})

	select {
	case err := <-done:
		require.NoError(t, err)
		require.GreaterOrEqual(t, attempts.Load(), int32(2))
	case <-time.After(5 * time.Second):
		t.Fatal("task did not complete")
	}
}

func TestSchedulerDoesNotRetryNonTransientFailures(t *testing.T) {
	s := New(1, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	var attempts atomic.Int32
	done := make(chan error, 1)
	s.Submit(&Task{
		RepoID: "r1",
		Phase:  PhaseIngest,
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			return errs.New(errs.Validation, "bad input")
		},
		OnDone: func(err error) { done <- err },
	})

	select {
	case err := <-done:
		require.Error(t, err)
		require.Equal(t, int32(1), attempts.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete")
	}
}

func TestCancelDropsQueuedTasksForRepo(t *testing.T) {
	s := New(1, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran atomic.Bool
	s.Cancel("r1")
	s.Submit(&Task{
		RepoID: "r1",
		Phase:  PhaseIngest,
		Run:    func(ctx context.Context) error { ran.Store(true); return nil },
	})

	s.Start(ctx)
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	require.False(t, ran.Load())
}

func TestMutualExclusionPerRepository(t *testing.T) {
	s := New(4, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	var mu sync.Mutex
	running := 0
	maxConcurrent := 0
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		s.Submit(&Task{
			RepoID: "shared-repo",
			Phase:  PhaseIngest,
			Run: func(ctx context.Context) error {
				mu.Lock()
				running++
				if running > maxConcurrent {
					maxConcurrent = running
				}
				mu.Unlock()

				time.Sleep(20 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			},
			OnDone: func(err error) { wg.Done() },
		})
	}

	wg.Wait()
	require.Equal(t, 1, maxConcurrent)
}

func TestRunBarrierAggregatesFailures(t *testing.T) {
	err := RunBarrier(context.Background(), []func(ctx context.Context) error{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return errs.New(errs.Semantic, "boom") },
		func(ctx context.Context) error { return nil },
	})
	require.Error(t, err)
}

func TestRunBarrierSucceedsWhenAllSucceed(t *testing.T) {
	err := RunBarrier(context.Background(), []func(ctx context.Context) error{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return nil },
	})
	require.NoError(t, err)
}
