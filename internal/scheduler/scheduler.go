// Package scheduler is JobScheduler (spec §4.J): the teacher's single
// fixed-interval sync loop generalised into a priority work queue drained
// by a fixed worker pool, with per-repository mutual exclusion, retry with
// backoff, and cooperative cancellation.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sourcequal/codequal/internal/errs"
	"github.com/sourcequal/codequal/pkg/logger"
)

// meter and the counters below are the OpenTelemetry side of the fan-out
// instrumentation named in the domain stack: jobs run/failed/retried per
// phase. They report through whatever MeterProvider main() installs via
// otel.SetMeterProvider; with none installed they're harmless no-ops.
var meter = otel.Meter("github.com/sourcequal/codequal/internal/scheduler")

var (
	tasksRun, _     = meter.Int64Counter("scheduler_tasks_run_total", metric.WithDescription("tasks dequeued and executed, by phase"))
	tasksFailed, _  = meter.Int64Counter("scheduler_tasks_failed_total", metric.WithDescription("tasks that exhausted retries or failed permanently, by phase"))
	tasksRetried, _ = meter.Int64Counter("scheduler_tasks_retried_total", metric.WithDescription("transient-failure retry attempts, by phase"))
)

// Phase is one step of a repository's ingest/analysis pipeline.
type Phase string

const (
	PhaseIngest      Phase = "ingest"
	PhaseParse       Phase = "parse"
	PhaseMetrics     Phase = "metrics"
	PhaseCallgraph   Phase = "callgraph"
	PhaseEmbed       Phase = "embed"
	PhaseDuplication Phase = "duplication"
	PhaseVulns       Phase = "vulns"
	PhaseBarrier     Phase = "barrier"
	PhaseGateCheck   Phase = "gate_check"
)

// MaxAttempts and the backoff envelope match spec §4.J: base 2s, cap 5min,
// max 5 attempts.
const (
	MaxAttempts = 5
	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute

	// DefaultTimeout and GateCheckTimeout are the task wall-clock budgets of
	// spec §5: "30 min ingest, 5 min gate check".
	DefaultTimeout   = 30 * time.Minute
	GateCheckTimeout = 5 * time.Minute
)

// Task is one unit of scheduled work. Run is invoked by a worker; a
// non-nil Transient error is retried per the backoff policy, any other
// error fails the task outright.
type Task struct {
	RepoID   string
	Phase    Phase
	Priority int // lower runs first
	Attempt  int
	Timeout  time.Duration
	Run      func(ctx context.Context) error

	// OnDone, when set, is invoked exactly once with the task's terminal
	// outcome (nil on success), off the worker goroutine's critical path.
	OnDone func(err error)

	seq int64 // insertion order, for FIFO tie-breaking within a priority
}

// taskQueue is a container/heap.Interface ordered by Priority, then by
// insertion order.
type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }
func (q taskQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority < q[j].Priority
	}
	return q[i].seq < q[j].seq
}
func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *taskQueue) Push(x any)   { *q = append(*q, x.(*Task)) }
func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Scheduler drains a priority queue of Tasks with N worker goroutines,
// enforcing at most one running task per RepoID (spec §4.J invariant 1).
type Scheduler struct {
	workers int
	logger  logger.Logger

	mu       sync.Mutex
	queue    taskQueue
	nextSeq  int64
	notEmpty *sync.Cond

	repoLocks map[string]*sync.Mutex
	cancelled map[string]bool

	closed bool
	wg     sync.WaitGroup
}

func New(workers int, log logger.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	s := &Scheduler{
		workers:   workers,
		logger:    log,
		repoLocks: make(map[string]*sync.Mutex),
		cancelled: make(map[string]bool),
	}
	s.notEmpty = sync.NewCond(&s.mu)
	return s
}

// Start launches the worker pool; it returns immediately, workers run
// until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx)
	}
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.notEmpty.Broadcast()
		s.mu.Unlock()
	}()
}

// Stop wakes every blocked worker so Start's goroutines can observe ctx
// cancellation and exit, then waits for them to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	s.notEmpty.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

// Submit enqueues one task. Submitting to a cancelled repository is a
// silent no-op (spec §4.J: "Cancel marks all queued tasks cancelled").
func (s *Scheduler) Submit(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled[t.RepoID] {
		return
	}
	t.seq = s.nextSeq
	s.nextSeq++
	if t.Timeout == 0 {
		t.Timeout = DefaultTimeout
	}
	heap.Push(&s.queue, t)
	s.notEmpty.Signal()
}

// Cancel marks a repository cancelled: queued tasks for it are dropped as
// they're popped, and in-flight tasks observe ctx.Done() at their next
// suspension point.
func (s *Scheduler) Cancel(repoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled[repoID] = true
}

// ClearCancellation allows a repository to be scheduled again (e.g. after
// a resubmitted ingest).
func (s *Scheduler) ClearCancellation(repoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancelled, repoID)
}

func (s *Scheduler) repoLock(repoID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.repoLocks[repoID]
	if !ok {
		l = &sync.Mutex{}
		s.repoLocks[repoID] = l
	}
	return l
}

func (s *Scheduler) runWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		task := s.pop(ctx)
		if task == nil {
			return
		}
		s.execute(ctx, task)
	}
}

// pop blocks until a task is available, the scheduler is stopped, or ctx
// is cancelled. A task for a cancelled repository is dropped silently.
func (s *Scheduler) pop(ctx context.Context) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if ctx.Err() != nil || s.closed {
			return nil
		}
		for len(s.queue) > 0 {
			t := heap.Pop(&s.queue).(*Task)
			if s.cancelled[t.RepoID] {
				continue
			}
			return t
		}
		s.notEmpty.Wait()
	}
}

// execute runs one task under its repository's mutual-exclusion lock,
// applying the retry-with-backoff policy on Transient failures.
func (s *Scheduler) execute(ctx context.Context, t *Task) {
	lock := s.repoLock(t.RepoID)
	lock.Lock()
	defer lock.Unlock()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = backoffBase
	policy.MaxInterval = backoffCap
	policy.Multiplier = 2
	retrier := backoff.WithMaxRetries(policy, MaxAttempts-1)

	phaseAttr := metric.WithAttributes(attribute.String("phase", string(t.Phase)))
	tasksRun.Add(ctx, 1, phaseAttr)

	var finalErr error
	attempt := 0
	op := func() error {
		attempt++
		t.Attempt = attempt
		if attempt > 1 {
			tasksRetried.Add(ctx, 1, phaseAttr)
		}

		taskCtx, cancel := context.WithTimeout(ctx, t.Timeout)
		defer cancel()

		err := t.Run(taskCtx)
		if err == nil {
			return nil
		}
		if errs.Is(err, errs.Transient) {
			s.logger.Warn("scheduler: task %s/%s attempt %d failed transiently: %v", t.RepoID, t.Phase, attempt, err)
			return err
		}
		// Non-transient: stop retrying, but preserve the error for the
		// caller via finalErr.
		finalErr = err
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, backoff.WithContext(retrier, ctx))
	if err != nil && finalErr == nil {
		finalErr = err
	}

	if finalErr != nil {
		tasksFailed.Add(ctx, 1, phaseAttr)
		s.logger.Error("scheduler: task %s/%s failed after %d attempt(s): %v", t.RepoID, t.Phase, attempt, finalErr)
	}
	if t.OnDone != nil {
		t.OnDone(finalErr)
	}
}

// RunBarrier waits for every thunk to finish, returning a combined error
// if any failed so a caller can see every fan-out failure, not just the
// first. Used to implement the fan-out barrier task: "marks the repo
// completed once all succeed" (spec §4.J).
func RunBarrier(ctx context.Context, thunks []func(ctx context.Context) error) error {
	errCh := make(chan error, len(thunks))
	var wg sync.WaitGroup
	for _, fn := range thunks {
		wg.Add(1)
		go func(fn func(ctx context.Context) error) {
			defer wg.Done()
			errCh <- fn(ctx)
		}(fn)
	}
	wg.Wait()
	close(errCh)

	var result *multierror.Error
	for err := range errCh {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
