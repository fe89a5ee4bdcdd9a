package jobs

import (
	"context"
	"time"

	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/repository"
	"github.com/sourcequal/codequal/pkg/logger"
)

const (
	defaultCheckInterval = 30 * time.Second
	defaultStuckAfter    = 2 * time.Hour
)

// inFlightStatuses are the non-terminal states a Repository passes through
// while the JobScheduler's fan-out is running.
var inFlightStatuses = map[model.RepoStatus]bool{
	model.StatusCloning:   true,
	model.StatusParsing:   true,
	model.StatusAnalyzing: true,
}

// StatusChecker polls for repositories stuck in an in-flight state past
// stuckAfter (a worker crash between phases, per spec §3's "a crash between
// phases leaves the repo in the last completed phase's state" — this job
// turns that into an observable failure instead of an eternal "parsing"),
// mirroring the teacher's status_checker_job ticker loop.
type StatusChecker struct {
	store      *repository.Store
	logger     logger.Logger
	interval   time.Duration
	stuckAfter time.Duration
}

func NewStatusChecker(store *repository.Store, interval, stuckAfter time.Duration, log logger.Logger) *StatusChecker {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	if stuckAfter <= 0 {
		stuckAfter = defaultStuckAfter
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &StatusChecker{store: store, logger: log, interval: interval, stuckAfter: stuckAfter}
}

func (j *StatusChecker) Start(ctx context.Context) {
	j.logger.Info("starting status checker job with interval %s, stuck threshold %s", j.interval, j.stuckAfter)
	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				j.logger.Info("status checker job stopped")
				return
			case <-ticker.C:
				j.checkInFlight(ctx)
			}
		}
	}()
}

func (j *StatusChecker) checkInFlight(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("recovered from panic in status checker job: %v", r)
		}
	}()

	repos, err := j.store.ListRepositories(ctx)
	if err != nil {
		j.logger.Error("status checker: list repositories failed: %v", err)
		return
	}

	now := time.Now()
	for _, r := range repos {
		if !inFlightStatuses[r.Status] {
			continue
		}
		if now.Sub(r.UpdatedAt) < j.stuckAfter {
			continue
		}
		j.logger.Warn("status checker: repo %s stuck in %s since %s, marking failed",
			r.ID, r.Status, r.UpdatedAt.Format(time.RFC3339))
		if err := j.store.UpdateRepositoryStatus(ctx, r.ID, model.StatusFailed,
			repository.WithFailureReason("ingest timed out: no phase completion within "+j.stuckAfter.String())); err != nil {
			j.logger.Error("status checker: failed to mark %s failed: %v", r.ID, err)
		}
	}
}
