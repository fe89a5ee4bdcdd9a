// Package jobs holds the background maintenance tasks that run alongside
// the JobScheduler's fan-out pipeline: periodic sweeps over the full
// repository set rather than work queued for one repository.
package jobs

import (
	"context"
	"time"

	"github.com/sourcequal/codequal/internal/embedindex"
	"github.com/sourcequal/codequal/internal/repository"
	"github.com/sourcequal/codequal/pkg/logger"
)

const defaultCleanupInterval = 60 * time.Minute

// IndexCleanup periodically prunes EmbeddingIndex entries for repositories
// no longer present in Storage, mirroring the teacher's index_clean_job:
// explicit repository deletion must not leave orphaned vectors behind.
type IndexCleanup struct {
	store    *repository.Store
	index    *embedindex.Index
	logger   logger.Logger
	interval time.Duration
}

func NewIndexCleanup(store *repository.Store, index *embedindex.Index, interval time.Duration, log logger.Logger) *IndexCleanup {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &IndexCleanup{store: store, index: index, logger: log, interval: interval}
}

// Start runs the sweep on every tick until ctx is cancelled. index may be
// nil (no embedding backend configured), in which case Start is a no-op.
func (j *IndexCleanup) Start(ctx context.Context) {
	if j.index == nil {
		return
	}
	j.logger.Info("starting index cleanup job with interval %s", j.interval)
	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				j.logger.Info("index cleanup job stopped")
				return
			case <-ticker.C:
				j.sweep(ctx)
			}
		}
	}()
}

func (j *IndexCleanup) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("recovered from panic in index cleanup job: %v", r)
		}
	}()

	repos, err := j.store.ListRepositories(ctx)
	if err != nil {
		j.logger.Error("index cleanup: list repositories failed: %v", err)
		return
	}
	live := make(map[string]bool, len(repos))
	for _, r := range repos {
		live[r.ID] = true
	}

	for _, repoID := range j.index.RepoIDs() {
		if live[repoID] {
			continue
		}
		n, err := j.index.DeleteByRepo(ctx, repoID)
		if err != nil {
			j.logger.Error("index cleanup: delete embeddings for %s failed: %v", repoID, err)
			continue
		}
		j.logger.Info("index cleanup: removed %d orphaned embeddings for repo %s", n, repoID)
	}
}
