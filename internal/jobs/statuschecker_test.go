package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sourcequal/codequal/internal/model"
)

func TestCheckInFlightMarksStuckRepoFailed(t *testing.T) {
	store, _ := newTestStoreAndIndex(t)
	ctx := context.Background()

	repoID, err := store.CreateRepository(ctx, &model.Repository{Source: model.SourceRemote, OriginURL: "https://example.com/stuck.git", Branch: "main"})
	require.NoError(t, err)
	require.NoError(t, store.UpdateRepositoryStatus(ctx, repoID, model.StatusParsing))

	job := NewStatusChecker(store, time.Minute, 0, nil) // stuckAfter<=0 falls back to default 2h...
	job.stuckAfter = -time.Second                       // ...force every in-flight repo to read as stuck
	job.checkInFlight(ctx)

	repo, err := store.GetRepository(ctx, repoID)
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, repo.Status)
}

func TestCheckInFlightLeavesFreshRepoAlone(t *testing.T) {
	store, _ := newTestStoreAndIndex(t)
	ctx := context.Background()

	repoID, err := store.CreateRepository(ctx, &model.Repository{Source: model.SourceRemote, OriginURL: "https://example.com/fresh.git", Branch: "main"})
	require.NoError(t, err)
	require.NoError(t, store.UpdateRepositoryStatus(ctx, repoID, model.StatusParsing))

	job := NewStatusChecker(store, time.Minute, time.Hour, nil)
	job.checkInFlight(ctx)

	repo, err := store.GetRepository(ctx, repoID)
	require.NoError(t, err)
	require.Equal(t, model.StatusParsing, repo.Status)
}

func TestCheckInFlightIgnoresTerminalStatus(t *testing.T) {
	store, _ := newTestStoreAndIndex(t)
	ctx := context.Background()

	repoID, err := store.CreateRepository(ctx, &model.Repository{Source: model.SourceRemote, OriginURL: "https://example.com/done.git", Branch: "main"})
	require.NoError(t, err)
	require.NoError(t, store.UpdateRepositoryStatus(ctx, repoID, model.StatusFailed))

	job := NewStatusChecker(store, time.Minute, 0, nil)
	job.stuckAfter = -time.Second
	job.checkInFlight(ctx)

	repo, err := store.GetRepository(ctx, repoID)
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, repo.Status)
}
