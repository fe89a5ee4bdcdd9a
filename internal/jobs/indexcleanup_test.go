package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sourcequal/codequal/internal/database"
	"github.com/sourcequal/codequal/internal/embedindex"
	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/repository"
	"github.com/sourcequal/codequal/pkg/logger"
)

func newTestStoreAndIndex(t *testing.T) (*repository.Store, *embedindex.Index) {
	t.Helper()
	m := database.NewManager(database.DefaultConfig(t.TempDir()), logger.NewNop())
	require.NoError(t, m.Initialize())
	t.Cleanup(func() { _ = m.Close() })
	store := repository.NewStore(m.DB(), logger.NewNop())

	idx, err := embedindex.Open(filepath.Join(t.TempDir(), "vectors"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return store, idx
}

func TestIndexCleanupSweepRemovesOrphanedEmbeddings(t *testing.T) {
	store, idx := newTestStoreAndIndex(t)
	ctx := context.Background()

	repoID, err := store.CreateRepository(ctx, &model.Repository{Source: model.SourceRemote, OriginURL: "https://example.com/live.git", Branch: "main"})
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, "s-live", []float32{1, 0}, "python", repoID))
	require.NoError(t, idx.Upsert(ctx, "s-orphan", []float32{0, 1}, "python", "deleted-repo"))

	job := NewIndexCleanup(store, idx, time.Minute, logger.NewNop())
	job.sweep(ctx)

	require.ElementsMatch(t, []string{repoID}, idx.RepoIDs())
}

func TestIndexCleanupSweepIsNoopWithNilIndex(t *testing.T) {
	store, _ := newTestStoreAndIndex(t)
	job := NewIndexCleanup(store, nil, time.Minute, logger.NewNop())
	job.Start(context.Background()) // must not panic on nil index
}
