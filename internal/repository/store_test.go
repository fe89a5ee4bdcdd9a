package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sourcequal/codequal/internal/database"
	"github.com/sourcequal/codequal/internal/errs"
	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	m := database.NewManager(database.DefaultConfig(dir), logger.NewNop())
	require.NoError(t, m.Initialize())
	t.Cleanup(func() { _ = m.Close() })
	return NewStore(m.DB(), logger.NewNop())
}

func TestCreateRepositoryDuplicateRemote(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r1 := &model.Repository{Source: model.SourceRemote, OriginURL: "https://example.com/r.git", Branch: "main"}
	_, err := store.CreateRepository(ctx, r1)
	require.NoError(t, err)

	r2 := &model.Repository{Source: model.SourceRemote, OriginURL: "https://example.com/r.git", Branch: "main"}
	_, err = store.CreateRepository(ctx, r2)
	require.ErrorIs(t, err, errs.ErrDuplicateRepository)
}

func TestCreateRepositoryDistinctBranchesAllowed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r1 := &model.Repository{Source: model.SourceRemote, OriginURL: "https://example.com/r.git", Branch: "main"}
	_, err := store.CreateRepository(ctx, r1)
	require.NoError(t, err)

	r2 := &model.Repository{Source: model.SourceRemote, OriginURL: "https://example.com/r.git", Branch: "dev"}
	_, err = store.CreateRepository(ctx, r2)
	require.NoError(t, err)
}

func TestListRepositoriesReturnsAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateRepository(ctx, &model.Repository{Source: model.SourceRemote, OriginURL: "https://example.com/a.git", Branch: "main"})
	require.NoError(t, err)
	_, err = store.CreateRepository(ctx, &model.Repository{Source: model.SourceRemote, OriginURL: "https://example.com/b.git", Branch: "main"})
	require.NoError(t, err)

	repos, err := store.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 2)
}

func TestUpdateRepositoryStatusNotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateRepositoryStatus(context.Background(), "missing", model.StatusFailed)
	require.ErrorIs(t, err, errs.ErrRecordNotFound)
}

func TestUpdateRepositoryStatusWithOptions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateRepository(ctx, &model.Repository{Source: model.SourceUpload})
	require.NoError(t, err)

	err = store.UpdateRepositoryStatus(ctx, id, model.StatusCompleted,
		WithCounts(12, 40), WithPrimaryLanguage("python"))
	require.NoError(t, err)

	got, err := store.GetRepository(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.Equal(t, 12, got.FileCount)
	require.Equal(t, 40, got.SymbolCount)
	require.Equal(t, "python", got.PrimaryLanguage)
}

func TestReplaceFilesAndSymbolsIsAtomicReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateRepository(ctx, &model.Repository{Source: model.SourceUpload})
	require.NoError(t, err)

	f1 := &model.File{Path: "a.py", Language: "python", ByteSize: 10, LineCount: 1, SHA256: "x"}
	require.NoError(t, store.ReplaceFilesAndSymbols(ctx, id, []*model.File{f1}, nil))

	files, err := store.ListFiles(ctx, id)
	require.NoError(t, err)
	require.Len(t, files, 1)

	sym := &model.Symbol{FileID: files[0].ID, Name: "foo", Kind: model.KindFunction, LineStart: 1, LineEnd: 2, Signature: "foo()"}
	f2 := &model.File{ID: files[0].ID, Path: "b.py", Language: "python", ByteSize: 20, LineCount: 2, SHA256: "y"}
	require.NoError(t, store.ReplaceFilesAndSymbols(ctx, id, []*model.File{f2}, []*model.Symbol{sym}))

	files, err = store.ListFiles(ctx, id)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "b.py", files[0].Path)
}

func TestDuplicationPairCanonicalOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateRepository(ctx, &model.Repository{Source: model.SourceUpload})
	require.NoError(t, err)

	pair := &model.DuplicationPair{
		File1ID: "zzz", File1Range: "1-5",
		File2ID: "aaa", File2Range: "10-14",
		Similarity: 0.9, DuplicateLines: 5, DuplicateTokens: 50, Snippet: "snippet",
	}
	require.NoError(t, store.ReplaceDuplicationPairs(ctx, id, []*model.DuplicationPair{pair}))

	pairs, err := store.ListDuplicationPairs(ctx, id)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	require.Less(t, pairs[0].File1ID, pairs[0].File2ID)
	require.Equal(t, "aaa", pairs[0].File1ID)
	require.Equal(t, "10-14", pairs[0].File1Range)
}

func TestQualityGateConfigUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateRepository(ctx, &model.Repository{Source: model.SourceUpload})
	require.NoError(t, err)

	cfg := model.DefaultQualityGateConfig(id)
	require.NoError(t, store.UpsertQualityGateConfig(ctx, &cfg))

	got, err := store.GetQualityGateConfig(ctx, id)
	require.NoError(t, err)
	require.Equal(t, cfg.MaxComplexity, got.MaxComplexity)

	cfg.MaxComplexity = 5
	require.NoError(t, store.UpsertQualityGateConfig(ctx, &cfg))

	got, err = store.GetQualityGateConfig(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 5, got.MaxComplexity)
}

func TestCICDRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateRepository(ctx, &model.Repository{Source: model.SourceUpload})
	require.NoError(t, err)

	runID, err := store.InsertCICDRun(ctx, &model.CICDRun{RepoID: id, TriggeredBy: model.TriggeredManual, Status: model.RunRunning})
	require.NoError(t, err)

	require.NoError(t, store.UpdateCICDRun(ctx, runID, model.RunPassed, `{"blockMerge":false}`))

	runs, err := store.ListCICDRuns(ctx, id)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, model.RunPassed, runs[0].Status)
	require.NotNil(t, runs[0].CompletedAt)
}
