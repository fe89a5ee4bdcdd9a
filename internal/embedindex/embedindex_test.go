package embedindex

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sourcequal/codequal/pkg/logger"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "vectors"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestUpsertNormalizesVector(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), "s1", []float32{3, 4}, "python", "repo1"))

	idx.mu.RLock()
	e := idx.byID["s1"]
	idx.mu.RUnlock()

	require.InDelta(t, 1.0, float64(e.vector[0])*float64(e.vector[0])+float64(e.vector[1])*float64(e.vector[1]), 1e-6)
}

func TestQueryReturnsExactMatchFirst(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), "s1", []float32{1, 0}, "python", "repo1"))
	require.NoError(t, idx.Upsert(context.Background(), "s2", []float32{0, 1}, "python", "repo1"))

	matches := idx.Query([]float32{1, 0}, 0.5, Filter{}, 5)
	require.Len(t, matches, 1)
	require.Equal(t, "s1", matches[0].SymbolID)
	require.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
}

func TestQueryFiltersByLanguageAndRepo(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), "py1", []float32{1, 0}, "python", "repoA"))
	require.NoError(t, idx.Upsert(context.Background(), "c1", []float32{1, 0}, "c", "repoA"))
	require.NoError(t, idx.Upsert(context.Background(), "py2", []float32{1, 0}, "python", "repoB"))

	matches := idx.Query([]float32{1, 0}, 0.0, Filter{Language: "python", RepoID: "repoA"}, 10)
	require.Len(t, matches, 1)
	require.Equal(t, "py1", matches[0].SymbolID)
}

func TestQueryBreaksTiesBySymbolID(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), "zzz", []float32{1, 0}, "python", "r"))
	require.NoError(t, idx.Upsert(context.Background(), "aaa", []float32{1, 0}, "python", "r"))

	matches := idx.Query([]float32{1, 0}, 0.0, Filter{}, 10)
	require.Len(t, matches, 2)
	require.Equal(t, "aaa", matches[0].SymbolID)
	require.Equal(t, "zzz", matches[1].SymbolID)
}

func TestQueryRespectsK(t *testing.T) {
	idx := newTestIndex(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, idx.Upsert(context.Background(), id, []float32{1, 0}, "python", "r"))
	}
	matches := idx.Query([]float32{1, 0}, 0.0, Filter{}, 2)
	require.Len(t, matches, 2)
}

func TestUpsertRejectsEmptyVector(t *testing.T) {
	idx := newTestIndex(t)
	err := idx.Upsert(context.Background(), "s1", nil, "python", "r")
	require.Error(t, err)
}

func TestReopenRebuildsMirrorFromLevelDB(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vectors")
	idx, err := Open(dir, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(), "s1", []float32{1, 0}, "python", "r"))
	require.NoError(t, idx.Close())

	reopened, err := Open(dir, logger.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	matches := reopened.Query([]float32{1, 0}, 0.5, Filter{}, 1)
	require.Len(t, matches, 1)
	require.Equal(t, "s1", matches[0].SymbolID)
}

type fakeProvider struct {
	vector []float32
	err    error
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

func TestEmbedAndUpsertPropagatesProviderError(t *testing.T) {
	idx := newTestIndex(t)
	provider := &fakeProvider{err: errors.New("provider down")}
	err := idx.EmbedAndUpsert(context.Background(), provider, "s1", "text", "python", "r")
	require.Error(t, err)
}

func TestEmbedAndUpsertStoresProviderVector(t *testing.T) {
	idx := newTestIndex(t)
	provider := &fakeProvider{vector: []float32{0, 1}}
	require.NoError(t, idx.EmbedAndUpsert(context.Background(), provider, "s1", "text", "python", "r"))

	matches := idx.Query([]float32{0, 1}, 0.9, Filter{}, 1)
	require.Len(t, matches, 1)
}

func TestRepoIDsListsDistinctRepos(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), "s1", []float32{1, 0}, "python", "repo1"))
	require.NoError(t, idx.Upsert(context.Background(), "s2", []float32{0, 1}, "python", "repo1"))
	require.NoError(t, idx.Upsert(context.Background(), "s3", []float32{1, 1}, "python", "repo2"))

	ids := idx.RepoIDs()
	require.ElementsMatch(t, []string{"repo1", "repo2"}, ids)
}

func TestDeleteByRepoRemovesOnlyMatchingEntries(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), "s1", []float32{1, 0}, "python", "repo1"))
	require.NoError(t, idx.Upsert(context.Background(), "s2", []float32{0, 1}, "python", "repo2"))

	n, err := idx.DeleteByRepo(context.Background(), "repo1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	matches := idx.Query([]float32{1, 0}, 0.5, Filter{}, 5)
	require.Empty(t, matches)
	matches = idx.Query([]float32{0, 1}, 0.5, Filter{}, 5)
	require.Len(t, matches, 1)
}
