package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sourcequal/codequal/internal/database"
	"github.com/sourcequal/codequal/internal/duplication"
	"github.com/sourcequal/codequal/internal/embedindex"
	"github.com/sourcequal/codequal/internal/fetch"
	"github.com/sourcequal/codequal/internal/lang"
	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/parser"
	"github.com/sourcequal/codequal/internal/repository"
	"github.com/sourcequal/codequal/internal/vuln"
	"github.com/sourcequal/codequal/pkg/logger"
)

type constantEmbedder struct{}

func (constantEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func newTestIngestor(t *testing.T, index *embedindex.Index, embedder embedindex.EmbeddingProvider) (*Ingestor, *repository.Store) {
	t.Helper()
	dir := t.TempDir()
	m := database.NewManager(database.DefaultConfig(dir), logger.NewNop())
	require.NoError(t, m.Initialize())
	store := repository.NewStore(m.DB(), logger.NewNop())

	sch := New(1, logger.NewNop())
	fetcher := fetch.NewFetcher(t.TempDir(), 512<<20, logger.NewNop())
	ing := NewIngestor(sch, store, fetcher, parser.NewRegistry(), duplication.NewDetector(),
		vuln.NewScanner(nil, logger.NewNop()), index, embedder, nil, 1<<20, logger.NewNop())
	return ing, store
}

func TestRunEmbedIsNoopWithoutIndex(t *testing.T) {
	ing, _ := newTestIngestor(t, nil, nil)
	parsed := []parsedFile{{
		file:   &model.File{ID: "f1", Language: "python"},
		result: &parser.ParseResult{Symbols: []*model.Symbol{{ID: "s1"}}, SymbolText: []string{"def f(): pass"}},
	}}
	require.NoError(t, ing.runEmbed(context.Background(), &model.Repository{ID: "r1"}, parsed))
}

func TestRunEmbedUpsertsParsedSymbols(t *testing.T) {
	idx, err := embedindex.Open(t.TempDir()+"/vectors", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ing, _ := newTestIngestor(t, idx, constantEmbedder{})
	parsed := []parsedFile{{
		file:   &model.File{ID: "f1", Language: "python"},
		result: &parser.ParseResult{Symbols: []*model.Symbol{{ID: "s1"}}, SymbolText: []string{"def f(): pass"}},
	}}
	require.NoError(t, ing.runEmbed(context.Background(), &model.Repository{ID: "r1"}, parsed))

	matches := idx.Query([]float32{1, 0, 0}, 0.5, embedindex.Filter{}, 5)
	require.Len(t, matches, 1)
	require.Equal(t, "s1", matches[0].SymbolID)
}

func TestRunEmbedSkipsSymbolsWithoutText(t *testing.T) {
	idx, err := embedindex.Open(t.TempDir()+"/vectors", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ing, _ := newTestIngestor(t, idx, constantEmbedder{})
	parsed := []parsedFile{{
		file:   &model.File{ID: "f1", Language: "python"},
		result: &parser.ParseResult{Symbols: []*model.Symbol{{ID: "s1"}}, SymbolText: []string{""}},
	}}
	require.NoError(t, ing.runEmbed(context.Background(), &model.Repository{ID: "r1"}, parsed))

	matches := idx.Query([]float32{1, 0, 0}, 0.5, embedindex.Filter{}, 5)
	require.Len(t, matches, 0)
}

func TestDiscoverFilesSkipsIgnoredPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.py"), []byte("print(1)"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "dep.js"), []byte("ignored"), 0644))

	paths, err := discoverFiles(dir, []string{"node_modules/"})
	require.NoError(t, err)
	require.Contains(t, paths, "keep.py")
	require.NotContains(t, paths, filepath.Join("node_modules", "dep.js"))
}

func TestDominantLanguagePicksHighestCount(t *testing.T) {
	counts := map[lang.Language]int{lang.Python: 3, lang.C: 1}
	require.Equal(t, "python", dominantLanguage(counts))
}
