package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sourcequal/codequal/internal/database"
	"github.com/sourcequal/codequal/internal/duplication"
	"github.com/sourcequal/codequal/internal/embedindex"
	"github.com/sourcequal/codequal/internal/fetch"
	"github.com/sourcequal/codequal/internal/gate"
	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/parser"
	"github.com/sourcequal/codequal/internal/repository"
	"github.com/sourcequal/codequal/internal/scheduler"
	"github.com/sourcequal/codequal/internal/vuln"
	"github.com/sourcequal/codequal/pkg/logger"
)

type fakeEmbedder struct {
	vector []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}

func newTestServer(t *testing.T) (*Server, *repository.Store) {
	t.Helper()
	dir := t.TempDir()
	m := database.NewManager(database.DefaultConfig(dir), logger.NewNop())
	require.NoError(t, m.Initialize())
	store := repository.NewStore(m.DB(), logger.NewNop())

	sch := scheduler.New(1, logger.NewNop())
	fetcher := fetch.NewFetcher(t.TempDir(), 512<<20, logger.NewNop())

	idx, err := embedindex.Open(t.TempDir()+"/vectors", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}

	ingestor := scheduler.NewIngestor(sch, store, fetcher, parser.NewRegistry(),
		duplication.NewDetector(), vuln.NewScanner(nil, logger.NewNop()), idx, embedder, nil, 1<<20, logger.NewNop())

	gateEngine := gate.NewEngine(store)
	handlers := NewHandlers(store, ingestor, gateEngine, idx, embedder, t.TempDir(), logger.NewNop())

	return NewServer(handlers, "", logger.NewNop()), store
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitRemoteRepoCreatesPendingRepository(t *testing.T) {
	srv, store := newTestServer(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("origin_url", "https://example.com/repo.git"))
	require.NoError(t, writer.WriteField("branch", "main"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/repos/submit", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBody(t, rec)
	data := resp["data"].(map[string]interface{})
	id := data["id"].(string)
	require.NotEmpty(t, id)

	repo, err := store.GetRepository(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.SourceRemote, repo.Source)
}

func TestSubmitWithoutOriginOrArchiveFails(t *testing.T) {
	srv, _ := newTestServer(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/repos/submit", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRepoReturnsNotFoundForUnknownID(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/repos/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRepoReturnsCreatedRepository(t *testing.T) {
	srv, store := newTestServer(t)
	id, err := store.CreateRepository(context.Background(), &model.Repository{Source: model.SourceRemote, OriginURL: "u", Branch: "main"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/repos/"+id, nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	data := resp["data"].(map[string]interface{})
	require.Equal(t, id, data["id"])
}

func TestListSymbolsPaginates(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	repoID, err := store.CreateRepository(ctx, &model.Repository{Source: model.SourceRemote, OriginURL: "u2", Branch: "main"})
	require.NoError(t, err)

	files := []*model.File{{ID: "f1", RepoID: repoID, Path: "a.go", Language: "go"}}
	symbols := []*model.Symbol{
		{ID: "s1", FileID: "f1", Name: "A", Kind: model.KindFunction},
		{ID: "s2", FileID: "f1", Name: "B", Kind: model.KindFunction},
		{ID: "s3", FileID: "f1", Name: "C", Kind: model.KindFunction},
	}
	require.NoError(t, store.ReplaceFilesAndSymbols(ctx, repoID, files, symbols))

	req := httptest.NewRequest(http.MethodGet, "/repos/"+repoID+"/symbols?page=1&size=2", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	data := resp["data"].([]interface{})
	require.Len(t, data, 2)
	pagination := resp["pagination"].(map[string]interface{})
	require.Equal(t, float64(3), pagination["total"])
}

func TestSemanticSearchReturnsMatches(t *testing.T) {
	srv, _ := newTestServer(t)

	reqBody, _ := json.Marshal(semanticSearchRequest{Query: "find this"})
	req := httptest.NewRequest(http.MethodPost, "/search/semantic", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetQualityGateReturnsDefaultsWhenUnset(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/quality-gate/repo-x", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	data := resp["data"].(map[string]interface{})
	require.Equal(t, float64(20), data["maxComplexity"])
}

func TestUpdateQualityGatePersistsThresholds(t *testing.T) {
	srv, store := newTestServer(t)
	repoID, err := store.CreateRepository(context.Background(), &model.Repository{Source: model.SourceRemote, OriginURL: "u3", Branch: "main"})
	require.NoError(t, err)
	cfg := model.QualityGateConfig{MaxComplexity: 15, MinQualityScore: 70, BlockOnFailure: true}
	payload, _ := json.Marshal(cfg)

	req := httptest.NewRequest(http.MethodPut, "/quality-gate/"+repoID, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	saved, err := store.GetQualityGateConfig(context.Background(), repoID)
	require.NoError(t, err)
	require.Equal(t, 15, saved.MaxComplexity)
}

func TestRunQualityGateCheckPersistsRun(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	repoID, err := store.CreateRepository(ctx, &model.Repository{Source: model.SourceRemote, OriginURL: "u3", Branch: "main"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/quality-gate/"+repoID+"/check", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	runs, err := store.ListCICDRuns(ctx, repoID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestWebhookIgnoresUnknownEventType(t *testing.T) {
	srv, _ := newTestServer(t)
	payload := []byte(`{"event_type":"closed"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/ci", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	data := resp["data"].(map[string]interface{})
	require.Equal(t, true, data["ignored"])
}

func TestWebhookRejectsBadSignatureWhenSecretConfigured(t *testing.T) {
	dir := t.TempDir()
	m := database.NewManager(database.DefaultConfig(dir), logger.NewNop())
	require.NoError(t, m.Initialize())
	store := repository.NewStore(m.DB(), logger.NewNop())
	gateEngine := gate.NewEngine(store)
	sch := scheduler.New(1, logger.NewNop())
	fetcher := fetch.NewFetcher(t.TempDir(), 512<<20, logger.NewNop())
	idx, err := embedindex.Open(t.TempDir()+"/vectors", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	embedder := &fakeEmbedder{}
	ingestor := scheduler.NewIngestor(sch, store, fetcher, parser.NewRegistry(),
		duplication.NewDetector(), vuln.NewScanner(nil, logger.NewNop()), idx, embedder, nil, 1<<20, logger.NewNop())
	handlers := NewHandlers(store, ingestor, gateEngine, idx, embedder, t.TempDir(), logger.NewNop())
	srv := NewServer(handlers, "top-secret", logger.NewNop())

	payload := []byte(`{"event_type":"opened"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/ci", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReportReturnsNotFoundForUnknownRun(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/report/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
