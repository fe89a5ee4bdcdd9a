package httpapi

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sourcequal/codequal/internal/callgraph"
	"github.com/sourcequal/codequal/internal/embedindex"
	"github.com/sourcequal/codequal/internal/errs"
	"github.com/sourcequal/codequal/internal/gate"
	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/repository"
	"github.com/sourcequal/codequal/internal/scheduler"
	"github.com/sourcequal/codequal/internal/utils"
	"github.com/sourcequal/codequal/pkg/logger"
)

// Handlers is the thin adapter between the gin routes of spec §6 and the
// core engine components (spec §6: "external collaborator, not part of the
// core but specified here because CI and UI depend on it").
type Handlers struct {
	store      *repository.Store
	ingestor   *scheduler.Ingestor
	gate       *gate.Engine
	index      *embedindex.Index
	embedder   embedindex.EmbeddingProvider
	uploadsDir string
	logger     logger.Logger
}

func NewHandlers(store *repository.Store, ingestor *scheduler.Ingestor, gateEngine *gate.Engine,
	index *embedindex.Index, embedder embedindex.EmbeddingProvider, uploadsDir string, log logger.Logger) *Handlers {
	return &Handlers{
		store:      store,
		ingestor:   ingestor,
		gate:       gateEngine,
		index:      index,
		embedder:   embedder,
		uploadsDir: uploadsDir,
		logger:     log,
	}
}

// writeError maps an internal errs.Kind to the nearest HTTP status, per
// spec §7's "surfaced synchronously with a client-error status" rule for
// Validation, and a generic 500 for everything else.
func writeError(c *gin.Context, err error) {
	switch {
	case err == errs.ErrRecordNotFound:
		notFound(c, "resource not found")
	case errs.Is(err, errs.Validation):
		badRequest(c, err.Error())
	case errs.Is(err, errs.Integrity):
		failWithCode(c, http.StatusConflict, "4091", err.Error())
	default:
		internalError(c, err.Error())
	}
}

// SubmitRepo handles POST /repos/submit: either a multipart "archive" file
// field (upload) or a JSON/form body with origin_url+branch (remote).
func (h *Handlers) SubmitRepo(c *gin.Context) {
	if originURL := c.PostForm("origin_url"); originURL != "" {
		branch := c.DefaultPostForm("branch", "main")
		repo := &model.Repository{Source: model.SourceRemote, OriginURL: originURL, Branch: branch}
		h.submit(c, repo)
		return
	}

	file, err := c.FormFile("archive")
	if err != nil {
		badRequest(c, "either origin_url or an archive file is required")
		return
	}

	if err := os.MkdirAll(h.uploadsDir, 0755); err != nil {
		internalError(c, "failed to prepare upload storage")
		return
	}
	dest := filepath.Join(h.uploadsDir, utils.NewID()+".zip")
	if err := c.SaveUploadedFile(file, dest); err != nil {
		internalError(c, "failed to store uploaded archive")
		return
	}

	repo := &model.Repository{Source: model.SourceUpload, ArchivePath: dest}
	h.submit(c, repo)
}

func (h *Handlers) submit(c *gin.Context, repo *model.Repository) {
	id, err := h.store.CreateRepository(c.Request.Context(), repo)
	if err != nil {
		writeError(c, err)
		return
	}
	repo.ID = id
	h.ingestor.Enqueue(repo)
	created(c, gin.H{"id": id, "status": repo.Status})
}

// GetRepo handles GET /repos/:id.
func (h *Handlers) GetRepo(c *gin.Context) {
	if !utils.ValidateID(c.Param("id")) {
		badRequest(c, "invalid repository id")
		return
	}
	repo, err := h.store.GetRepository(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, repo)
}

// ListFiles handles GET /repos/:id/files.
func (h *Handlers) ListFiles(c *gin.Context) {
	files, err := h.store.ListFiles(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, files)
}

// FileContent handles GET /repos/:id/files/<path>/content; *path is a gin
// wildcard so nested repo-relative paths with slashes are matched whole.
func (h *Handlers) FileContent(c *gin.Context) {
	repoID := c.Param("id")
	path := strings.TrimSuffix(strings.TrimPrefix(c.Param("path"), "/"), "/content")
	if !utils.ValidateFilePath(path) {
		badRequest(c, "invalid file path")
		return
	}
	file, err := h.store.GetFileByPath(c.Request.Context(), repoID, path)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, file)
}

// ListSymbols handles GET /repos/:id/symbols with page/size pagination,
// spec §6's "paged symbol list".
func (h *Handlers) ListSymbols(c *gin.Context) {
	repoID := c.Param("id")
	if !utils.ValidateLanguage(c.Query("language")) {
		badRequest(c, "unsupported language filter")
		return
	}
	filter := repository.SymbolFilter{Language: c.Query("language")}
	if kind := c.Query("kind"); kind != "" {
		filter.Kind = model.SymbolKind(kind)
	}

	symbols, err := h.store.ListSymbols(c.Request.Context(), repoID, filter)
	if err != nil {
		writeError(c, err)
		return
	}

	page, size := utils.ValidatePageParams(queryIntOr(c, "page", 1), queryIntOr(c, "size", 50))
	start := (page - 1) * size
	if start > len(symbols) {
		start = len(symbols)
	}
	end := start + size
	if end > len(symbols) {
		end = len(symbols)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    symbols[start:end],
		"pagination": gin.H{
			"page": page, "size": size, "total": len(symbols),
		},
	})
}

// CallGraph handles GET /repos/:id/call-graph.
func (h *Handlers) CallGraph(c *gin.Context) {
	repoID := c.Param("id")
	ctx := c.Request.Context()
	symbols, err := h.store.ListSymbols(ctx, repoID, repository.SymbolFilter{})
	if err != nil {
		writeError(c, err)
		return
	}
	edges, err := h.store.ListCallEdges(ctx, repoID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"nodes": symbols, "edges": edges})
}

// Dependencies handles GET /repos/:id/dependencies: the file-level import
// graph.
func (h *Handlers) Dependencies(c *gin.Context) {
	edges, err := h.store.ListImportEdges(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, edges)
}

// DeadCode handles GET /repos/:id/dead-code.
func (h *Handlers) DeadCode(c *gin.Context) {
	repoID := c.Param("id")
	ctx := c.Request.Context()
	symbols, err := h.store.ListSymbols(ctx, repoID, repository.SymbolFilter{})
	if err != nil {
		writeError(c, err)
		return
	}
	edges, err := h.store.ListCallEdges(ctx, repoID)
	if err != nil {
		writeError(c, err)
		return
	}
	files, err := h.store.ListFiles(ctx, repoID)
	if err != nil {
		writeError(c, err)
		return
	}
	pathByFileID := make(map[string]string, len(files))
	for _, f := range files {
		pathByFileID[f.ID] = f.Path
	}
	dead := callgraph.FindDeadCode(symbols, edges, func(fileID string) string { return pathByFileID[fileID] })
	ok(c, dead)
}

// CircularDeps handles GET /repos/:id/circular-deps.
func (h *Handlers) CircularDeps(c *gin.Context) {
	edges, err := h.store.ListCallEdges(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, callgraph.FindCycles(edges))
}

// semanticSearchRequest is the POST /search/semantic body, spec §6:
// "{query, threshold?, language?, repo?}".
type semanticSearchRequest struct {
	Query     string  `json:"query" binding:"required"`
	Threshold float64 `json:"threshold"`
	Language  string  `json:"language"`
	Repo      string  `json:"repo"`
}

// SemanticSearch handles POST /search/semantic.
func (h *Handlers) SemanticSearch(c *gin.Context) {
	if h.embedder == nil || h.index == nil {
		failWithCode(c, http.StatusServiceUnavailable, "5031", "semantic search is not configured")
		return
	}

	var req semanticSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "query is required")
		return
	}
	if req.Threshold == 0 {
		req.Threshold = 0.75
	}
	if !utils.ValidateLanguage(req.Language) {
		badRequest(c, "unsupported language filter")
		return
	}

	vector, err := h.embedder.Embed(c.Request.Context(), req.Query)
	if err != nil {
		writeError(c, err)
		return
	}

	matches := h.index.Query(vector, req.Threshold, embedindex.Filter{Language: req.Language, RepoID: req.Repo}, 20)
	ok(c, matches)
}

// GetQualityGate handles GET /quality-gate/:repo.
func (h *Handlers) GetQualityGate(c *gin.Context) {
	cfg, err := h.store.GetQualityGateConfig(c.Request.Context(), c.Param("repo"))
	if err != nil {
		if err == errs.ErrRecordNotFound {
			ok(c, model.DefaultQualityGateConfig(c.Param("repo")))
			return
		}
		writeError(c, err)
		return
	}
	ok(c, cfg)
}

// UpdateQualityGate handles PUT /quality-gate/:repo.
func (h *Handlers) UpdateQualityGate(c *gin.Context) {
	var cfg model.QualityGateConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, "invalid quality gate configuration")
		return
	}
	cfg.RepoID = c.Param("repo")
	if err := h.store.UpsertQualityGateConfig(c.Request.Context(), &cfg); err != nil {
		writeError(c, err)
		return
	}
	ok(c, cfg)
}

// RunQualityGateCheck handles POST /quality-gate/:repo/check.
func (h *Handlers) RunQualityGateCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), scheduler.GateCheckTimeout)
	defer cancel()

	triggeredBy := model.TriggeredManual
	if c.Query("triggered_by") == string(model.TriggeredPreCommit) {
		triggeredBy = model.TriggeredPreCommit
	}
	result, err := h.gate.Check(ctx, c.Param("repo"), triggeredBy, "", "", 0)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, result)
}

// Webhook handles POST /webhook/ci.
func (h *Handlers) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "failed to read webhook payload")
		return
	}
	result, err := h.gate.HandleWebhook(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}
	if result == nil {
		ok(c, gin.H{"ignored": true})
		return
	}
	ok(c, result)
}

// Runs handles GET /runs/:repo.
func (h *Handlers) Runs(c *gin.Context) {
	runs, err := h.store.ListCICDRuns(c.Request.Context(), c.Param("repo"))
	if err != nil {
		writeError(c, err)
		return
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	ok(c, runs)
}

// Report handles GET /report/:run, rendering an HTML quality-gate report.
func (h *Handlers) Report(c *gin.Context) {
	run, err := h.store.GetCICDRun(c.Request.Context(), c.Param("run"))
	if err != nil {
		writeError(c, err)
		return
	}
	html, err := renderReport(run)
	if err != nil {
		internalError(c, "failed to render report")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func queryIntOr(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
