package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/hashicorp/go-multierror"

	"github.com/sourcequal/codequal/internal/callgraph"
	"github.com/sourcequal/codequal/internal/duplication"
	"github.com/sourcequal/codequal/internal/embedindex"
	"github.com/sourcequal/codequal/internal/errs"
	"github.com/sourcequal/codequal/internal/fetch"
	"github.com/sourcequal/codequal/internal/lang"
	"github.com/sourcequal/codequal/internal/metrics"
	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/parser"
	"github.com/sourcequal/codequal/internal/repository"
	"github.com/sourcequal/codequal/internal/utils"
	"github.com/sourcequal/codequal/internal/vuln"
	"github.com/sourcequal/codequal/pkg/logger"
)

// Ingestor wires every analysis component into one Repository's pipeline:
// ingest -> parse -> (metrics || callgraph || duplication || vulns ||
// embed) -> barrier, the ordering spec §4.J mandates.
type Ingestor struct {
	scheduler      *Scheduler
	store          *repository.Store
	fetcher        *fetch.Fetcher
	parsers        *parser.Registry
	dupes          *duplication.Detector
	scanner        *vuln.Scanner
	index          *embedindex.Index
	embedder       embedindex.EmbeddingProvider
	ignorePatterns []string
	maxFileBytes   int64
	logger         logger.Logger
}

// NewIngestor wires the fixed pipeline of analysis components. index and
// embedder may both be nil, in which case the embed phase is skipped
// entirely rather than failing the barrier — semantic search is an
// additive capability, not a precondition for a repository being usable.
func NewIngestor(s *Scheduler, store *repository.Store, fetcher *fetch.Fetcher, parsers *parser.Registry,
	dupes *duplication.Detector, scanner *vuln.Scanner, index *embedindex.Index, embedder embedindex.EmbeddingProvider,
	ignorePatterns []string, maxFileBytes int64, log logger.Logger) *Ingestor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Ingestor{
		scheduler:      s,
		store:          store,
		fetcher:        fetcher,
		parsers:        parsers,
		dupes:          dupes,
		scanner:        scanner,
		index:          index,
		embedder:       embedder,
		ignorePatterns: ignorePatterns,
		maxFileBytes:   maxFileBytes,
		logger:         log,
	}
}

// Enqueue submits the ingest task for one Repository; each phase's Run
// submits the next phase's task (ingest submits parse, parse submits the
// analysis barrier), so the caller need only enqueue once per repository.
func (ing *Ingestor) Enqueue(repo *model.Repository) {
	ing.scheduler.Submit(&Task{
		RepoID:   repo.ID,
		Phase:    PhaseIngest,
		Priority: 0,
		Run:      func(ctx context.Context) error { return ing.runIngest(ctx, repo) },
		OnDone: func(err error) {
			if err != nil {
				ing.fail(repo.ID, err)
			}
		},
	})
}

func (ing *Ingestor) fail(repoID string, err error) {
	ing.logger.Error("ingest: repository %s failed: %v", repoID, err)
	_ = ing.store.UpdateRepositoryStatus(context.Background(), repoID, model.StatusFailed,
		repository.WithFailureReason(err.Error()))
}

// runIngest fetches the source tree (spec §4.B) and hands off to parse.
func (ing *Ingestor) runIngest(ctx context.Context, repo *model.Repository) error {
	if err := ing.store.UpdateRepositoryStatus(ctx, repo.ID, model.StatusCloning); err != nil {
		return err
	}

	var dir string
	var cleanup func()
	switch repo.Source {
	case model.SourceRemote:
		result, err := ing.fetcher.CloneRemote(ctx, repo.OriginURL, repo.Branch)
		if err != nil {
			return err
		}
		dir, cleanup = result.Dir, result.Cleanup
	case model.SourceUpload:
		result, err := ing.fetcher.ExtractUpload(ctx, repo.ArchivePath)
		if err != nil {
			return err
		}
		dir, cleanup = result.Dir, result.Cleanup
	default:
		return errs.New(errs.Validation, fmt.Sprintf("unknown repository source %q", repo.Source))
	}

	// The scratch tree is removed once the parse task has finished with it.
	ing.scheduler.Submit(&Task{
		RepoID:   repo.ID,
		Phase:    PhaseParse,
		Priority: 1,
		Run:      func(ctx context.Context) error { return ing.runParse(ctx, repo, dir) },
		OnDone: func(err error) {
			cleanup()
			if err != nil {
				ing.fail(repo.ID, err)
			}
		},
	})
	return nil
}

type parsedFile struct {
	file    *model.File
	result  *parser.ParseResult
	content []byte
}

// runParse walks the fetched tree (spec §4.C/§4.D), parses every
// recognised file, persists the replace-atomically Files/Symbols set, then
// fans out the analysis phases behind a barrier.
func (ing *Ingestor) runParse(ctx context.Context, repo *model.Repository, dir string) error {
	if err := ing.store.UpdateRepositoryStatus(ctx, repo.ID, model.StatusParsing); err != nil {
		return err
	}

	paths, err := discoverFiles(dir, ing.ignorePatterns)
	if err != nil {
		return errs.Wrap(errs.Resource, "walk repository tree", err)
	}

	var allFiles []*model.File
	var allSymbols []*model.Symbol
	var parsed []parsedFile
	languageCounts := make(map[lang.Language]int)

	for _, relPath := range paths {
		if ctx.Err() != nil {
			return errs.Wrap(errs.Transient, "parse phase cancelled", ctx.Err())
		}

		absPath := filepath.Join(dir, relPath)
		info, statErr := os.Stat(absPath)
		if statErr != nil {
			continue
		}

		content, readErr := os.ReadFile(absPath)
		if readErr != nil {
			continue
		}
		if lang.ShouldSkip(info, content, ing.maxFileBytes) {
			continue
		}

		l := lang.Detect(relPath, content)
		f := &model.File{
			ID:        utils.NewID(),
			Path:      filepath.ToSlash(relPath),
			Language:  string(l),
			ByteSize:  info.Size(),
			LineCount: strings.Count(string(content), "\n") + 1,
			SHA256:    sha256Hex(content),
		}

		if l == lang.Unknown {
			allFiles = append(allFiles, f)
			continue
		}
		languageCounts[l]++

		p, ok := ing.parsers.Get(l)
		if !ok {
			allFiles = append(allFiles, f)
			continue
		}

		result, parseErr := p.Parse(relPath, content)
		if parseErr != nil {
			f.ParseErr = parseErr.Error()
			allFiles = append(allFiles, f)
			continue
		}

		allFiles = append(allFiles, f)
		parsed = append(parsed, parsedFile{file: f, result: result, content: content})
	}

	for _, pf := range parsed {
		for _, sym := range pf.result.Symbols {
			sym.ID = utils.NewID()
			sym.FileID = pf.file.ID
			allSymbols = append(allSymbols, sym)
		}
	}
	if err := ing.store.ReplaceFilesAndSymbols(ctx, repo.ID, allFiles, allSymbols); err != nil {
		return err
	}

	primary := dominantLanguage(languageCounts)
	if err := ing.store.UpdateRepositoryStatus(ctx, repo.ID, model.StatusAnalyzing,
		repository.WithCounts(len(allFiles), len(allSymbols)),
		repository.WithPrimaryLanguage(primary)); err != nil {
		return err
	}

	ing.scheduler.Submit(&Task{
		RepoID:   repo.ID,
		Phase:    PhaseBarrier,
		Priority: 2,
		Run:      func(ctx context.Context) error { return ing.runAnalysisFanOut(ctx, repo, parsed) },
		OnDone: func(err error) {
			if err != nil {
				ing.fail(repo.ID, err)
				return
			}
			_ = ing.store.UpdateRepositoryStatus(context.Background(), repo.ID, model.StatusCompleted)
		},
	})
	return nil
}

// runAnalysisFanOut runs metrics, call-graph resolution, duplication, and
// vulnerability scanning in parallel, then persists each phase's output.
// This IS the barrier task: it only returns once every fan-out phase has
// either succeeded or failed (spec §4.J: "a barrier task marks the repo
// completed once all succeed").
func (ing *Ingestor) runAnalysisFanOut(ctx context.Context, repo *model.Repository, parsed []parsedFile) error {
	pathByFileID := make(map[string]string)
	for _, pf := range parsed {
		pathByFileID[pf.file.ID] = pf.file.Path
	}

	return RunBarrier(ctx, []func(ctx context.Context) error{
		func(ctx context.Context) error { return ing.runMetrics(ctx, repo, parsed) },
		func(ctx context.Context) error { return ing.runCallGraph(ctx, repo, parsed, pathByFileID) },
		func(ctx context.Context) error { return ing.runDuplication(ctx, repo, parsed) },
		func(ctx context.Context) error { return ing.runVulnScan(ctx, repo, parsed) },
		func(ctx context.Context) error { return ing.runEmbed(ctx, repo, parsed) },
	})
}

// runEmbed embeds every parsed symbol's text and upserts it into the
// semantic-search index (spec §4.I). A no-op when no index/embedder was
// configured.
func (ing *Ingestor) runEmbed(ctx context.Context, repo *model.Repository, parsed []parsedFile) error {
	if ing.index == nil || ing.embedder == nil {
		return nil
	}
	var errAgg *multierror.Error
	for _, pf := range parsed {
		l := pf.file.Language
		for i, sym := range pf.result.Symbols {
			if i >= len(pf.result.SymbolText) || pf.result.SymbolText[i] == "" {
				continue
			}
			if err := ing.index.EmbedAndUpsert(ctx, ing.embedder, sym.ID, pf.result.SymbolText[i], l, repo.ID); err != nil {
				errAgg = multierror.Append(errAgg, fmt.Errorf("embed %s: %w", sym.ID, err))
			}
		}
	}
	return errAgg.ErrorOrNil()
}

// runMetrics computes MetricsAnalyzer results per symbol and persists them
// by re-running ReplaceFilesAndSymbols with the enriched symbols.
func (ing *Ingestor) runMetrics(ctx context.Context, repo *model.Repository, parsed []parsedFile) error {
	var files []*model.File
	var symbols []*model.Symbol
	for _, pf := range parsed {
		files = append(files, pf.file)
		for i, sym := range pf.result.Symbols {
			l := lang.Language(pf.file.Language)
			var text string
			if i < len(pf.result.SymbolText) {
				text = pf.result.SymbolText[i]
			}
			metrics.ApplyTo(sym, metrics.Analyze(l, text))
			symbols = append(symbols, sym)
		}
	}
	return ing.store.ReplaceFilesAndSymbols(ctx, repo.ID, files, symbols)
}

// runCallGraph resolves every parsed call site to a Symbol ID (the
// boundary callgraph.Resolve expects) and persists the resolved edges.
func (ing *Ingestor) runCallGraph(ctx context.Context, repo *model.Repository, parsed []parsedFile, pathByFileID map[string]string) error {
	var allSymbols []*model.Symbol
	var pending []callgraph.PendingCall
	for _, pf := range parsed {
		for _, call := range pf.result.Calls {
			if call.FromSymbolIndex < 0 || call.FromSymbolIndex >= len(pf.result.Symbols) {
				continue
			}
			from := pf.result.Symbols[call.FromSymbolIndex]
			pending = append(pending, callgraph.PendingCall{
				FromSymbolID: from.ID,
				FileID:       pf.file.ID,
				ToName:       call.ToName,
				Line:         call.Line,
			})
		}
		allSymbols = append(allSymbols, pf.result.Symbols...)
	}

	edges := callgraph.Resolve(allSymbols, pending)
	if err := ing.store.BulkInsertCallEdges(ctx, edges); err != nil {
		return err
	}

	var importEdges []*model.ImportEdge
	for _, pf := range parsed {
		for _, imp := range pf.result.Imports {
			importEdges = append(importEdges, &model.ImportEdge{
				FromFileID:   pf.file.ID,
				ToModuleName: imp.ToModuleName,
				Kind:         model.ImportModule,
			})
		}
	}
	return ing.store.BulkInsertImportEdges(ctx, importEdges)
}

// runDuplication sketches every parsed file and persists near-duplicate
// pairs above the detector's similarity threshold.
func (ing *Ingestor) runDuplication(ctx context.Context, repo *model.Repository, parsed []parsedFile) error {
	var sketches []duplication.FileSketch
	for _, pf := range parsed {
		content := strings.Join(pf.result.SymbolText, "\n")
		if content == "" {
			continue
		}
		sketches = append(sketches, ing.dupes.BuildSketch(pf.file.ID, []byte(content)))
	}
	pairs := ing.dupes.FindPairs(sketches)
	return ing.store.ReplaceDuplicationPairs(ctx, repo.ID, pairs)
}

// runVulnScan runs the rule catalogue over every parsed file's full text
// and persists the coalesced findings.
func (ing *Ingestor) runVulnScan(ctx context.Context, repo *model.Repository, parsed []parsedFile) error {
	var all []*model.Vulnerability
	for _, pf := range parsed {
		all = append(all, ing.scanner.ScanFile(pf.file.ID, string(pf.content))...)
	}
	return ing.store.ReplaceVulnerabilities(ctx, repo.ID, all)
}

func sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func dominantLanguage(counts map[lang.Language]int) string {
	var best lang.Language
	bestCount := -1
	for l, c := range counts {
		if c > bestCount {
			best, bestCount = l, c
		}
	}
	return string(best)
}

// discoverFiles walks root, applying .gitignore-style exclusion patterns
// on top of any configured default ignores, and returns repo-relative
// paths in deterministic (directory walk) order.
func discoverFiles(root string, patterns []string) ([]string, error) {
	matcher := ignore.CompileIgnoreLines(patterns...)

	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		relSlash := filepath.ToSlash(rel)
		if matcher.MatchesPath(relSlash) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	return out, err
}
