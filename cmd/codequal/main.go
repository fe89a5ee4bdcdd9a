// cmd/codequal/main.go - program entry
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/sourcequal/codequal/internal/config"
	"github.com/sourcequal/codequal/internal/database"
	"github.com/sourcequal/codequal/internal/duplication"
	"github.com/sourcequal/codequal/internal/embedindex"
	"github.com/sourcequal/codequal/internal/embedprovider"
	"github.com/sourcequal/codequal/internal/fetch"
	"github.com/sourcequal/codequal/internal/gate"
	"github.com/sourcequal/codequal/internal/httpapi"
	"github.com/sourcequal/codequal/internal/jobs"
	"github.com/sourcequal/codequal/internal/lang"
	"github.com/sourcequal/codequal/internal/parser"
	"github.com/sourcequal/codequal/internal/parser/asm"
	"github.com/sourcequal/codequal/internal/parser/c"
	"github.com/sourcequal/codequal/internal/parser/cobol"
	"github.com/sourcequal/codequal/internal/parser/python"
	"github.com/sourcequal/codequal/internal/repository"
	"github.com/sourcequal/codequal/internal/scheduler"
	"github.com/sourcequal/codequal/internal/telemetry"
	"github.com/sourcequal/codequal/internal/vuln"
	"github.com/sourcequal/codequal/pkg/logger"
)

var (
	// set by the linker during build
	version string
)

func main() {
	if version != "" {
		fmt.Printf("codequal %s\n", version)
	}

	configFile := flag.String("config", "", "path to a TOML config file overlaying gate defaults and scan ignore patterns")
	logLevel := flag.String("loglevel", "info", "log level (debug, info, warn, error)")
	enablePprof := flag.Bool("pprof", false, "enable pprof profiling")
	pprofAddr := flag.String("pprof-addr", "localhost:6060", "pprof server address")
	flag.Parse()

	cfg := config.Snapshot()
	if *configFile != "" {
		if err := config.LoadTOML(*configFile); err != nil {
			fmt.Printf("failed to load config file: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Snapshot()
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Printf("failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	logsDir, err := func() (string, error) {
		dir := cfg.DataDir + "/logs"
		return dir, os.MkdirAll(dir, 0755)
	}()
	if err != nil {
		fmt.Printf("failed to create logs directory: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := logger.NewLogger(logsDir, *logLevel)
	if err != nil {
		fmt.Printf("failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("codequal starting, version=%s", version)

	mp, err := telemetry.NewMeterProvider()
	if err != nil {
		appLogger.Fatal("failed to initialize telemetry: %v", err)
		return
	}
	otel.SetMeterProvider(mp)

	dbManager := database.NewManager(database.DefaultConfig(cfg.DataDir), appLogger)
	if err := dbManager.Initialize(); err != nil {
		appLogger.Fatal("failed to initialize database: %v", err)
		return
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			appLogger.Error("failed to close database: %v", err)
		}
	}()

	store := repository.NewStore(dbManager.DB(), appLogger)

	fetcher := fetch.NewFetcher(cfg.DataDir+"/scratch", cfg.IngestSizeCapBytes, appLogger)

	parsers := parser.NewRegistry()
	parsers.Register(lang.Python, python.New())
	parsers.Register(lang.C, c.New())
	parsers.Register(lang.COBOL, cobol.New())
	parsers.Register(lang.Assembly, asm.New())

	dupes := duplication.NewDetector()
	scanner := vuln.NewScanner(nil, appLogger) // no LLMProvider wired by default; rule catalogue still runs

	index, embedder := setupSemanticSearch(cfg, appLogger)
	if index != nil {
		defer func() {
			if err := index.Close(); err != nil {
				appLogger.Error("failed to close embedding index: %v", err)
			}
		}()
	}

	sched := scheduler.New(cfg.Workers, appLogger)
	ingestor := scheduler.NewIngestor(sched, store, fetcher, parsers, dupes, scanner, index, embedder,
		cfg.ScanIgnore, int64(cfg.ScanMaxFileMB)<<20, appLogger)

	gateEngine := gate.NewEngine(store)

	handlers := httpapi.NewHandlers(store, ingestor, gateEngine, index, embedder, cfg.UploadsDir, appLogger)
	server := httpapi.NewServer(handlers, cfg.WebhookSigningSecret, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	cleanupJob := jobs.NewIndexCleanup(store, index, 0, appLogger)
	cleanupJob.Start(ctx)
	statusJob := jobs.NewStatusChecker(store, 0, 0, appLogger)
	statusJob.Start(ctx)

	if *enablePprof {
		go servePprof(*pprofAddr, appLogger)
	}

	httpErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			httpErrChan <- err
		}
		close(httpErrChan)
	}()

	select {
	case err := <-httpErrChan:
		if err != nil {
			appLogger.Error("HTTP server failed to start: %v", err)
			cancel()
			return
		}
	case <-time.After(2 * time.Second):
		appLogger.Info("HTTP server started successfully on %s", cfg.HTTPAddr)
	}

	appLogger.Info("codequal started successfully")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	appLogger.Info("received shutdown signal, shutting down gracefully...")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown error: %v", err)
	}
	if err := telemetry.Shutdown(shutdownCtx, mp); err != nil {
		appLogger.Error("telemetry shutdown error: %v", err)
	}

	appLogger.Info("codequal has been successfully shut down")
}

// setupSemanticSearch opens the vector index and, if an embedding backend is
// configured via EMBEDDING_API_KEY/EMBEDDING_BASE_URL, builds the HTTP
// provider that feeds it. With no backend configured, the index still opens
// (so ingested symbols accumulate for when one is added later) but no
// embedder is returned, and the ingest pipeline's embed phase — and the
// semantic search endpoint — degrade to a documented no-op/503.
func setupSemanticSearch(cfg *config.Config, log logger.Logger) (*embedindex.Index, embedindex.EmbeddingProvider) {
	index, err := embedindex.Open(cfg.VectorIndexDir, log)
	if err != nil {
		log.Error("failed to open embedding index, semantic search disabled: %v", err)
		return nil, nil
	}

	if cfg.EmbeddingAPIKey == "" || cfg.EmbeddingBaseURL == "" {
		log.Info("no embedding backend configured (EMBEDDING_API_KEY/EMBEDDING_BASE_URL unset), semantic search disabled")
		return index, nil
	}

	provider, err := embedprovider.NewHTTPProvider(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel, cfg.ProviderTimeout, log)
	if err != nil {
		log.Error("failed to initialize embedding provider, semantic search disabled: %v", err)
		return index, nil
	}
	return index, provider
}

func servePprof(addr string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))

	log.Info("pprof server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Error("pprof server error: %v", err)
	}
}
