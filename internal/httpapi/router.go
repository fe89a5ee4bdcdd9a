// Package httpapi is the thin REST adapter of spec §6: gin routes that
// delegate to the core engine packages, following the teacher's
// server/handler split (internal/server sets up gin, internal/handler holds
// the business logic — collapsed here into one package per route group).
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sourcequal/codequal/pkg/logger"
)

// Server owns the gin engine and the underlying net/http.Server, mirroring
// the teacher's server.Server interface.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	logger     logger.Logger
}

// NewServer builds the gin engine, wires middleware and routes, and returns
// a Server ready for Start.
func NewServer(h *Handlers, webhookSecret string, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(recoveryMiddleware(log))
	engine.Use(loggingMiddleware(log))
	engine.Use(corsMiddleware())
	engine.Use(securityMiddleware())
	engine.Use(rateLimitMiddleware(log))

	engine.GET("/health", func(c *gin.Context) {
		ok(c, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	repos := engine.Group("/repos")
	{
		repos.POST("/submit", h.SubmitRepo)
		repos.GET("/:id", h.GetRepo)
		repos.GET("/:id/files", h.ListFiles)
		repos.GET("/:id/files/*path", h.FileContent)
		repos.GET("/:id/symbols", h.ListSymbols)
		repos.GET("/:id/call-graph", h.CallGraph)
		repos.GET("/:id/dependencies", h.Dependencies)
		repos.GET("/:id/dead-code", h.DeadCode)
		repos.GET("/:id/circular-deps", h.CircularDeps)
	}

	engine.POST("/search/semantic", h.SemanticSearch)

	gateGroup := engine.Group("/quality-gate")
	{
		gateGroup.GET("/:repo", h.GetQualityGate)
		gateGroup.PUT("/:repo", h.UpdateQualityGate)
		gateGroup.POST("/:repo/check", h.RunQualityGateCheck)
	}

	engine.POST("/webhook/ci", webhookSignatureMiddleware(webhookSecret, log), h.Webhook)
	engine.GET("/runs/:repo", h.Runs)
	engine.GET("/report/:run", h.Report)

	engine.NoRoute(func(c *gin.Context) { notFound(c, "endpoint not found") })
	engine.NoMethod(func(c *gin.Context) { failWithCode(c, http.StatusMethodNotAllowed, "4051", "method not allowed") })

	return &Server{
		engine: engine,
		logger: log,
	}
}

// Engine exposes the underlying gin.Engine for testing.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Start runs the HTTP server until it errors or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.engine,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	s.logger.Info("starting HTTP server on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
