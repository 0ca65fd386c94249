// Package api exposes the extraction pipeline over HTTP. All endpoints speak
// JSON; errors use the shared PGXError envelope.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pgxbridge/internal/domain"
	"github.com/pgxbridge/internal/feedback"
	"github.com/pgxbridge/internal/metrics"
	"github.com/pgxbridge/internal/middleware"
	"github.com/pgxbridge/internal/reference"
	"github.com/pgxbridge/internal/service"
)

// Deps carries the collaborators the server is wired with. Config, Logger,
// Pipeline, and Table are required. The rest are optional; the corresponding
// endpoints degrade when they are absent.
type Deps struct {
	Config     *domain.Config
	Logger     *logrus.Logger
	Pipeline   *service.Pipeline
	Table      *reference.Table
	Feedback   feedback.Store
	Runs       domain.RunArchive
	Metrics    *metrics.Metrics
	Text       domain.TextProvider
	Candidates domain.CandidateProducer
	DBPing     func(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	cfg        *domain.Config
	logger     *logrus.Logger
	pipeline   *service.Pipeline
	table      *reference.Table
	feedback   feedback.Store
	runs       domain.RunArchive
	metrics    *metrics.Metrics
	text       domain.TextProvider
	candidates domain.CandidateProducer
	dbPing     func(ctx context.Context) error
	router     *gin.Engine
	server     *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(deps Deps) *Server {
	// Set Gin mode based on environment
	if deps.Config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	router.Use(middleware.BodyLimit(deps.Config.Server.MaxBodyBytes))
	router.Use(middleware.RequestMetrics(deps.Metrics))

	server := &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		pipeline:   deps.Pipeline,
		table:      deps.Table,
		feedback:   deps.Feedback,
		runs:       deps.Runs,
		metrics:    deps.Metrics,
		text:       deps.Text,
		candidates: deps.Candidates,
		dbPing:     deps.DBPing,
		router:     router,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Router returns the underlying gin engine, primarily for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/extract", s.handleExtract)
		v1.POST("/annotate", s.handleAnnotate)
		v1.POST("/process", s.handleProcess)
		v1.POST("/documents", s.handleProcessDocument)
		v1.POST("/compare", s.handleCompare)

		v1.GET("/reference/stats", s.handleReferenceStats)
		v1.GET("/genes", s.handleGenes)

		v1.POST("/feedback", s.handleSubmitFeedback)
		v1.GET("/feedback", s.handleListFeedback)
		v1.GET("/feedback/summary", s.handleFeedbackSummary)
		v1.GET("/feedback/export", s.handleFeedbackExport)
		v1.GET("/feedback/:reference", s.handleGetFeedback)
		v1.PUT("/feedback/:reference/status", s.handleUpdateFeedbackStatus)

		v1.POST("/runs", s.handleCreateRun)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
