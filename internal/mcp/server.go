// Package mcp exposes the extraction pipeline to AI agents over the Model
// Context Protocol. Transport is stdio only: stdout carries the protocol
// stream, so all diagnostics go to stderr.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pgxbridge/internal/config"
	"github.com/pgxbridge/internal/reference"
	"github.com/pgxbridge/internal/service"
)

// Server wires the extraction pipeline into an MCP stdio server.
type Server struct {
	config    *config.LiteConfig
	table     *reference.Table
	pipeline  *service.Pipeline
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// Option configures optional server behavior.
type Option func(*Server)

// WithLogger sets a custom logger. It must not write to stdout.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer loads the reference table, builds the pipeline, and registers
// the tool set. A missing or malformed reference table is fatal.
func NewServer(cfg *config.LiteConfig, opts ...Option) (*Server, error) {
	s := &Server{
		config: cfg,
		logger: newLogger(cfg),
	}
	for _, opt := range opts {
		opt(s)
	}

	table, err := reference.Load(cfg.ReferencePath, s.logger)
	if err != nil {
		return nil, fmt.Errorf("loading reference table: %w", err)
	}
	s.table = table
	s.pipeline = service.NewPipeline(table, s.logger,
		service.WithAnnotatorOptions(service.WithLookupCacheSize(cfg.LookupCacheSize)))

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "pgxbridge",
		Version: "v0.1.0",
	}, nil)
	s.registerTools()

	return s, nil
}

// newLogger builds the default stderr logger. logrus writes to stderr out of
// the box, which keeps stdout clean for the protocol stream.
func newLogger(cfg *config.LiteConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// Start runs the stdio transport until the context is cancelled or the
// client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("reference", s.config.ReferencePath).Info("MCP server listening on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
