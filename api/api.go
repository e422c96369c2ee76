package api

import (
	"context"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/folio/pkg/embeddings"
	"github.com/papercomputeco/folio/pkg/llm"
	"github.com/papercomputeco/folio/pkg/retrieval"
	"github.com/papercomputeco/folio/pkg/vector/sqlitevec"
)

// Searcher answers cross-session passage searches. Satisfied by
// *sqlitevec.SharedIndex.
type Searcher interface {
	Search(ctx context.Context, query []float32, topK int) ([]sqlitevec.Hit, error)
}

// Server is the API server for managing and querying retrieval sessions.
type Server struct {
	config   Config
	service  *retrieval.Service
	embedder embeddings.Embedder
	logger   *zap.Logger
	app      *fiber.App

	searcher Searcher
	chat     llm.Provider
}

// Option configures optional server capabilities.
type Option func(*Server)

// WithSearcher enables the cross-session /v1/search endpoint.
func WithSearcher(searcher Searcher) Option {
	return func(s *Server) { s.searcher = searcher }
}

// WithChatProvider enables the /v1/chat endpoint.
func WithChatProvider(p llm.Provider) Option {
	return func(s *Server) { s.chat = p }
}

// WithMCPHandler mounts an MCP handler at /mcp.
func WithMCPHandler(h http.Handler) Option {
	return func(s *Server) {
		s.app.All("/mcp", adaptor.HTTPHandler(h))
	}
}

// NewServer creates a new API server. The retrieval service and
// embedder are injected to allow sharing with other components
// (e.g., the directory watcher).
func NewServer(config Config, service *retrieval.Service, embedder embeddings.Embedder, logger *zap.Logger, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		service:  service,
		embedder: embedder,
		logger:   logger,
		app:      app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/v1/sessions", s.handleCreateSession)
	app.Get("/v1/sessions", s.handleListSessions)
	app.Delete("/v1/sessions/:id", s.handleDeleteSession)
	app.Post("/v1/sessions/:id/documents", s.handleIndexDocument)
	app.Post("/v1/sessions/:id/query", s.handleQuery)
	app.Get("/v1/search", s.handleSearch)
	app.Post("/v1/chat", s.handleChat)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
