package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/guillermoBallester/hrquery/internal/core/port"
	"github.com/guillermoBallester/hrquery/internal/core/service"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr        string
	CORSOrigins       []string
	RateLimitRPS      float64
	RateLimitBurst    int
	MaxUploadBytes    int64
	DefaultConnString string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

// Services are the engine components the routes call into. History and MCP
// are optional.
type Services struct {
	Query     *service.QueryService
	Discovery *service.DiscoveryService
	Ingestion *service.IngestionService
	History   port.HistoryRepository
	MCP       *mcpserver.MCPServer
}

// Server wraps the HTTP server with chi routing, middleware, and graceful shutdown.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	logger     *slog.Logger
	cfg        Config
	limiter    *ipRateLimiter

	query     *service.QueryService
	discovery *service.DiscoveryService
	ingestion *service.IngestionService
	history   port.HistoryRepository
	mcp       *mcpserver.MCPServer
}

// New creates a new Server wired with the given services.
func New(cfg Config, svc Services, logger *slog.Logger) *Server {
	s := &Server{
		logger:    logger,
		cfg:       cfg,
		limiter:   newIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		query:     svc.Query,
		discovery: svc.Discovery,
		ingestion: svc.Ingestion,
		history:   svc.History,
		mcp:       svc.MCP,
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server and blocks until it stops.
// Returns nil if the server was shut down gracefully via Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
