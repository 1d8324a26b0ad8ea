package httpserver

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	if s.mcp != nil {
		r.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.mcp))
	}

	// Health probes
	r.Get("/health", s.handleHealth())
	r.Get("/ready", s.handleReady())

	r.Route("/api", func(api chi.Router) {
		if len(s.cfg.CORSOrigins) > 0 {
			api.Use(cors.Handler(cors.Options{
				AllowedOrigins:   s.cfg.CORSOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Content-Type"},
				ExposedHeaders:   []string{"Retry-After"},
				AllowCredentials: false,
				MaxAge:           300,
			}))
		}
		api.Use(s.limiter.Middleware)

		api.Route("/ingest", func(ig chi.Router) {
			ig.Post("/database", s.handleConnectDatabase())
			ig.Post("/documents", s.handleUploadDocuments())
			ig.Get("/status/{job_id}", s.handleJobStatus())
			ig.Get("/status/{job_id}/events", s.handleJobEvents())
			ig.Get("/schema", s.handleSchemaDetail())
		})

		api.Route("/query", func(q chi.Router) {
			q.Post("/", s.handleQuery())
			q.Get("/history", s.handleHistory())
			q.Get("/metrics", s.handleMetrics())
			q.Post("/cache/reset", s.handleCacheReset())
		})

		api.Route("/schema", func(sc chi.Router) {
			sc.Get("/", s.handleSchema())
			sc.Get("/visualize", s.handleVisualize())
			sc.Get("/tables/{table}", s.handleTable())
		})
	})

	s.router = r
}
