package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

// graph resolves the schema a read request refers to: the connection_string
// query parameter, else the active graph, else the default connection.
func (s *Server) graph(r *http.Request) (*domain.SchemaGraph, error) {
	if cs := r.URL.Query().Get("connection_string"); cs != "" {
		return s.discovery.GraphFor(r.Context(), cs)
	}
	if g := s.discovery.Active(); g != nil {
		return g, nil
	}
	if s.cfg.DefaultConnString != "" {
		return s.discovery.GraphFor(r.Context(), s.cfg.DefaultConnString)
	}
	return nil, domain.Errorf(domain.KindNotFound, "no database connected yet")
}

func (s *Server) handleSchema() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := s.graph(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.Summarize(g))
	}
}

// handleSchemaDetail returns the whole graph, sample rows included.
func (s *Server) handleSchemaDetail() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := s.graph(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func (s *Server) handleVisualize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := s.graph(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.Visualize(g))
	}
}

func (s *Server) handleTable() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := s.graph(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		name := chi.URLParam(r, "table")
		t, ok := g.Table(name)
		if !ok {
			s.writeError(w, r, domain.Errorf(domain.KindNotFound, "table %q not found", name))
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}
