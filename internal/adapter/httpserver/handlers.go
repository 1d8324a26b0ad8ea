package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

const readyTimeout = 2 * time.Second

type errorDetail struct {
	Kind          domain.ErrorKind `json:"kind"`
	Detail        string           `json:"detail"`
	UnmappedTerms []string         `json:"unmapped_terms,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// handleHealth returns a liveness probe handler. Always responds 200 if the
// server process is running.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleReady reports 200 once the history store answers a ping.
func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.history != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := s.history.Ping(ctx); err != nil {
				s.logger.Warn("readiness check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with the status of its kind. Server-side failures
// are logged here; the cause never reaches the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := domain.AsError(err)
	status := statusFor(e.Kind)

	if status >= http.StatusInternalServerError {
		attrs := []any{
			slog.String("path", r.URL.Path),
			slog.String("error.type", string(e.Kind)),
			slog.String("error", err.Error()),
		}
		if e.Cause != nil {
			attrs = append(attrs, slog.String("error.cause", e.Cause.Error()))
		}
		s.logger.ErrorContext(r.Context(), "request failed", attrs...)
	}
	if e.Kind == domain.KindPoolExhausted {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, errorBody{Error: errorDetail{
		Kind:          e.Kind,
		Detail:        e.Detail,
		UnmappedTerms: e.UnmappedTerms,
	}})
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindSQLGeneration:
		return http.StatusUnprocessableEntity
	case domain.KindPoolExhausted:
		return http.StatusServiceUnavailable
	case domain.KindConnection, domain.KindEmbeddingService:
		return http.StatusBadGateway
	case domain.KindExecutionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
