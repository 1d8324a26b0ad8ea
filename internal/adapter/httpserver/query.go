package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

type queryRequest struct {
	Query            string `json:"query"`
	ConnectionString string `json:"connection_string"`
}

type historyItem struct {
	ID           int64            `json:"id"`
	QueryText    string           `json:"query_text"`
	QueryType    domain.QueryMode `json:"query_type"`
	ResultsCount int              `json:"results_count"`
	ResponseTime float64          `json:"response_time"`
	CacheHit     bool             `json:"cache_hit"`
	ExecutedAt   time.Time        `json:"executed_at"`
}

type metricsResponse struct {
	AvgResponseTime   float64 `json:"avg_response_time"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	TotalQueries      int64   `json:"total_queries"`
	RecentQueries     int64   `json:"recent_queries"`
	ActiveConnections int     `json:"active_connections"`
	IdleConnections   int     `json:"idle_connections"`
}

func (s *Server) handleQuery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, domain.Errorf(domain.KindInvalidInput, "invalid request body"))
			return
		}
		connString := req.ConnectionString
		if connString == "" {
			connString = s.cfg.DefaultConnString
		}

		res, err := s.query.Ask(r.Context(), req.Query, connString)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.Present(res))
	}
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				s.writeError(w, r, domain.Errorf(domain.KindInvalidInput, "limit must be an integer"))
				return
			}
			limit = n
		}

		entries, err := s.query.History(r.Context(), limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		items := make([]historyItem, 0, len(entries))
		for _, e := range entries {
			items = append(items, historyItem{
				ID:           e.ID,
				QueryText:    e.QueryText,
				QueryType:    e.QueryType,
				ResultsCount: e.ResultsCount,
				ResponseTime: domain.Seconds(e.ResponseTime),
				CacheHit:     e.CacheHit,
				ExecutedAt:   e.ExecutedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"queries": items})
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := s.query.Metrics(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, metricsResponse{
			AvgResponseTime:   domain.Seconds(m.AvgResponseTime),
			CacheHitRate:      m.CacheHitRate,
			TotalQueries:      m.TotalQueries,
			RecentQueries:     m.RecentQueries,
			ActiveConnections: m.ActiveConnections,
			IdleConnections:   m.IdleConnections,
		})
	}
}

func (s *Server) handleCacheReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.query.ResetCache()
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}
