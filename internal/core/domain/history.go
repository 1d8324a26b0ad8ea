package domain

import "time"

// HistoryEntry records one answered question.
type HistoryEntry struct {
	ID           int64         `json:"id"`
	QueryText    string        `json:"query_text"`
	QueryType    QueryMode     `json:"query_type"`
	ResultsCount int           `json:"results_count"`
	ResponseTime time.Duration `json:"response_time"`
	CacheHit     bool          `json:"cache_hit"`
	ExecutedAt   time.Time     `json:"executed_at"`
}

// QueryMetrics aggregates the recorded history.
type QueryMetrics struct {
	AvgResponseTime   time.Duration `json:"avg_response_time"`
	CacheHitRate      float64       `json:"cache_hit_rate"`
	TotalQueries      int64         `json:"total_queries"`
	RecentQueries     int64         `json:"recent_queries"`
	ActiveConnections int           `json:"active_connections"`
	IdleConnections   int           `json:"idle_connections"`
}
