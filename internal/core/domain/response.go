package domain

import (
	"math"
	"time"
)

// QueryResponse is the caller-facing shape of an answered question. Results
// holds rows for sql, documents for document and merged items for hybrid;
// hybrid answers also carry both halves separately.
type QueryResponse struct {
	QueryType       QueryMode       `json:"query_type"`
	Results         []any           `json:"results"`
	ResultsCount    int             `json:"results_count"`
	Columns         []string        `json:"columns,omitempty"`
	SQLResults      []Row           `json:"sql_results"`
	DocumentResults []DocumentMatch `json:"document_results"`
	SQLCount        int             `json:"sql_count"`
	DocumentCount   int             `json:"document_count"`
	CombinedCount   int             `json:"combined_count"`
	SQLGenerated    string          `json:"sql_generated,omitempty"`
	SQLParams       []any           `json:"sql_params,omitempty"`
	Confidence      float64         `json:"confidence"`
	ResponseTime    float64         `json:"response_time"`
	CacheHit        bool            `json:"cache_hit"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// Present converts an execution result into a QueryResponse.
func Present(res *ExecutionResult) QueryResponse {
	out := QueryResponse{
		QueryType:     res.Mode,
		Results:       []any{},
		Columns:       res.Columns,
		SQLCount:      len(res.Rows),
		DocumentCount: len(res.Documents),
		ResponseTime:  Seconds(res.Timing.Total),
		CacheHit:      res.CacheHit,
		Warnings:      res.Warnings,
	}
	if res.Query != nil {
		out.SQLGenerated = res.Query.Text
		out.SQLParams = res.Query.Args
	}
	if res.Intent != nil {
		out.Confidence = res.Intent.Confidence
	}

	switch res.Mode {
	case ModeSQL:
		for _, r := range res.Rows {
			out.Results = append(out.Results, r)
		}
	case ModeDocument:
		for _, d := range res.Documents {
			out.Results = append(out.Results, d)
		}
	case ModeHybrid:
		out.SQLResults = nonNilRows(res.Rows)
		out.DocumentResults = nonNilDocs(res.Documents)
		for _, m := range res.Merged {
			out.Results = append(out.Results, m)
		}
	}
	out.ResultsCount = len(out.Results)
	out.CombinedCount = out.SQLCount + out.DocumentCount
	return out
}

// Seconds renders d as fractional seconds rounded to the millisecond.
func Seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

func nonNilRows(rows []Row) []Row {
	if rows == nil {
		return []Row{}
	}
	return rows
}

func nonNilDocs(docs []DocumentMatch) []DocumentMatch {
	if docs == nil {
		return []DocumentMatch{}
	}
	return docs
}
