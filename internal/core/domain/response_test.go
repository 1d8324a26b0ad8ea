package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresent_SQL(t *testing.T) {
	res := &ExecutionResult{
		Mode:    ModeSQL,
		Query:   &RenderedQuery{Text: `SELECT COUNT(*) AS "count" FROM "employees" AS t0`},
		Columns: []string{"count"},
		Rows:    []Row{{"count": int64(42)}},
		Intent:  &QueryIntent{Mode: ModeSQL, Confidence: 0.67},
		Timing:  Timing{Total: 1234567 * time.Microsecond},
	}

	out := Present(res)

	assert.Equal(t, ModeSQL, out.QueryType)
	require.Len(t, out.Results, 1)
	assert.Equal(t, Row{"count": int64(42)}, out.Results[0])
	assert.Equal(t, 1, out.ResultsCount)
	assert.Equal(t, 1, out.SQLCount)
	assert.Equal(t, 1, out.CombinedCount)
	assert.Equal(t, res.Query.Text, out.SQLGenerated)
	assert.Equal(t, 1.235, out.ResponseTime)
	assert.Equal(t, 0.67, out.Confidence)
	assert.Nil(t, out.SQLResults)
}

func TestPresent_Hybrid(t *testing.T) {
	rows := []Row{{"id": int64(1)}}
	docs := []DocumentMatch{doc("c1", "1", 0.9), doc("c2", "", 0.5)}
	res := &ExecutionResult{
		Mode:      ModeHybrid,
		Rows:      rows,
		Documents: docs,
		Merged:    MergeHybrid(rows, "id", docs),
		Warnings:  []string{"structured search failed"},
	}

	out := Present(res)

	assert.Equal(t, rows, out.SQLResults)
	assert.Equal(t, docs, out.DocumentResults)
	assert.Len(t, out.Results, 2, "one correlated row plus one standalone document")
	assert.Equal(t, 3, out.CombinedCount)
	assert.Equal(t, []string{"structured search failed"}, out.Warnings)
}

func TestPresent_EmptyDocumentResultEncodesArray(t *testing.T) {
	out := Present(&ExecutionResult{Mode: ModeDocument})

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"results":[]`)
	assert.Contains(t, string(data), `"query_type":"document"`)
}
