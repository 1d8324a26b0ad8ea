package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/guillermoBallester/hrquery/internal/app"
	"github.com/guillermoBallester/hrquery/internal/config"
	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

const hrSchema = `
	CREATE TABLE departments (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
	CREATE TABLE employees (
		id            INTEGER PRIMARY KEY,
		first_name    TEXT NOT NULL,
		department_id INTEGER REFERENCES departments(id),
		salary        REAL NOT NULL
	);
	INSERT INTO departments VALUES (1, 'Engineering'), (2, 'Finance');
	INSERT INTO employees VALUES (1, 'Ada', 1, 120000), (2, 'Grace', 1, 135000), (3, 'Alan', 2, 98000);
`

// --- helpers ---

func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession("test", nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	// Call tool.
	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}

func toolText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

// setupServer wires a real engine over a throwaway SQLite database. With
// withDefault the database is also the default connection.
func setupServer(t *testing.T, withDefault bool) (*server.MCPServer, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "hr.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(hrSchema)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := app.New(context.Background(), &config.Config{
		PoolSize:             2,
		PoolAcquireTimeout:   time.Second,
		QueryTimeout:         2 * time.Second,
		SearchTimeout:        2 * time.Second,
		RequestTimeout:       5 * time.Second,
		DefaultLimit:         100,
		SampleRows:           2,
		CacheTTL:             time.Minute,
		CacheMaxEntries:      10,
		EmbeddingDimensions:  64,
		HistoryDBPath:        filepath.Join(dir, "history.db"),
		HistoryFlushInterval: 10 * time.Millisecond,
		AllowedFileTypes:     []string{".txt"},
		IngestWorkers:        1,
	}, logger, app.Options{})
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	connString := "sqlite://" + dbPath
	deps := Deps{Query: engine.Query, Discovery: engine.Discovery}
	if withDefault {
		deps.DefaultConnString = connString
	}
	return NewServer("test", deps, logger), connString
}

// --- tests ---

func TestAskQuestion_HappyPath(t *testing.T) {
	s, _ := setupServer(t, true)

	result := callTool(t, s, "ask_question", map[string]any{"question": "How many employees do we have?"})
	require.False(t, result.IsError, toolText(result))

	var resp domain.QueryResponse
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &resp))
	assert.Equal(t, domain.ModeSQL, resp.QueryType)
	assert.Equal(t, 1, resp.ResultsCount)
	assert.Contains(t, resp.SQLGenerated, "COUNT(*)")
}

func TestAskQuestion_ExplicitConnection(t *testing.T) {
	s, conn := setupServer(t, false)

	result := callTool(t, s, "ask_question", map[string]any{
		"question":          "How many employees do we have?",
		"connection_string": conn,
	})
	assert.False(t, result.IsError, toolText(result))
}

func TestAskQuestion_MissingQuestion(t *testing.T) {
	s, _ := setupServer(t, true)

	result := callTool(t, s, "ask_question", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "question is required")
}

func TestAskQuestion_NoConnection(t *testing.T) {
	s, _ := setupServer(t, false)

	result := callTool(t, s, "ask_question", map[string]any{"question": "How many employees?"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "connection_string is required")
}

func TestAskQuestion_BadConnection(t *testing.T) {
	s, _ := setupServer(t, false)

	result := callTool(t, s, "ask_question", map[string]any{
		"question":          "How many employees?",
		"connection_string": "redis://localhost",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), string(domain.KindInvalidInput))
}

func TestDescribeSchema_HappyPath(t *testing.T) {
	s, _ := setupServer(t, true)

	result := callTool(t, s, "describe_schema", nil)
	require.False(t, result.IsError, toolText(result))

	var summary domain.SchemaSummary
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &summary))
	assert.Equal(t, 2, summary.TablesCount)
	assert.Equal(t, []string{"employees"}, summary.EmployeeTables)
}

func TestDescribeSchema_FallsBackToActiveGraph(t *testing.T) {
	s, conn := setupServer(t, false)

	result := callTool(t, s, "describe_schema", nil)
	assert.True(t, result.IsError, "nothing discovered yet")

	callTool(t, s, "list_tables", map[string]any{"connection_string": conn})

	result = callTool(t, s, "describe_schema", nil)
	assert.False(t, result.IsError, toolText(result))
}

func TestListTables_HappyPath(t *testing.T) {
	s, _ := setupServer(t, true)

	result := callTool(t, s, "list_tables", nil)
	require.False(t, result.IsError, toolText(result))

	var tables []domain.TableSummary
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &tables))
	require.Len(t, tables, 2)
	names := []string{tables[0].Name, tables[1].Name}
	assert.ElementsMatch(t, []string{"departments", "employees"}, names)
}

func TestDescribeTable_HappyPath(t *testing.T) {
	s, _ := setupServer(t, true)

	result := callTool(t, s, "describe_table", map[string]any{"table_name": "employees"})
	require.False(t, result.IsError, toolText(result))

	var table domain.Table
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &table))
	assert.Equal(t, "employees", table.Name)
	assert.Len(t, table.Columns, 4)
	assert.Equal(t, []string{"id"}, table.PrimaryKey)
}

func TestDescribeTable_MissingTableName(t *testing.T) {
	s, _ := setupServer(t, true)

	result := callTool(t, s, "describe_table", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "table_name is required")
}

func TestDescribeTable_NotFound(t *testing.T) {
	s, _ := setupServer(t, true)

	result := callTool(t, s, "describe_table", map[string]any{"table_name": "payroll"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "not found")
}
