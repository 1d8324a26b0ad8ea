package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newHRDatabase(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HISTORY_DB_PATH", filepath.Join(dir, "history.db"))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("EMBEDDING_URL", "")
	t.Setenv("CHROMA_URL", "")
	t.Setenv("REDIS_URL", "")

	path := filepath.Join(dir, "hr.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE departments (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
		CREATE TABLE employees (
			id            INTEGER PRIMARY KEY,
			first_name    TEXT NOT NULL,
			department_id INTEGER REFERENCES departments(id)
		);
		INSERT INTO departments VALUES (1, 'Engineering');
		INSERT INTO employees VALUES (1, 'Ada', 1), (2, 'Grace', 1);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return "sqlite://" + path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDiscover(t *testing.T) {
	db := newHRDatabase(t)

	out, err := execute(t, "discover", "--db", db)
	require.NoError(t, err)

	var summary struct {
		TablesCount    int      `json:"tables_count"`
		EmployeeTables []string `json:"employee_tables"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 2, summary.TablesCount)
	assert.Equal(t, []string{"employees"}, summary.EmployeeTables)
}

func TestAsk_UsesDatabaseURL(t *testing.T) {
	db := newHRDatabase(t)
	t.Setenv("DATABASE_URL", db)

	out, err := execute(t, "ask", "How many employees are there?")
	require.NoError(t, err)

	var resp struct {
		QueryType string           `json:"query_type"`
		Results   []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "sql", resp.QueryType)
	require.Len(t, resp.Results, 1)
	assert.EqualValues(t, 2, resp.Results[0]["count"])
}

func TestAsk_RequiresQuestion(t *testing.T) {
	db := newHRDatabase(t)

	_, err := execute(t, "ask", "--db", db)
	assert.Error(t, err)
}

func TestNoDatabase(t *testing.T) {
	newHRDatabase(t)

	_, err := execute(t, "discover")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db")
}
