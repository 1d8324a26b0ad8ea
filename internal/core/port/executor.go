package port

import "context"

// ResultSet holds rows in column order as returned by the database.
type ResultSet struct {
	Columns []string
	Rows    []map[string]any
}

type QueryExecutor interface {
	// Execute runs one read-only, parameterized statement.
	Execute(ctx context.Context, query string, args ...any) (*ResultSet, error)
}
