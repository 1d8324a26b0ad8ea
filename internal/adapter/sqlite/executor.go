package sqlite

import (
	"context"
	"fmt"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

// Execute runs query on the read-only connection.
func (c *Conn) Execute(ctx context.Context, query string, args ...any) (*port.ResultSet, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	rs := &port.ResultSet{Columns: cols}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, name := range cols {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
				continue
			}
			row[name] = values[i]
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return rs, nil
}

func (c *Conn) SampleRows(ctx context.Context, tableName string, limit int) ([]map[string]any, error) {
	if err := c.ensureTable(ctx, tableName); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s LIMIT ?", domain.DialectFor(domain.DialectSQLite).QuoteIdent(tableName))
	rs, err := c.Execute(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return rs.Rows, nil
}
