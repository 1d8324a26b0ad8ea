package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

// Execute runs query inside a read-only transaction.
func (c *Conn) Execute(ctx context.Context, query string, args ...any) (*port.ResultSet, error) {
	tx, err := c.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("reading column types: %w", err)
	}
	rs := &port.ResultSet{Columns: make([]string, len(types))}
	for i, ct := range types {
		rs.Columns[i] = ct.Name()
	}

	values := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(map[string]any, len(types))
		for i, ct := range types {
			row[rs.Columns[i]] = normalize(values[i], ct.DatabaseTypeName())
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return rs, nil
}

func (c *Conn) SampleRows(ctx context.Context, tableName string, limit int) ([]map[string]any, error) {
	if err := c.ensureTable(ctx, tableName); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s LIMIT ?", domain.DialectFor(domain.DialectMySQL).QuoteIdent(tableName))
	rs, err := c.Execute(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return rs.Rows, nil
}

// normalize turns the text protocol's []byte values into typed scalars
// using the declared column type.
func normalize(v any, dbType string) any {
	if f, ok := v.(float32); ok {
		return float64(f)
	}
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)
	t := strings.ToUpper(dbType)
	switch {
	case strings.Contains(t, "INT"):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case t == "DECIMAL", t == "FLOAT", t == "DOUBLE":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
				return int64(f)
			}
			return f
		}
	}
	return s
}
