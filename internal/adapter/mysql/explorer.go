package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

// Conn is one pool handle pinned to a single server session.
type Conn struct {
	conn *sql.Conn
}

func (c *Conn) Ping(ctx context.Context) error { return c.conn.PingContext(ctx) }

func (c *Conn) Close(context.Context) error { return c.conn.Close() }

func (c *Conn) DatabaseInfo(ctx context.Context) (port.DatabaseInfo, error) {
	var info port.DatabaseInfo
	if err := c.conn.QueryRowContext(ctx, queryDatabaseInfo).Scan(&info.Name, &info.Version); err != nil {
		return port.DatabaseInfo{}, fmt.Errorf("reading database info: %w", err)
	}
	info.Schema = info.Name
	return info, nil
}

func (c *Conn) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	rows, err := c.conn.QueryContext(ctx, queryListTables)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []port.TableInfo
	for rows.Next() {
		var t port.TableInfo
		if err := rows.Scan(&t.Name, &t.RowEstimate, &t.Comment); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (c *Conn) DescribeTable(ctx context.Context, tableName string) (*port.TableDetail, error) {
	if err := c.ensureTable(ctx, tableName); err != nil {
		return nil, err
	}
	detail := &port.TableDetail{Name: tableName}

	rows, err := c.conn.QueryContext(ctx, queryColumns, tableName)
	if err != nil {
		return nil, fmt.Errorf("fetching columns: %w", err)
	}
	for rows.Next() {
		var col port.ColumnInfo
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &col.IsPrimaryKey, &col.DistinctEstimate); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		detail.Columns = append(detail.Columns, col)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}

	fkRows, err := c.conn.QueryContext(ctx, queryForeignKeys, tableName)
	if err != nil {
		return nil, fmt.Errorf("fetching foreign keys: %w", err)
	}
	defer func() { _ = fkRows.Close() }()
	for fkRows.Next() {
		var fk port.ForeignKey
		if err := fkRows.Scan(&fk.ConstraintName, &fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		detail.ForeignKeys = append(detail.ForeignKeys, fk)
	}
	if err := fkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating foreign keys: %w", err)
	}
	return detail, nil
}

func (c *Conn) ensureTable(ctx context.Context, tableName string) error {
	var n int
	if err := c.conn.QueryRowContext(ctx, queryTableExists, tableName).Scan(&n); err != nil {
		return fmt.Errorf("looking up table %q: %w", tableName, err)
	}
	if n == 0 {
		return domain.Errorf(domain.KindNotFound, "table %q not found", tableName)
	}
	return nil
}
