package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/guillermoBallester/hrquery/internal/core/port"
)

// Conn is one pool handle: a single pgx connection that reads the catalog
// and runs generated queries.
type Conn struct {
	conn    *pgx.Conn
	schemas []string // empty means current_schema()
}

// schemaFilter returns a SQL WHERE clause fragment and args for filtering by schema.
// paramOffset is the starting $N parameter index (1-based).
func (c *Conn) schemaFilter(column string, paramOffset int) (clause string, args []any) {
	if len(c.schemas) == 0 {
		return fmt.Sprintf("%s = current_schema()", column), nil
	}
	placeholders := make([]string, len(c.schemas))
	args = make([]any, len(c.schemas))
	for i, s := range c.schemas {
		placeholders[i] = fmt.Sprintf("$%d", paramOffset+i)
		args[i] = s
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), args
}

func (c *Conn) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

func (c *Conn) Close(ctx context.Context) error { return c.conn.Close(ctx) }

func (c *Conn) DatabaseInfo(ctx context.Context) (port.DatabaseInfo, error) {
	var info port.DatabaseInfo
	if err := c.conn.QueryRow(ctx, queryDatabaseInfo).Scan(&info.Name, &info.Version, &info.Schema); err != nil {
		return port.DatabaseInfo{}, fmt.Errorf("reading database info: %w", err)
	}
	if len(c.schemas) > 0 {
		info.Schema = strings.Join(c.schemas, ",")
	}
	return info, nil
}

func (c *Conn) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	filter, args := c.schemaFilter("t.table_schema", 1)
	query := fmt.Sprintf(queryListTables, filter)

	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []port.TableInfo
	for rows.Next() {
		var t port.TableInfo
		if err := rows.Scan(&t.Schema, &t.Name, &t.RowEstimate, &t.Comment); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (c *Conn) DescribeTable(ctx context.Context, tableName string) (*port.TableDetail, error) {
	schema, err := c.fetchTableSchema(ctx, tableName)
	if err != nil {
		return nil, err
	}
	detail := &port.TableDetail{Schema: schema, Name: tableName}

	detail.Columns, err = c.fetchColumns(ctx, schema, tableName)
	if err != nil {
		return nil, err
	}

	if err := c.markPrimaryKeys(ctx, detail); err != nil {
		return nil, err
	}

	detail.ForeignKeys, err = c.fetchForeignKeys(ctx, schema, tableName)
	if err != nil {
		return nil, err
	}
	return detail, nil
}
