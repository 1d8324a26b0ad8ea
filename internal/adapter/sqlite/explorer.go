package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

const (
	queryVersion = `SELECT sqlite_version()`

	queryListTables = `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	queryTableExists = `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name = ?`

	queryColumns = `
		SELECT name, type, "notnull", pk
		FROM pragma_table_info(?)
		ORDER BY cid`

	queryForeignKeys = `
		SELECT id, "from", "table", COALESCE("to", '')
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq`

	queryPrimaryKey = `
		SELECT name FROM pragma_table_info(?)
		WHERE pk > 0
		ORDER BY pk`
)

type Conn struct {
	conn *sql.Conn
	name string
}

func (c *Conn) Ping(ctx context.Context) error { return c.conn.PingContext(ctx) }

func (c *Conn) Close(context.Context) error { return c.conn.Close() }

func (c *Conn) DatabaseInfo(ctx context.Context) (port.DatabaseInfo, error) {
	info := port.DatabaseInfo{Name: c.name, Schema: "main"}
	if err := c.conn.QueryRowContext(ctx, queryVersion).Scan(&info.Version); err != nil {
		return port.DatabaseInfo{}, fmt.Errorf("reading sqlite version: %w", err)
	}
	return info, nil
}

func (c *Conn) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	names, err := c.scanStrings(ctx, queryListTables)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}

	tables := make([]port.TableInfo, 0, len(names))
	for _, name := range names {
		t := port.TableInfo{Schema: "main", Name: name}
		// SQLite keeps no row statistics without ANALYZE; count directly.
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s", domain.DialectFor(domain.DialectSQLite).QuoteIdent(name))
		if err := c.conn.QueryRowContext(ctx, q).Scan(&t.RowEstimate); err != nil {
			return nil, fmt.Errorf("counting rows of %q: %w", name, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (c *Conn) DescribeTable(ctx context.Context, tableName string) (*port.TableDetail, error) {
	if err := c.ensureTable(ctx, tableName); err != nil {
		return nil, err
	}
	detail := &port.TableDetail{Schema: "main", Name: tableName}

	rows, err := c.conn.QueryContext(ctx, queryColumns, tableName)
	if err != nil {
		return nil, fmt.Errorf("fetching columns: %w", err)
	}
	for rows.Next() {
		var (
			col     port.ColumnInfo
			notNull bool
			pk      int
		)
		if err := rows.Scan(&col.Name, &col.DataType, &notNull, &pk); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		col.IsNullable = !notNull && pk == 0
		col.IsPrimaryKey = pk > 0
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
	var fks []port.ForeignKey
	for fkRows.Next() {
		var (
			id int
			fk port.ForeignKey
		)
		if err := fkRows.Scan(&id, &fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			_ = fkRows.Close()
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		fk.ConstraintName = fmt.Sprintf("fk_%s_%d", tableName, id)
		fks = append(fks, fk)
	}
	_ = fkRows.Close()
	if err := fkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating foreign keys: %w", err)
	}

	// REFERENCES t without a column list points at t's primary key.
	for i := range fks {
		if fks[i].ReferencedColumn != "" {
			continue
		}
		pk, err := c.scanStrings(ctx, queryPrimaryKey, fks[i].ReferencedTable)
		if err != nil {
			return nil, fmt.Errorf("resolving referenced key: %w", err)
		}
		if len(pk) == 1 {
			fks[i].ReferencedColumn = pk[0]
		}
	}
	detail.ForeignKeys = fks
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

func (c *Conn) scanStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
