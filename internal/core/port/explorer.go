package port

import "context"

type DatabaseInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	// Schema is the namespace searched for tables, when the dialect has one.
	Schema string `json:"schema,omitempty"`
}

type TableInfo struct {
	Schema      string `json:"schema,omitempty"`
	Name        string `json:"name"`
	RowEstimate int64  `json:"row_estimate"`
	Comment     string `json:"comment,omitempty"`
}

type ColumnInfo struct {
	Name             string `json:"name"`
	DataType         string `json:"data_type"`
	IsNullable       bool   `json:"is_nullable"`
	IsPrimaryKey     bool   `json:"is_primary_key"`
	DistinctEstimate int64  `json:"distinct_estimate,omitempty"`
}

type ForeignKey struct {
	ConstraintName   string `json:"constraint_name"`
	ColumnName       string `json:"column_name"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

type TableDetail struct {
	Schema      string       `json:"schema,omitempty"`
	Name        string       `json:"name"`
	Columns     []ColumnInfo `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// SchemaExplorer reads catalog metadata from one connection.
type SchemaExplorer interface {
	DatabaseInfo(ctx context.Context) (DatabaseInfo, error)
	ListTables(ctx context.Context) ([]TableInfo, error)
	DescribeTable(ctx context.Context, table string) (*TableDetail, error)
	// SampleRows returns at most limit rows of table, in no particular order.
	SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error)
}
