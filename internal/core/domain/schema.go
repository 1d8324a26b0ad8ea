package domain

import (
	"slices"
	"time"
)

// PurposeTag labels a table's business role.
type PurposeTag string

const (
	PurposeEmployee         PurposeTag = "employee"
	PurposeDepartment       PurposeTag = "department"
	PurposeSalary           PurposeTag = "salary"
	PurposeDocumentMetadata PurposeTag = "document_metadata"
	PurposeOther            PurposeTag = "other"
)

// ColumnRef addresses a column by table and column name.
type ColumnRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

type Column struct {
	Name             string     `json:"name"`
	Type             string     `json:"type"`
	Nullable         bool       `json:"nullable"`
	DistinctEstimate int64      `json:"distinct_estimate,omitempty"`
	ForeignKey       *ColumnRef `json:"foreign_key,omitempty"`
}

type Table struct {
	Name          string           `json:"name"`
	Columns       []Column         `json:"columns"`
	PrimaryKey    []string         `json:"primary_key"`
	Purpose       PurposeTag       `json:"purpose"`
	PurposeReason string           `json:"purpose_reason,omitempty"`
	RowEstimate   int64            `json:"row_estimate"`
	SampleRows    []map[string]any `json:"sample_rows,omitempty"`
}

// Column returns the named column, matching case-insensitively.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if equalFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// IdentityColumn returns the single-column primary key, falling back to a
// column literally named "id" when no key is declared.
func (t *Table) IdentityColumn() (string, bool) {
	if len(t.PrimaryKey) == 1 {
		return t.PrimaryKey[0], true
	}
	if len(t.PrimaryKey) == 0 {
		if c, ok := t.Column("id"); ok {
			return c.Name, true
		}
	}
	return "", false
}

type RelationKind string

const (
	RelationDeclared RelationKind = "declared"
	RelationInferred RelationKind = "inferred"
)

// ForeignKeyRelation is a directed edge (source column -> target column).
type ForeignKeyRelation struct {
	SourceTable  string       `json:"source_table"`
	SourceColumn string       `json:"source_column"`
	TargetTable  string       `json:"target_table"`
	TargetColumn string       `json:"target_column"`
	Kind         RelationKind `json:"kind"`
}

// SchemaGraph is an immutable snapshot of a discovered database. Relations
// reference tables by name through an index into Tables; tables never point
// at each other directly.
type SchemaGraph struct {
	Version         uint64               `json:"version"`
	ConnectionID    string               `json:"connection_id"`
	Dialect         DialectName          `json:"dialect"`
	DatabaseName    string               `json:"database_name"`
	DatabaseVersion string               `json:"database_version,omitempty"`
	Tables          []Table              `json:"tables"`
	Relations       []ForeignKeyRelation `json:"relations"`
	Diagnostics     []string             `json:"diagnostics,omitempty"`
	DiscoveredAt    time.Time            `json:"discovered_at"`

	index map[string]int
}

// NewSchemaGraph builds a graph, dropping relations whose endpoints are not
// present so every edge is resolvable within this instance. Source columns
// of accepted relations get their ForeignKey reference set.
func NewSchemaGraph(meta SchemaGraph, tables []Table, relations []ForeignKeyRelation) *SchemaGraph {
	g := meta
	g.Tables = tables
	g.index = make(map[string]int, len(tables))
	for i, t := range tables {
		g.index[lowerASCII(t.Name)] = i
	}
	g.Relations = make([]ForeignKeyRelation, 0, len(relations))
	for _, r := range relations {
		if !g.hasColumn(r.SourceTable, r.SourceColumn) || !g.hasColumn(r.TargetTable, r.TargetColumn) {
			continue
		}
		g.Relations = append(g.Relations, r)
		t, _ := g.Table(r.SourceTable)
		if c, _ := t.Column(r.SourceColumn); c.ForeignKey == nil {
			c.ForeignKey = &ColumnRef{Table: r.TargetTable, Column: r.TargetColumn}
		}
	}
	return &g
}

func (g *SchemaGraph) hasColumn(table, column string) bool {
	t, ok := g.Table(table)
	if !ok {
		return false
	}
	_, ok = t.Column(column)
	return ok
}

// Table looks a table up by name, case-insensitively.
func (g *SchemaGraph) Table(name string) (*Table, bool) {
	if g == nil {
		return nil, false
	}
	i, ok := g.index[lowerASCII(name)]
	if !ok {
		return nil, false
	}
	return &g.Tables[i], true
}

// TablesByPurpose returns the names of tables carrying the given tag, in
// discovery order.
func (g *SchemaGraph) TablesByPurpose(tag PurposeTag) []string {
	var out []string
	for _, t := range g.Tables {
		if t.Purpose == tag {
			out = append(out, t.Name)
		}
	}
	return out
}

// RelationsFrom returns the edges whose source is the given table.
func (g *SchemaGraph) RelationsFrom(table string) []ForeignKeyRelation {
	var out []ForeignKeyRelation
	for _, r := range g.Relations {
		if equalFold(r.SourceTable, table) {
			out = append(out, r)
		}
	}
	return out
}

// JoinPath returns the shortest chain of relations connecting from and to,
// treating edges as traversable in both directions. Ties are broken by
// relation order, so the result is deterministic.
func (g *SchemaGraph) JoinPath(from, to string) ([]ForeignKeyRelation, bool) {
	start, ok := g.index[lowerASCII(from)]
	if !ok {
		return nil, false
	}
	goal, ok := g.index[lowerASCII(to)]
	if !ok {
		return nil, false
	}
	if start == goal {
		return nil, true
	}

	type step struct {
		prev int
		via  int
	}
	visited := map[int]step{start: {prev: -1, via: -1}}
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for ri, r := range g.Relations {
			src, dst := g.index[lowerASCII(r.SourceTable)], g.index[lowerASCII(r.TargetTable)]
			var next int
			switch cur {
			case src:
				next = dst
			case dst:
				next = src
			default:
				continue
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = step{prev: cur, via: ri}
			if next == goal {
				var path []ForeignKeyRelation
				for n := goal; n != start; n = visited[n].prev {
					path = append(path, g.Relations[visited[n].via])
				}
				slices.Reverse(path)
				return path, true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

// SameContent reports whether two graphs describe the same tables, columns
// and relations, ignoring version, timestamps and sample data.
func (g *SchemaGraph) SameContent(o *SchemaGraph) bool {
	if len(g.Tables) != len(o.Tables) || len(g.Relations) != len(o.Relations) {
		return false
	}
	for i := range g.Tables {
		a, b := g.Tables[i], o.Tables[i]
		if a.Name != b.Name || a.Purpose != b.Purpose || !slices.Equal(a.PrimaryKey, b.PrimaryKey) {
			return false
		}
		if len(a.Columns) != len(b.Columns) {
			return false
		}
		for j := range a.Columns {
			ca, cb := a.Columns[j], b.Columns[j]
			if ca.Name != cb.Name || ca.Type != cb.Type || ca.Nullable != cb.Nullable {
				return false
			}
		}
	}
	return slices.Equal(g.Relations, o.Relations)
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func equalFold(a, b string) bool {
	return lowerASCII(a) == lowerASCII(b)
}
