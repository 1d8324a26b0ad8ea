package domain

import (
	"slices"
	"time"
)

type DatabaseSummary struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Dialect DialectName `json:"dialect"`
}

type TableSummary struct {
	Name          string     `json:"name"`
	Purpose       PurposeTag `json:"purpose"`
	PurposeReason string     `json:"purpose_reason,omitempty"`
	ColumnCount   int        `json:"column_count"`
	RowEstimate   int64      `json:"row_estimate"`
	PrimaryKey    []string   `json:"primary_key"`
}

// SchemaSummary is the caller-facing view of a graph, without sample rows.
type SchemaSummary struct {
	Version            uint64                `json:"schema_version"`
	ConnectionID       string                `json:"connection_id"`
	DatabaseInfo       DatabaseSummary       `json:"database_info"`
	TablesCount        int                   `json:"tables_count"`
	RelationshipsCount int                   `json:"relationships_count"`
	Tables             []TableSummary        `json:"tables"`
	EmployeeTables     []string              `json:"employee_tables"`
	DepartmentTables   []string              `json:"department_tables"`
	OtherTables        []string              `json:"other_tables"`
	TablePurposes      map[string]PurposeTag `json:"table_purposes"`
	Relationships      []ForeignKeyRelation  `json:"relationships"`
	Diagnostics        []string              `json:"diagnostics,omitempty"`
	DiscoveredAt       time.Time             `json:"discovered_at"`
}

// Summarize groups tables by purpose. Salary, document metadata and
// untagged tables all land in OtherTables.
func Summarize(g *SchemaGraph) SchemaSummary {
	s := SchemaSummary{
		Version:            g.Version,
		ConnectionID:       g.ConnectionID,
		DatabaseInfo:       DatabaseSummary{Name: g.DatabaseName, Version: g.DatabaseVersion, Dialect: g.Dialect},
		TablesCount:        len(g.Tables),
		RelationshipsCount: len(g.Relations),
		Tables:             make([]TableSummary, 0, len(g.Tables)),
		EmployeeTables:     []string{},
		DepartmentTables:   []string{},
		OtherTables:        []string{},
		TablePurposes:      make(map[string]PurposeTag, len(g.Tables)),
		Relationships:      append([]ForeignKeyRelation{}, g.Relations...),
		Diagnostics:        g.Diagnostics,
		DiscoveredAt:       g.DiscoveredAt,
	}
	for _, t := range g.Tables {
		s.Tables = append(s.Tables, TableSummary{
			Name:          t.Name,
			Purpose:       t.Purpose,
			PurposeReason: t.PurposeReason,
			ColumnCount:   len(t.Columns),
			RowEstimate:   t.RowEstimate,
			PrimaryKey:    t.PrimaryKey,
		})
		s.TablePurposes[t.Name] = t.Purpose
		switch t.Purpose {
		case PurposeEmployee:
			s.EmployeeTables = append(s.EmployeeTables, t.Name)
		case PurposeDepartment:
			s.DepartmentTables = append(s.DepartmentTables, t.Name)
		default:
			s.OtherTables = append(s.OtherTables, t.Name)
		}
	}
	return s
}

type VisualColumn struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key"`
}

type VisualNode struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Purpose PurposeTag     `json:"purpose"`
	Columns []VisualColumn `json:"columns"`
}

type VisualLink struct {
	Source  string            `json:"source"`
	Target  string            `json:"target"`
	Type    RelationKind      `json:"type"`
	Columns map[string]string `json:"columns"`
}

type SchemaVisualization struct {
	Nodes         []VisualNode          `json:"nodes"`
	Links         []VisualLink          `json:"links"`
	TablePurposes map[string]PurposeTag `json:"table_purposes"`
}

// Visualize lays the graph out as nodes and links for diagram rendering.
func Visualize(g *SchemaGraph) SchemaVisualization {
	v := SchemaVisualization{
		Nodes:         make([]VisualNode, 0, len(g.Tables)),
		Links:         make([]VisualLink, 0, len(g.Relations)),
		TablePurposes: make(map[string]PurposeTag, len(g.Tables)),
	}
	for _, t := range g.Tables {
		n := VisualNode{ID: t.Name, Type: "table", Purpose: t.Purpose}
		for _, c := range t.Columns {
			n.Columns = append(n.Columns, VisualColumn{
				Name:       c.Name,
				Type:       c.Type,
				PrimaryKey: slices.Contains(t.PrimaryKey, c.Name),
			})
		}
		v.Nodes = append(v.Nodes, n)
		v.TablePurposes[t.Name] = t.Purpose
	}
	for _, r := range g.Relations {
		v.Links = append(v.Links, VisualLink{
			Source:  r.SourceTable,
			Target:  r.TargetTable,
			Type:    r.Kind,
			Columns: map[string]string{"from": r.SourceColumn, "to": r.TargetColumn},
		})
	}
	return v
}
