package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferRelations(t *testing.T) {
	tables := []Table{
		employeesTable(),
		departmentsTable(),
		{
			Name:       "salaries",
			Columns:    []Column{{Name: "id", Type: "integer"}, {Name: "employee_id", Type: "integer"}, {Name: "amount", Type: "numeric"}},
			PrimaryKey: []string{"id"},
		},
		{
			Name:       "reviews",
			Columns:    []Column{{Name: "id", Type: "integer"}, {Name: "employee_id", Type: "uuid"}, {Name: "project_id", Type: "integer"}},
			PrimaryKey: []string{"id"},
		},
	}

	rels := InferRelations(tables, nil)

	require.Len(t, rels, 2)
	assert.Equal(t, ForeignKeyRelation{
		SourceTable: "employees", SourceColumn: "dept_id",
		TargetTable: "departments", TargetColumn: "id", Kind: RelationInferred,
	}, rels[0])
	assert.Equal(t, "salaries", rels[1].SourceTable)
	assert.Equal(t, "employees", rels[1].TargetTable)
	// reviews.employee_id is a uuid and cannot reference an integer key;
	// project_id has no projects table.
}

func TestInferRelations_SkipsTablesWithDeclaredKeys(t *testing.T) {
	tables := []Table{employeesTable(), departmentsTable()}
	declared := []ForeignKeyRelation{{SourceTable: "employees", SourceColumn: "salary", TargetTable: "departments", TargetColumn: "id"}}

	assert.Empty(t, InferRelations(tables, declared))
}

func TestInferRelations_TargetsExistInGraph(t *testing.T) {
	tables := []Table{
		{Name: "employees", Columns: []Column{{Name: "employee_id", Type: "int"}, {Name: "manager_id", Type: "int"}}, PrimaryKey: []string{"employee_id"}},
		{Name: "orders", Columns: []Column{{Name: "customer_id", Type: "int"}}},
	}
	rels := InferRelations(tables, nil)
	g := NewSchemaGraph(SchemaGraph{}, tables, rels)

	// employee_id is the table's own key and no managers/customers table exists.
	assert.Empty(t, rels)
	for _, r := range g.Relations {
		_, ok := g.Table(r.TargetTable)
		assert.True(t, ok)
	}
}
