package domain

func employeesTable() Table {
	return Table{
		Name: "employees",
		Columns: []Column{
			{Name: "id", Type: "integer"},
			{Name: "first_name", Type: "character varying"},
			{Name: "last_name", Type: "character varying"},
			{Name: "dept_id", Type: "integer", Nullable: true},
			{Name: "salary", Type: "numeric"},
			{Name: "hire_date", Type: "date"},
		},
		PrimaryKey: []string{"id"},
		SampleRows: []map[string]any{
			{"id": int64(1), "first_name": "Ada", "last_name": "Lovelace", "dept_id": int64(1), "salary": 120000.0, "hire_date": "2021-03-01"},
		},
	}
}

func departmentsTable() Table {
	return Table{
		Name: "departments",
		Columns: []Column{
			{Name: "id", Type: "integer"},
			{Name: "name", Type: "character varying"},
		},
		PrimaryKey: []string{"id"},
		SampleRows: []map[string]any{
			{"id": int64(1), "name": "Engineering"},
			{"id": int64(2), "name": "Finance"},
		},
	}
}

func resumesTable() Table {
	return Table{
		Name: "resume_files",
		Columns: []Column{
			{Name: "id", Type: "integer"},
			{Name: "file_name", Type: "varchar"},
			{Name: "body", Type: "text"},
		},
		PrimaryKey: []string{"id"},
	}
}

// hrGraph builds a classified graph with an inferred dept_id relation.
func hrGraph() *SchemaGraph {
	tables := []Table{employeesTable(), departmentsTable(), resumesTable()}
	for i := range tables {
		tables[i].Purpose, tables[i].PurposeReason = ClassifyTable(&tables[i])
	}
	rels := InferRelations(tables, nil)
	return NewSchemaGraph(SchemaGraph{Version: 1, Dialect: DialectPostgres, DatabaseName: "hr"}, tables, rels)
}
