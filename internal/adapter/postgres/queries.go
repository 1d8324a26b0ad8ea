package postgres

const queryDatabaseInfo = `
	SELECT current_database(), current_setting('server_version'), COALESCE(current_schema(), '')`

// queryListTables has one %s placeholder for the schema filter clause.
const queryListTables = `
	SELECT
		t.table_schema,
		t.table_name,
		GREATEST(COALESCE(c.reltuples, 0), 0)::bigint AS row_estimate,
		COALESCE(pg_catalog.obj_description(c.oid, 'pg_class'), '') AS comment
	FROM information_schema.tables t
	LEFT JOIN pg_catalog.pg_namespace n ON n.nspname = t.table_schema
	LEFT JOIN pg_catalog.pg_class c ON c.relnamespace = n.oid AND c.relname = t.table_name
	WHERE %s
		AND t.table_type = 'BASE TABLE'
	ORDER BY t.table_schema, t.table_name`

// queryTableSchema has one %s placeholder for the schema filter clause.
// $1 is always table_name; schema filter params start at $2.
const queryTableSchema = `
	SELECT t.table_schema
	FROM information_schema.tables t
	WHERE t.table_name = $1
		AND t.table_type = 'BASE TABLE'
		AND %s
	ORDER BY t.table_schema
	LIMIT 1`

// queryColumns turns pg_stats.n_distinct into an absolute estimate; negative
// values are a fraction of the row count.
const queryColumns = `
	SELECT
		c.column_name,
		c.data_type,
		c.is_nullable = 'YES',
		COALESCE(
			CASE WHEN s.n_distinct < 0
				THEN -s.n_distinct * GREATEST(cl.reltuples, 0)
				ELSE s.n_distinct
			END, 0)::bigint
	FROM information_schema.columns c
	LEFT JOIN pg_catalog.pg_class cl
		ON cl.oid = (quote_ident(c.table_schema) || '.' || quote_ident(c.table_name))::regclass
	LEFT JOIN pg_catalog.pg_stats s
		ON s.schemaname = c.table_schema AND s.tablename = c.table_name AND s.attname = c.column_name
		AND NOT s.inherited
	WHERE c.table_schema = $1 AND c.table_name = $2
	ORDER BY c.ordinal_position`

const queryPrimaryKeys = `
	SELECT a.attname
	FROM pg_index i
	JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
	WHERE i.indrelid = (quote_ident($1) || '.' || quote_ident($2))::regclass
		AND i.indisprimary`

const queryForeignKeys = `
	SELECT
		tc.constraint_name,
		kcu.column_name,
		ccu.table_name AS referenced_table,
		ccu.column_name AS referenced_column
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
	JOIN information_schema.constraint_column_usage ccu
		ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
	WHERE tc.constraint_type = 'FOREIGN KEY'
		AND tc.table_schema = $1
		AND tc.table_name = $2
	ORDER BY kcu.ordinal_position`
