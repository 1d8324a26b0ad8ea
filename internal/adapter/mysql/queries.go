package mysql

const queryDatabaseInfo = `SELECT COALESCE(DATABASE(), ''), VERSION()`

const queryListTables = `
	SELECT TABLE_NAME, COALESCE(TABLE_ROWS, 0), COALESCE(TABLE_COMMENT, '')
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY TABLE_NAME`

const queryTableExists = `
	SELECT COUNT(*)
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND TABLE_TYPE = 'BASE TABLE'`

// queryColumns takes the distinct estimate from the cardinality of any index
// led by the column.
const queryColumns = `
	SELECT
		c.COLUMN_NAME,
		c.DATA_TYPE,
		c.IS_NULLABLE = 'YES',
		c.COLUMN_KEY = 'PRI',
		COALESCE((
			SELECT MAX(s.CARDINALITY)
			FROM information_schema.STATISTICS s
			WHERE s.TABLE_SCHEMA = c.TABLE_SCHEMA
				AND s.TABLE_NAME = c.TABLE_NAME
				AND s.COLUMN_NAME = c.COLUMN_NAME
				AND s.SEQ_IN_INDEX = 1
		), 0)
	FROM information_schema.COLUMNS c
	WHERE c.TABLE_SCHEMA = DATABASE() AND c.TABLE_NAME = ?
	ORDER BY c.ORDINAL_POSITION`

const queryForeignKeys = `
	SELECT CONSTRAINT_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
	FROM information_schema.KEY_COLUMN_USAGE
	WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL
	ORDER BY ORDINAL_POSITION`
