// Package store provides SQL-backed persistence for the persons table.
package store

// Schema contains the SQL definitions for the persons table. The table is
// append-only in normal operation; the flush command is the only bulk
// removal path. Secondary indexes are managed separately by the index
// manager.

// CreateTableSQLiteSQL creates the persons table on SQLite.
const CreateTableSQLiteSQL = `
CREATE TABLE IF NOT EXISTS persons (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    full_name TEXT NOT NULL,
    birth_date DATE NOT NULL,
    gender TEXT NOT NULL CHECK (gender IN ('Male', 'Female'))
)`

// CreateTablePostgresSQL creates the persons table on PostgreSQL.
const CreateTablePostgresSQL = `
CREATE TABLE IF NOT EXISTS persons (
    id BIGSERIAL PRIMARY KEY,
    full_name VARCHAR(255) NOT NULL,
    birth_date DATE NOT NULL,
    gender VARCHAR(50) NOT NULL CHECK (gender IN ('Male', 'Female'))
)`

// Insert statements. SQLite reports the assigned id through the driver's
// LastInsertId; PostgreSQL returns it via RETURNING.
const (
	InsertSQLiteSQL = `
INSERT INTO persons (full_name, birth_date, gender)
VALUES (?, ?, ?)`

	InsertPostgresSQL = `
INSERT INTO persons (full_name, birth_date, gender)
VALUES ($1, $2, $3)
RETURNING id`
)

// DistinctSQL is the representative read query: unique rows by value,
// ordered. It serves both the listing operation and the benchmark workload.
const DistinctSQL = `
SELECT DISTINCT full_name, birth_date, gender
FROM persons
ORDER BY full_name, birth_date`

// Criteria statements filter by gender and surname prefix, the workload the
// secondary indexes are meant to accelerate.
const (
	CriteriaSQLiteSQL = `
SELECT full_name, birth_date, gender
FROM persons
WHERE gender = ? AND full_name LIKE ?
ORDER BY full_name`

	CriteriaPostgresSQL = `
SELECT full_name, birth_date, gender
FROM persons
WHERE gender = $1 AND full_name LIKE $2
ORDER BY full_name`
)

// CountSQL reports the current table cardinality.
const CountSQL = `SELECT COUNT(*) FROM persons`

// DeleteAllSQL removes every row. Schema and indexes survive.
const DeleteAllSQL = `DELETE FROM persons`

// AnalyzeSQL refreshes planner statistics after bulk writes.
const AnalyzeSQL = `ANALYZE persons`

// Index listing queries return (index_name, column_name, ordinal) rows for
// user-created secondary indexes on the persons table, ordered by index and
// column position.
const (
	ListIndexesSQLiteSQL = `
SELECT il.name, ii.name, ii.seqno
FROM pragma_index_list('persons') il
JOIN pragma_index_info(il.name) ii
WHERE il.origin = 'c'
ORDER BY il.name, ii.seqno`

	ListIndexesPostgresSQL = `
SELECT i.relname, a.attname, array_position(ix.indkey, a.attnum)
FROM pg_class t
JOIN pg_index ix ON t.oid = ix.indrelid
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
WHERE t.relname = 'persons' AND NOT ix.indisprimary
ORDER BY i.relname, array_position(ix.indkey, a.attnum)`
)

// TableColumns lists the persons columns that may carry a secondary index.
// Index requests are validated against this set before any SQL is built.
var TableColumns = []string{"id", "full_name", "birth_date", "gender"}
