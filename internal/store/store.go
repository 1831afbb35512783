package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rosterbench/rosterbench/internal/config"
	rerrors "github.com/rosterbench/rosterbench/internal/errors"
	"github.com/rosterbench/rosterbench/pkg/types"
)

// Store provides access to the persons table over an injected database
// handle. One Store owns one write connection; all operations are
// sequential.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex // Write-only lock

	// Prepared statement cache
	stmtCache map[string]*sql.Stmt
	stmtMu    sync.RWMutex
}

// Open opens the configured database and verifies connectivity. An
// unreachable database is a retryable connectivity failure.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	dialect, err := DialectFor(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	var dsn string
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		dsn = "file:" + cfg.Database.SQLitePath + "?_journal_mode=WAL&_busy_timeout=5000&_loc=UTC"
	case config.DriverPostgres:
		dsn = cfg.PostgresDSN()
	}

	db, err := sql.Open(dialect.Name(), dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	// Single writer; the workload is strictly sequential.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, rerrors.NewConnectivityError(rerrors.CodeConnectFailed, "store: database unreachable", err)
	}

	return New(db, dialect), nil
}

// New wraps an existing database handle. The caller keeps ownership of
// pool sizing; Close still closes the handle.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:        db,
		dialect:   dialect,
		stmtCache: make(map[string]*sql.Stmt),
	}
}

// Close releases prepared statements and the database handle.
func (s *Store) Close() error {
	s.stmtMu.Lock()
	for _, stmt := range s.stmtCache {
		stmt.Close()
	}
	s.stmtCache = nil
	s.stmtMu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: failed to close database: %w", err)
	}
	return nil
}

// Dialect returns the active SQL dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// EnsureSchema creates the persons table if absent. Safe to repeat.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, s.dialect.CreateTableSQL()); err != nil {
		return s.wrap("create schema", err)
	}
	return nil
}

// InsertPerson validates and inserts one row, returning the assigned id.
func (s *Store) InsertPerson(ctx context.Context, p types.Person) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, rerrors.WrapValidationError(validationCode(err), "store: invalid person", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, err := s.getOrPrepare(ctx, s.dialect.InsertSQL())
	if err != nil {
		return 0, err
	}

	if s.dialect.InsertReturnsID() {
		var id int64
		if err := stmt.QueryRowContext(ctx, p.FullName, p.BirthDateString(), string(p.Gender)).Scan(&id); err != nil {
			return 0, s.wrap("insert person", err)
		}
		return id, nil
	}

	res, err := stmt.ExecContext(ctx, p.FullName, p.BirthDateString(), string(p.Gender))
	if err != nil {
		return 0, s.wrap("insert person", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, s.wrap("read inserted id", err)
	}
	return id, nil
}

// InsertChunk persists all records in one transaction: either every row
// in the chunk commits or none do. The transaction is rolled back on any
// exit path that does not reach the commit.
func (s *Store) InsertChunk(ctx context.Context, records []types.Person) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, err := s.getOrPrepare(ctx, s.dialect.InsertSQL())
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("begin chunk transaction", err)
	}
	defer tx.Rollback()

	txStmt := tx.StmtContext(ctx, stmt)
	defer txStmt.Close()

	for _, p := range records {
		if s.dialect.InsertReturnsID() {
			var id int64
			if err := txStmt.QueryRowContext(ctx, p.FullName, p.BirthDateString(), string(p.Gender)).Scan(&id); err != nil {
				return s.wrap("insert row", err)
			}
			continue
		}
		if _, err := txStmt.ExecContext(ctx, p.FullName, p.BirthDateString(), string(p.Gender)); err != nil {
			return s.wrap("insert row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.wrap("commit chunk", err)
	}
	return nil
}

// ListDistinct returns the unique rows by value, ordered by name and
// birth date. The id column is intentionally absent: two rows differing
// only by id are the same person value.
func (s *Store) ListDistinct(ctx context.Context) ([]types.Person, error) {
	stmt, err := s.getOrPrepare(ctx, DistinctSQL)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, s.wrap("query distinct rows", err)
	}
	defer rows.Close()

	return s.scanPersons(rows)
}

// RunDistinct executes the distinct query and drains the result without
// accumulating it, returning the row count. This is the benchmark
// workload.
func (s *Store) RunDistinct(ctx context.Context) (int, error) {
	stmt, err := s.getOrPrepare(ctx, DistinctSQL)
	if err != nil {
		return 0, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return 0, s.wrap("query distinct rows", err)
	}
	defer rows.Close()

	return s.drainPersons(rows)
}

// QueryByCriteria returns rows matching a gender and a surname prefix,
// ordered by name.
func (s *Store) QueryByCriteria(ctx context.Context, gender types.Gender, prefix string) ([]types.Person, error) {
	stmt, err := s.getOrPrepare(ctx, s.dialect.CriteriaSQL())
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, string(gender), prefix+"%")
	if err != nil {
		return nil, s.wrap("query by criteria", err)
	}
	defer rows.Close()

	return s.scanPersons(rows)
}

// RunCriteria executes the criteria query and drains it, returning the
// row count. Used as the alternate benchmark workload.
func (s *Store) RunCriteria(ctx context.Context, gender types.Gender, prefix string) (int, error) {
	stmt, err := s.getOrPrepare(ctx, s.dialect.CriteriaSQL())
	if err != nil {
		return 0, err
	}

	rows, err := stmt.QueryContext(ctx, string(gender), prefix+"%")
	if err != nil {
		return 0, s.wrap("query by criteria", err)
	}
	defer rows.Close()

	return s.drainPersons(rows)
}

// CountPersons returns the current table cardinality.
func (s *Store) CountPersons(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, CountSQL).Scan(&n); err != nil {
		return 0, s.wrap("count persons", err)
	}
	return n, nil
}

// DeleteAll removes every row in one transaction and reports how many
// were removed. Schema and indexes survive.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, DeleteAllSQL)
	if err != nil {
		return 0, s.wrap("delete all rows", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.wrap("count deleted rows", err)
	}
	return n, nil
}

// Analyze refreshes planner statistics. Called after bulk loads.
func (s *Store) Analyze(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, AnalyzeSQL); err != nil {
		return s.wrap("analyze table", err)
	}
	return nil
}

// IndexInfo describes one secondary index on the persons table.
type IndexInfo struct {
	Name    string
	Columns []string
}

// ListIndexes returns the user-created secondary indexes on persons,
// columns in index order.
func (s *Store) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.ListIndexesSQL())
	if err != nil {
		return nil, s.wrap("list indexes", err)
	}
	defer rows.Close()

	var infos []IndexInfo
	byName := make(map[string]int)
	for rows.Next() {
		var name, column string
		var ordinal int
		if err := rows.Scan(&name, &column, &ordinal); err != nil {
			return nil, fmt.Errorf("store: failed to scan index row: %w", err)
		}
		i, ok := byName[name]
		if !ok {
			i = len(infos)
			byName[name] = i
			infos = append(infos, IndexInfo{Name: name})
		}
		infos[i].Columns = append(infos[i].Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to read index rows: %w", err)
	}
	return infos, nil
}

// CreateIndex creates a secondary index over the given ordered columns.
// Identifiers are validated before any SQL text is built.
func (s *Store) CreateIndex(ctx context.Context, name string, columns []string) error {
	if err := ValidateColumns(columns); err != nil {
		return err
	}
	if err := validateIdentifier(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON persons (%s)", name, strings.Join(columns, ", "))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return s.wrap("create index "+name, err)
	}
	return nil
}

// DropIndex drops the named index if present.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	if err := validateIdentifier(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf("DROP INDEX IF EXISTS %s", name)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return s.wrap("drop index "+name, err)
	}
	return nil
}

// ValidateColumns checks that every column belongs to the persons table.
func ValidateColumns(columns []string) error {
	if len(columns) == 0 {
		return rerrors.NewValidationError(rerrors.CodeInvalidArgument, "store: empty column set")
	}
	for _, col := range columns {
		if !isTableColumn(col) {
			return rerrors.NewValidationError(rerrors.CodeInvalidArgument,
				fmt.Sprintf("store: unknown column %q", col))
		}
	}
	return nil
}

func isTableColumn(name string) bool {
	for _, col := range TableColumns {
		if col == name {
			return true
		}
	}
	return false
}

// validateIdentifier accepts the usual unquoted SQL identifier shape.
func validateIdentifier(name string) error {
	if name == "" {
		return rerrors.NewValidationError(rerrors.CodeInvalidArgument, "store: empty identifier")
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return rerrors.NewValidationError(rerrors.CodeInvalidArgument,
					fmt.Sprintf("store: invalid identifier %q", name))
			}
		default:
			return rerrors.NewValidationError(rerrors.CodeInvalidArgument,
				fmt.Sprintf("store: invalid identifier %q", name))
		}
	}
	return nil
}

// getOrPrepare returns a cached prepared statement for the query.
func (s *Store) getOrPrepare(ctx context.Context, query string) (*sql.Stmt, error) {
	s.stmtMu.RLock()
	stmt, ok := s.stmtCache[query]
	s.stmtMu.RUnlock()
	if ok {
		return stmt, nil
	}

	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()
	if stmt, ok := s.stmtCache[query]; ok {
		return stmt, nil
	}

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, s.wrap("prepare statement", err)
	}
	s.stmtCache[query] = stmt
	return stmt, nil
}

// scanPersons reads person rows in (full_name, birth_date, gender) shape.
func (s *Store) scanPersons(rows *sql.Rows) ([]types.Person, error) {
	var persons []types.Person
	for rows.Next() {
		var p types.Person
		var birth time.Time
		var gender string
		if err := rows.Scan(&p.FullName, &birth, &gender); err != nil {
			return nil, fmt.Errorf("store: failed to scan person: %w", err)
		}
		p.BirthDate = birth.UTC()
		p.Gender = types.Gender(gender)
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("read person rows", err)
	}
	return persons, nil
}

// drainPersons scans and discards person rows, returning the count.
func (s *Store) drainPersons(rows *sql.Rows) (int, error) {
	count := 0
	for rows.Next() {
		var name, gender string
		var birth time.Time
		if err := rows.Scan(&name, &birth, &gender); err != nil {
			return count, fmt.Errorf("store: failed to scan person: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, s.wrap("read person rows", err)
	}
	return count, nil
}

// wrap classifies a driver error into the taxonomy with operation context.
func (s *Store) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	cat, code := s.dialect.Classify(err)
	return rerrors.Wrap(cat, code, "store: "+op, err)
}

// validationCode maps a types validation failure to its error code.
func validationCode(err error) string {
	switch {
	case errors.Is(err, types.ErrEmptyName):
		return rerrors.CodeEmptyName
	case errors.Is(err, types.ErrInvalidBirthDate):
		return rerrors.CodeInvalidDate
	case errors.Is(err, types.ErrUnknownGender):
		return rerrors.CodeInvalidGender
	default:
		return rerrors.CodeInvalidArgument
	}
}
