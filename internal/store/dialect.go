package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/rosterbench/rosterbench/internal/config"
	rerrors "github.com/rosterbench/rosterbench/internal/errors"
)

// Dialect abstracts the differences between the supported SQL backends:
// DDL shape, placeholder style, id reporting, and error classification.
type Dialect interface {
	// Name returns the driver name registered with database/sql.
	Name() string

	// CreateTableSQL returns the persons DDL.
	CreateTableSQL() string

	// InsertSQL returns the parameterized insert statement.
	InsertSQL() string

	// InsertReturnsID reports whether InsertSQL yields the assigned id as
	// a result row (RETURNING) rather than through LastInsertId.
	InsertReturnsID() bool

	// CriteriaSQL returns the parameterized gender+prefix filter query.
	CriteriaSQL() string

	// ListIndexesSQL returns the secondary-index listing query.
	ListIndexesSQL() string

	// Classify maps a driver error to an error category and code.
	Classify(err error) (rerrors.ErrorCategory, string)
}

// DialectFor returns the dialect for the configured driver.
func DialectFor(d config.Driver) (Dialect, error) {
	switch d {
	case config.DriverSQLite:
		return sqliteDialect{}, nil
	case config.DriverPostgres:
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", d)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string           { return "sqlite3" }
func (sqliteDialect) CreateTableSQL() string { return CreateTableSQLiteSQL }
func (sqliteDialect) InsertSQL() string      { return InsertSQLiteSQL }
func (sqliteDialect) InsertReturnsID() bool  { return false }
func (sqliteDialect) CriteriaSQL() string    { return CriteriaSQLiteSQL }
func (sqliteDialect) ListIndexesSQL() string { return ListIndexesSQLiteSQL }

func (sqliteDialect) Classify(err error) (rerrors.ErrorCategory, string) {
	if cat, code, ok := classifyCommon(err); ok {
		return cat, code
	}

	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrConstraint:
			return rerrors.ErrCategoryIntegrity, rerrors.CodeConstraintViolation
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrCantOpen, sqlite3.ErrProtocol:
			return rerrors.ErrCategoryConnectivity, rerrors.CodeConnectionLost
		}
	}
	return rerrors.ErrCategoryInternal, rerrors.CodeUnexpected
}

type postgresDialect struct{}

func (postgresDialect) Name() string           { return "postgres" }
func (postgresDialect) CreateTableSQL() string { return CreateTablePostgresSQL }
func (postgresDialect) InsertSQL() string      { return InsertPostgresSQL }
func (postgresDialect) InsertReturnsID() bool  { return true }
func (postgresDialect) CriteriaSQL() string    { return CriteriaPostgresSQL }
func (postgresDialect) ListIndexesSQL() string { return ListIndexesPostgresSQL }

func (postgresDialect) Classify(err error) (rerrors.ErrorCategory, string) {
	if cat, code, ok := classifyCommon(err); ok {
		return cat, code
	}

	var perr *pq.Error
	if errors.As(err, &perr) {
		switch {
		case perr.Code == "57014": // query_canceled
			return rerrors.ErrCategoryTimeout, rerrors.CodeQueryTimeout
		case perr.Code.Class() == "23": // integrity_constraint_violation
			return rerrors.ErrCategoryIntegrity, rerrors.CodeConstraintViolation
		case perr.Code.Class() == "08": // connection_exception
			return rerrors.ErrCategoryConnectivity, rerrors.CodeConnectionLost
		case perr.Code.Class() == "53": // insufficient_resources
			return rerrors.ErrCategoryConnectivity, rerrors.CodeConnectionLost
		}
	}
	return rerrors.ErrCategoryInternal, rerrors.CodeUnexpected
}

// classifyCommon handles the driver-independent failure modes.
func classifyCommon(err error) (rerrors.ErrorCategory, string, bool) {
	switch {
	case err == nil:
		return "", "", false
	case errors.Is(err, context.DeadlineExceeded):
		return rerrors.ErrCategoryTimeout, rerrors.CodeQueryTimeout, true
	case errors.Is(err, driver.ErrBadConn):
		return rerrors.ErrCategoryConnectivity, rerrors.CodeConnectionLost, true
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return rerrors.ErrCategoryConnectivity, rerrors.CodeConnectionLost, true
	}
	return "", "", false
}
