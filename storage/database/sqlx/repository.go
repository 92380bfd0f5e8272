// Package sqlxrepos implements the domain repositories on top of jmoiron/sqlx.
// Queries are written with `?` bindvars and rebound for the engine in use (postgres, pgx or sqlite).
package sqlxrepos

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/trezcool/peereval/core"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type repository struct {
	db *sqlx.DB
}

// exec returns the executor passed by the caller (usually a transaction), or the pool.
func (repo repository) exec(exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 && exec[0] != nil {
		return exec[0]
	}
	return repo.db
}

func trapNoRowsErr(err error, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func sqlState(err error) (pgCode string, sqliteCode int) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), 0
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, 0
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return "", liteErr.Code()
	}
	return "", 0
}

// IsUniqueViolation reports whether err is a unique (or primary key) constraint violation.
func IsUniqueViolation(err error) bool {
	pgCode, liteCode := sqlState(err)
	return pgCode == pgUniqueViolation ||
		liteCode == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		liteCode == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// IsForeignKeyViolation reports whether err is a foreign key constraint violation.
func IsForeignKeyViolation(err error) bool {
	pgCode, liteCode := sqlState(err)
	return pgCode == pgForeignKeyViolation || liteCode == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}
