package core

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext

		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

var (
	_ DB           = (*sqlx.DB)(nil)
	_ DBTransactor = (*sqlx.Tx)(nil)
)

// WithTx runs fn inside a transaction borrowed from db.
// The transaction is committed when fn returns nil and rolled back on error or panic.
func WithTx(ctx context.Context, db DB, fn func(tx DBExecutor) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				err = errors.Wrapf(err, "rolling back (%v)", rbErr)
			}
			return
		}
		err = errors.Wrap(tx.Commit(), "committing transaction")
	}()
	return fn(tx)
}

// WithSavepoint runs fn under a named savepoint of the ongoing transaction exec.
// When fn fails, only the work done since the savepoint is undone and the transaction stays usable.
func WithSavepoint(ctx context.Context, exec DBExecutor, name string, fn func() error) error {
	if _, err := exec.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return errors.Wrap(err, "creating savepoint")
	}
	if fnErr := fn(); fnErr != nil {
		if _, err := exec.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			return errors.Wrapf(fnErr, "rolling back to savepoint (%v)", err)
		}
		if _, err := exec.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
			return errors.Wrapf(fnErr, "releasing savepoint (%v)", err)
		}
		return fnErr
	}
	_, err := exec.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return errors.Wrap(err, "releasing savepoint")
}

// SavepointName returns a savepoint identifier unique within a batch.
func SavepointName(prefix string, n int) string {
	return fmt.Sprintf("%s_%d", prefix, n)
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Pagination is a page request; pages start at 1.
type Pagination struct {
	Page  int
	Limit int
}

func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// TotalPages returns the number of pages needed to hold total items.
func (p Pagination) TotalPages(total int) int {
	if p.Limit <= 0 {
		return 1
	}
	return (total + p.Limit - 1) / p.Limit
}
