package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/chepyr/go-task-share/internal/models"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
)

const (
	pgUniqueViolation = "23505"

	// extended result codes, see https://sqlite.org/rescode.html
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		return cgoErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			cgoErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pureErr *sqlite.Error
	if errors.As(err, &pureErr) {
		return pureErr.Code() == sqliteConstraintUnique ||
			pureErr.Code() == sqliteConstraintPrimaryKey
	}
	return false
}

func repoErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &models.RepositoryError{Op: op, Err: err}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func withTx(ctx context.Context, db *sql.DB, op string, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return repoErr(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return repoErr(op, err)
	}
	return nil
}
