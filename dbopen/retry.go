package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const maxRetries = 3

// IsBusy reports whether err is an SQLite BUSY or locked condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// retry runs fn up to maxRetries times while it fails with a busy error,
// sleeping 100, then 200 ms between attempts.
func retry(ctx context.Context, fn func() error) error {
	var err error
	for i := range maxRetries {
		if err = fn(); err == nil || !IsBusy(err) {
			return err
		}
		if i == maxRetries-1 {
			break
		}
		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("dbopen: context cancelled during retry: %w", ctx.Err())
		case <-t.C:
		}
	}
	return err
}

// RunTx executes fn in a transaction, retrying the whole transaction when
// SQLite reports it busy.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return retry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	})
}

// Exec executes a statement, retrying when SQLite reports it busy.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retry(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}
