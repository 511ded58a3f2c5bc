package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	dErrors "contactlink/pkg/domain-errors"
	"contactlink/pkg/platform/sentinel"
	txcontext "contactlink/pkg/platform/tx"
)

// SQLiteStore persists contacts in a local SQLite file.
type SQLiteStore struct {
	sqlStore
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// contacts schema.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := EnsureSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewSQLite(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{sqlStore: newSQLStore(db, dialect{
		placeholder: sq.Question,
		encodeTime:  func(t time.Time) any { return toMillis(t) },
		classify:    classifySQLite,
	})}
}

func classifySQLite(err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%v: %w", err, sentinel.ErrNotFound)
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return fmt.Errorf("%v: %w", err, sentinel.ErrUnavailable)
		}
	}
	return err
}

// SQLiteTx runs identify transactions against SQLite. SQLite has a single
// writer, so transactions are serialized process-wide and keys are ignored.
type SQLiteTx struct {
	mu      sync.Mutex
	db      *sql.DB
	timeout time.Duration
}

func NewSQLiteTx(db *sql.DB, timeout time.Duration) *SQLiteTx {
	return &SQLiteTx{db: db, timeout: timeout}
}

func (t *SQLiteTx) RunInTx(ctx context.Context, _ []string, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := txcontext.WithTimeout(ctx, t.timeout)
	defer cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapTxErr(ctx, classifySQLite(err), "failed to begin transaction")
	}
	if err := fn(txcontext.WithLocker(txcontext.WithTx(ctx, tx), serialLocker{})); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapTxErr(ctx, classifySQLite(err), "failed to commit transaction")
	}
	return nil
}

// serialLocker grants every key: the transaction already excludes all others.
type serialLocker struct{}

func (serialLocker) TryLock(context.Context, []string) (bool, error) {
	return true, nil
}
