package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	dErrors "contactlink/pkg/domain-errors"
	"contactlink/pkg/platform/sentinel"
	txcontext "contactlink/pkg/platform/tx"
)

// PoolConfig sizes the database/sql pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres opens a pgx-backed pool for url and applies the contacts schema.
func OpenPostgres(ctx context.Context, url string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := EnsurePostgresSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// PostgresStore persists contacts in PostgreSQL.
type PostgresStore struct {
	sqlStore
}

// NewPostgres constructs a PostgreSQL-backed contact store. db must use the
// pgx stdlib driver.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{sqlStore: newSQLStore(db, dialect{
		placeholder: sq.Dollar,
		encodeTime:  func(t time.Time) any { return t.UTC() },
		classify:    classifyPostgres,
	})}
}

// classifyPostgres maps driver errors onto sentinel errors where the service
// reacts differently.
func classifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w", pgErr.Message, sentinel.ErrNotFound)
		case "40001", "40P01", "55P03", "57P01", "57P03": // serialization, deadlock, lock_not_available, shutdown
			return fmt.Errorf("%s: %w", pgErr.Message, sentinel.ErrUnavailable)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%v: %w", err, sentinel.ErrUnavailable)
	}
	return err
}

// PostgresTx runs identify transactions in PostgreSQL, serializing on
// transaction-scoped advisory locks derived from the identity keys.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB, timeout time.Duration) *PostgresTx {
	return &PostgresTx{db: db, timeout: timeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, keys []string, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := txcontext.WithTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapTxErr(ctx, classifyPostgres(err), "failed to begin transaction")
	}

	// keys arrive sorted, so concurrent transactions lock in the same order.
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
			_ = tx.Rollback()
			return wrapTxErr(ctx, classifyPostgres(err), "failed to lock identity key")
		}
	}

	txCtx := txcontext.WithLocker(txcontext.WithTx(ctx, tx), advisoryLocker{tx: tx})
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapTxErr(ctx, classifyPostgres(err), "failed to commit transaction")
	}
	return nil
}

// advisoryLocker takes further advisory locks inside a running transaction.
// Those are taken out of order, so it only tries and never waits.
type advisoryLocker struct {
	tx *sql.Tx
}

func (l advisoryLocker) TryLock(ctx context.Context, keys []string) (bool, error) {
	for _, key := range keys {
		var ok bool
		err := l.tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock(hashtextextended($1, 0))", key).Scan(&ok)
		if err != nil {
			return false, fmt.Errorf("try lock %s: %w", key, classifyPostgres(err))
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func wrapTxErr(ctx context.Context, err error, msg string) error {
	switch {
	case ctx.Err() != nil:
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
