// Package tx carries an open SQL transaction through context so stores can
// join the transaction started by a RunInTx boundary without widening their
// method signatures.
package tx

import (
	"context"
	"database/sql"
	"time"
)

type ctxKey struct{}

// Querier is the subset of *sql.DB and *sql.Tx the SQL stores need.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return tx, ok
}

// QuerierFrom returns the transaction in ctx, or db when none is open.
func QuerierFrom(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// DefaultTimeout bounds a transaction whose caller set no deadline.
const DefaultTimeout = 5 * time.Second

// WithTimeout bounds ctx by timeout (DefaultTimeout when zero) unless ctx
// already carries a deadline.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// KeyLocker takes more identity keys inside a running transaction without
// waiting for them. It reports false when another transaction holds one of
// the keys; keys taken before the refusal stay held until the transaction
// ends.
type KeyLocker interface {
	TryLock(ctx context.Context, keys []string) (bool, error)
}

type lockerKey struct{}

// WithLocker exposes the running transaction's KeyLocker to fn.
func WithLocker(ctx context.Context, l KeyLocker) context.Context {
	return context.WithValue(ctx, lockerKey{}, l)
}

// LockerFrom extracts the KeyLocker of the running transaction if present.
func LockerFrom(ctx context.Context) (KeyLocker, bool) {
	l, ok := ctx.Value(lockerKey{}).(KeyLocker)
	return l, ok
}

// TryLock takes keys through the KeyLocker in ctx. Without one the
// transaction cannot grow, so it reports false.
func TryLock(ctx context.Context, keys []string) (bool, error) {
	l, ok := LockerFrom(ctx)
	if !ok {
		return false, nil
	}
	return l.TryLock(ctx, keys)
}
