// Package lock provides cross-instance leases on identity keys.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	dErrors "contactlink/pkg/domain-errors"
	"contactlink/pkg/platform/sentinel"
	txcontext "contactlink/pkg/platform/tx"
)

const leaseKeyPrefix = "contactlink:lease:"

const (
	defaultLeaseTTL     = 10 * time.Second
	defaultRetryBackoff = 20 * time.Millisecond
)

// releaseScript deletes the lease only when this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TxRunner is the transactional boundary a lease wraps.
type TxRunner interface {
	RunInTx(ctx context.Context, keys []string, fn func(txCtx context.Context) error) error
}

// RedisLeaseTx holds a Redis lease on every identity key for the duration of
// the wrapped transaction, so identify calls on different instances sharing a
// key run one after another.
type RedisLeaseTx struct {
	client  *redis.Client
	next    TxRunner
	ttl     time.Duration
	backoff time.Duration
}

type Option func(*RedisLeaseTx)

// WithLeaseTTL bounds how long a crashed holder can block a key.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(t *RedisLeaseTx) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithRetryBackoff sets the pause between acquisition attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(t *RedisLeaseTx) {
		if d > 0 {
			t.backoff = d
		}
	}
}

func NewRedisLeaseTx(client *redis.Client, next TxRunner, opts ...Option) *RedisLeaseTx {
	t := &RedisLeaseTx{
		client:  client,
		next:    next,
		ttl:     defaultLeaseTTL,
		backoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *RedisLeaseTx) RunInTx(ctx context.Context, keys []string, fn func(txCtx context.Context) error) error {
	ctx, cancel := txcontext.WithTimeout(ctx, t.ttl)
	defer cancel()

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	l := &lease{tx: t, token: uuid.NewString(), held: make(map[string]struct{})}
	defer func() {
		// Release with a fresh context so a cancelled request still frees its keys.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		l.releaseAll(releaseCtx)
	}()

	for _, key := range sorted {
		if err := t.acquire(ctx, key, l.token); err != nil {
			return err
		}
		l.add(key)
	}
	return t.next.RunInTx(ctx, keys, func(txCtx context.Context) error {
		l.next, _ = txcontext.LockerFrom(txCtx)
		return fn(txcontext.WithLocker(txCtx, l))
	})
}

// lease is the set of keys one transaction holds, in acquisition order.
type lease struct {
	tx    *RedisLeaseTx
	token string
	order []string
	held  map[string]struct{}
	next  txcontext.KeyLocker
}

func (l *lease) add(key string) {
	l.order = append(l.order, key)
	l.held[key] = struct{}{}
}

// TryLock leases keys that are not held yet with a single SETNX each, then
// lets the wrapped transaction take them too. A key leased by another holder
// refuses the whole call.
func (l *lease) TryLock(ctx context.Context, keys []string) (bool, error) {
	for _, key := range keys {
		if _, ok := l.held[key]; ok {
			continue
		}
		ok, err := l.tx.client.SetNX(ctx, leaseKeyPrefix+key, l.token, l.tx.ttl).Result()
		if err != nil {
			return false, fmt.Errorf("%v: %w", err, sentinel.ErrUnavailable)
		}
		if !ok {
			return false, nil
		}
		l.add(key)
	}
	if l.next == nil {
		return true, nil
	}
	return l.next.TryLock(ctx, keys)
}

func (l *lease) releaseAll(ctx context.Context) {
	for i := len(l.order) - 1; i >= 0; i-- {
		_ = l.tx.release(ctx, l.order[i], l.token)
	}
}

// acquire polls until the lease is taken or ctx ends.
func (t *RedisLeaseTx) acquire(ctx context.Context, key, token string) error {
	leaseKey := leaseKeyPrefix + key
	for {
		ok, err := t.client.SetNX(ctx, leaseKey, token, t.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "timed out acquiring identity lease")
			}
			return dErrors.Wrap(fmt.Errorf("%v: %w", err, sentinel.ErrUnavailable), dErrors.CodeUnavailable, "failed to acquire identity lease")
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(t.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return dErrors.Wrap(errors.Join(ctx.Err(), sentinel.ErrLockNotAcquired), dErrors.CodeTimeout, "timed out acquiring identity lease")
		case <-timer.C:
		}
	}
}

func (t *RedisLeaseTx) release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, t.client, []string{leaseKeyPrefix + key}, token).Err()
}
