package service

import (
	"context"
	"sort"
	"sync"
	"time"

	dErrors "contactlink/pkg/domain-errors"
	txcontext "contactlink/pkg/platform/tx"
)

// ContactStoreTx serializes the read-decide-write sequence of an identify
// call. keys are identity keys ("email:<v>", "phone:<v>"); two calls sharing a
// key never run fn concurrently. Implementations may wrap a database
// transaction with advisory locks or, in-memory, sharded mutexes. Stores join
// the transaction through txCtx.
type ContactStoreTx interface {
	RunInTx(ctx context.Context, keys []string, fn func(txCtx context.Context) error) error
}

// numContactShards bounds the number of mutexes guarding identity keys.
const numContactShards = 128

type shardedContactTx struct {
	shards  [numContactShards]sync.Mutex
	timeout time.Duration
}

// NewShardedTx returns an in-process ContactStoreTx. It only serializes calls
// within one process, so pair it with the in-memory store.
func NewShardedTx(timeout time.Duration) ContactStoreTx {
	return &shardedContactTx{timeout: timeout}
}

func (t *shardedContactTx) RunInTx(ctx context.Context, keys []string, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	ctx, cancel := txcontext.WithTimeout(ctx, t.timeout)
	defer cancel()

	// Ascending shard order so overlapping key sets cannot deadlock.
	held := &heldShards{tx: t, held: make(map[int]struct{})}
	for _, shard := range shardsFor(keys) {
		t.shards[shard].Lock()
		held.add(shard)
	}
	defer held.unlockAll()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(txcontext.WithLocker(ctx, held))
}

// heldShards tracks the shards one transaction holds, in acquisition order.
type heldShards struct {
	tx    *shardedContactTx
	order []int
	held  map[int]struct{}
}

func (h *heldShards) add(shard int) {
	h.order = append(h.order, shard)
	h.held[shard] = struct{}{}
}

// TryLock takes the shards of keys that are not held yet. Shards are taken
// out of order here, so it never blocks: when one is busy, the shards taken
// by this call are released and it reports false.
func (h *heldShards) TryLock(_ context.Context, keys []string) (bool, error) {
	var taken []int
	for _, shard := range shardsFor(keys) {
		if _, ok := h.held[shard]; ok {
			continue
		}
		if !h.tx.shards[shard].TryLock() {
			for _, s := range taken {
				h.tx.shards[s].Unlock()
			}
			return false, nil
		}
		taken = append(taken, shard)
	}
	for _, shard := range taken {
		h.add(shard)
	}
	return true, nil
}

func (h *heldShards) unlockAll() {
	for i := len(h.order) - 1; i >= 0; i-- {
		h.tx.shards[h.order[i]].Unlock()
	}
}

// shardsFor maps keys to their distinct shards in ascending order.
func shardsFor(keys []string) []int {
	seen := make(map[int]struct{}, len(keys))
	shards := make([]int, 0, len(keys))
	for _, k := range keys {
		s := int(hashKey(k) % numContactShards)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		shards = append(shards, s)
	}
	sort.Ints(shards)
	return shards
}

// hashKey is FNV-1a.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
