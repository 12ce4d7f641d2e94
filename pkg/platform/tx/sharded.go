package tx

import (
	"context"
	"slices"
	"sync"
	"time"

	dErrors "circulation/pkg/domain-errors"
)

// numShards bounds lock memory while keeping collisions between unrelated
// books rare.
const numShards = 128

// defaultTxTimeout is the maximum duration for a transaction.
const defaultTxTimeout = 5 * time.Second

// Sharded is the in-memory Runner. Each key hashes onto one of numShards
// mutexes; a call locks the distinct shards for its keys in ascending order, so
// two calls sharing a shard never deadlock. Calls nested inside fn reuse the
// locks already held by the outer call.
type Sharded struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

// Option configures a Sharded runner.
type Option func(*Sharded)

// WithTimeout overrides the default transaction timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Sharded) {
		s.timeout = d
	}
}

func NewSharded(opts ...Option) *Sharded {
	s := &Sharded{timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type heldKey struct{}

// RunInTx runs fn holding the shards for keys. A nested call joins the outer
// one even after ctx is cancelled: there is no rollback in memory, so the
// outer call's remaining writes must still happen.
func (s *Sharded) RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if held, ok := ctx.Value(heldKey{}).(*Sharded); ok && held == s {
		return fn(ctx)
	}

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	shards := s.selectShards(keys)
	for _, idx := range shards {
		s.shards[idx].Lock()
	}
	defer func() {
		for i := len(shards) - 1; i >= 0; i-- {
			s.shards[shards[i]].Unlock()
		}
	}()

	// Check again after acquiring locks
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(context.WithValue(ctx, heldKey{}, s))
}

// selectShards returns the sorted, de-duplicated shard indices for keys.
// Without keys the call serializes on shard 0.
func (s *Sharded) selectShards(keys []string) []int {
	if len(keys) == 0 {
		return []int{0}
	}
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, int(hashString(k)%numShards))
	}
	slices.Sort(idx)
	return slices.Compact(idx)
}

// hashString is FNV-1a.
func hashString(s string) uint32 {
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
