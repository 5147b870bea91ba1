package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statePending = "pending"
	stateDone    = "done"
)

// Store tracks which messages a consumer has handled. A key is first claimed
// with a short lease and then either completed, which keeps it for the full
// ttl, or released so a redelivery is handled again.
type Store struct {
	rdb      redis.Cmdable
	prefix   string
	ttl      time.Duration
	claimTTL time.Duration
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, prefix: "idem:", ttl: ttl, claimTTL: time.Minute}
}

// Claim reports whether the caller now owns key. A claim left behind by a
// consumer that died mid-message lapses after the claim lease.
func (s *Store) Claim(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, s.key(key), statePending, s.claimTTL).Result()
}

func (s *Store) Complete(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, s.key(key), stateDone, s.ttl).Err()
}

func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

func (s *Store) key(k string) string { return s.prefix + k }
