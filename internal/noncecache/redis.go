package noncecache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lattice:nonce:"

// redisClient is the slice of go-redis the cache needs; tests substitute a
// fake.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Redis is the externalised backend used when the deployment scales past a
// single process. SETNX with a TTL gives the same test-and-set semantics as
// the in-memory LRU without the eviction caveat.
type Redis struct {
	client redisClient
	ttl    time.Duration
}

// NewRedis wraps an existing go-redis client.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Register implements Cache.
func (r *Redis) Register(ctx context.Context, did, nonce string) (bool, error) {
	ok, err := r.client.SetNX(ctx, redisKeyPrefix+cacheKey(did, nonce), 1, r.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "nonce setnx")
	}
	if !ok {
		nonceReplays.Inc()
		return false, nil
	}
	nonceRegistrations.Inc()
	return true, nil
}
