package noncecache

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	seen map[string]struct{}
	err  error
	ttls map[string]time.Duration
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.seen[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.seen[key] = struct{}{}
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{seen: make(map[string]struct{}), ttls: make(map[string]time.Duration)}
}

func TestRedisRegister(t *testing.T) {
	fake := newFakeRedis()
	c := &Redis{client: fake, ttl: 5 * time.Minute}

	ok, err := c.Register(context.Background(), testDID, "nonce-0123456789abcdef")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Register(context.Background(), testDID, "nonce-0123456789abcdef")
	require.NoError(t, err)
	assert.False(t, ok)

	key := redisKeyPrefix + testDID + ":nonce-0123456789abcdef"
	assert.Equal(t, 5*time.Minute, fake.ttls[key], "TTL must equal the timestamp window")
}

func TestRedisErrorSurfaces(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	c := &Redis{client: fake, ttl: time.Minute}

	_, err := c.Register(context.Background(), testDID, "nonce-0123456789abcdef")
	assert.Error(t, err)
}
