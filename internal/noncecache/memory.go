package noncecache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// Memory is the single-process backend: a bounded LRU whose entries expire
// after the timestamp window. Eviction under sustained load is a known
// constraint; deployments that need stronger guarantees use the Redis
// backend.
type Memory struct {
	mu  sync.Mutex
	lru *lru.Cache[string, time.Time]
	ttl time.Duration
	now func() time.Time
}

// NewMemory builds a Memory cache holding at most size entries.
func NewMemory(size int, ttl time.Duration) (*Memory, error) {
	c, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, errors.Wrap(err, "new nonce lru")
	}
	return &Memory{lru: c, ttl: ttl, now: time.Now}, nil
}

// Register implements Cache. The lock spans the probe and the insert so the
// operation is a true test-and-set.
func (m *Memory) Register(_ context.Context, did, nonce string) (bool, error) {
	key := cacheKey(did, nonce)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiry, ok := m.lru.Get(key); ok && now.Before(expiry) {
		nonceReplays.Inc()
		return false, nil
	}
	m.lru.Add(key, now.Add(m.ttl))
	nonceRegistrations.Inc()
	return true, nil
}

// Len reports the number of live entries, expired or not. Used by tests.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}
