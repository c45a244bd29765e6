// Package noncecache provides the replay-protection cache consulted by the
// auth middleware. Registration is an atomic test-and-set: of two identical
// envelopes racing, exactly one wins.
package noncecache

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache records (DID, nonce) pairs for the lifetime of the timestamp window.
type Cache interface {
	// Register returns true when the pair was unseen and is now recorded,
	// false when the pair was already present (a replay).
	Register(ctx context.Context, did, nonce string) (bool, error)
}

var (
	nonceRegistrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lattice_nonce_registrations_total",
		Help: "Nonces accepted into the replay cache",
	})
	nonceReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lattice_nonce_replays_total",
		Help: "Envelope replays rejected by the nonce cache",
	})
)

func cacheKey(did, nonce string) string {
	return did + ":" + nonce
}
