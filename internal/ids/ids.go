// Package ids mints the ULIDs used as primary keys and cursors. Feed
// pagination compares IDs lexicographically, so generation must be monotonic
// within the process.
package ids

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator is the single "next ID" capability handed to services. Tests
// substitute a deterministic implementation.
type Generator interface {
	NewID() string
}

// ULIDGenerator produces monotonic ULIDs. Two IDs minted in the same
// millisecond still sort in mint order.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewULIDGenerator returns a generator backed by crypto/rand entropy.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// NewID returns a fresh 26-character Crockford base32 ULID.
func (g *ULIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// Valid reports whether s parses as a canonical 26-character ULID.
func Valid(s string) bool {
	if len(s) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Millis extracts the embedded millisecond timestamp, or 0 when s is not a
// ULID.
func Millis(s string) int64 {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return 0
	}
	return int64(id.Time())
}

// Sequence is a deterministic Generator for tests: ids sort in mint order
// and embed the configured timestamp.
type Sequence struct {
	mu sync.Mutex
	ms uint64
	n  uint16
}

// NewSequence returns a Sequence whose IDs embed the given wall time.
func NewSequence(at time.Time) *Sequence {
	return &Sequence{ms: ulid.Timestamp(at)}
}

func (s *Sequence) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id ulid.ULID
	if err := id.SetTime(s.ms); err != nil {
		panic(fmt.Sprintf("ids: set time: %v", err))
	}
	var entropy [10]byte
	entropy[8] = byte(s.n >> 8)
	entropy[9] = byte(s.n)
	s.n++
	if err := id.SetEntropy(entropy[:]); err != nil {
		panic(fmt.Sprintf("ids: set entropy: %v", err))
	}
	return id.String()
}
