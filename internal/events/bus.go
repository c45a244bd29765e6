// Package events carries the in-process event bus and the websocket stream
// that fans bus traffic out to connected clients. Delivery is best-effort;
// this is plumbing for the notification layer, not a guarantee surface.
package events

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/metrics"
)

// Type names a bus topic.
type Type string

const (
	TypeAgentRegistered Type = "agent.registered"
	TypeAgentAttested   Type = "agent.attested"
	TypePostCreated     Type = "post.created"
	TypePostDeleted     Type = "post.deleted"
	TypePostQuarantined Type = "post.quarantined"
	TypeVoteCast        Type = "vote.cast"
	TypeReportConfirmed Type = "report.confirmed"
)

// Event is the envelope published on the bus and written to the stream.
type Event struct {
	Type Type                   `json:"type"`
	At   int64                  `json:"at"`
	Data map[string]interface{} `json:"data"`
}

const subscriberBuffer = 100

// Bus is an in-process pub/sub fan-out. Publish never blocks: a subscriber
// that cannot keep up loses events.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int

	metrics *metrics.Metrics
	log     *logrus.Entry
	now     func() time.Time
}

// NewBus builds an empty bus.
func NewBus(m *metrics.Metrics, log *logrus.Entry) *Bus {
	return &Bus{
		subs:    make(map[int]chan Event),
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Subscribe registers a consumer. The returned cancel func must be called
// exactly once; it closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish fans an event out to every subscriber, dropping on full buffers.
func (b *Bus) Publish(t Type, data map[string]interface{}) {
	e := Event{Type: t, At: b.now().UnixMilli(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is behind; drop.
		}
	}
	b.metrics.RecordEventPublished(string(t))
}

// SubscriberCount reports live subscriptions. Used by tests and the health
// surface.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
