package events

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/metrics"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a client may go silent before the read side
	// gives up; pings go out at a fraction of it.
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	// Clients only consume; inbound frames beyond control traffic are noise.
	maxInboundSize = 512
)

// Stream upgrades HTTP connections and relays bus events to them. Each
// connection runs a read pump and a write pump; the write pump is the only
// goroutine that touches the connection's write side.
type Stream struct {
	bus      *Bus
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

// NewStream builds the websocket relay. originAllowed gates the Origin
// header on upgrade.
func NewStream(bus *Bus, originAllowed func(string) bool, m *metrics.Metrics, log *logrus.Entry) *Stream {
	return &Stream{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return originAllowed(origin)
			},
		},
		metrics: m,
		log:     log,
	}
}

// ServeHTTP implements the /ws/events endpoint.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	sub, cancel := s.bus.Subscribe()
	s.metrics.WSClients.Inc()

	done := make(chan struct{})
	go s.readPump(conn, done)
	go s.writePump(conn, sub, cancel, done)
}

// readPump drains inbound frames so pongs are processed, and signals the
// write pump when the peer goes away.
func (s *Stream) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Debug("websocket read closed")
			}
			return
		}
	}
}

// writePump owns all writes: events, pings and the close frame.
func (s *Stream) writePump(conn *websocket.Conn, sub <-chan Event, cancel func(), done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		_ = conn.Close()
		s.metrics.WSClients.Dec()
	}()

	for {
		select {
		case e, ok := <-sub:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(e)
			if err != nil {
				s.log.WithError(err).Warn("marshal event")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
