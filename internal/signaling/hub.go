package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Queue depths per connection. A peer that cannot drain its send queue gets
// frames dropped (and logged) rather than stalling the whole room.
const (
	sendQueueSize  = 32
	audioQueueSize = 8
)

// wsConn is the transport-side record of one websocket session.
type wsConn struct {
	id   ConnectionID
	sock *websocket.Conn

	// out carries marshaled frames to the write pump; done signals teardown.
	out  chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newWSConn(id ConnectionID, sock *websocket.Conn) *wsConn {
	return &wsConn{
		id:   id,
		sock: sock,
		out:  make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// shutdown signals the write pump to exit. Safe to call more than once.
func (c *wsConn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub owns the live socket map and implements the router's Sender. The
// Registry decides who is in which room; the Hub only knows how to reach a
// connection id.
type Hub struct {
	mu    sync.RWMutex
	conns map[ConnectionID]*wsConn
	log   *slog.Logger
}

// NewHub returns an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		conns: make(map[ConnectionID]*wsConn),
		log:   log,
	}
}

// Send implements Sender: marshal the envelope and queue it on the target's
// write pump. A missing target is a benign race (it just disconnected) and a
// full queue is an unreachable peer; both are logged at debug and dropped so
// the remaining peers still get their notifications.
func (h *Hub) Send(id ConnectionID, event string, payload any) {
	h.mu.RLock()
	conn, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return
	}

	frame, err := json.Marshal(Envelope{Event: event, Data: mustRaw(payload)})
	if err != nil {
		h.log.Error("marshal event failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
		return
	}

	select {
	case conn.out <- frame:
	case <-conn.done:
	default:
		h.log.Debug("send queue full, dropping frame",
			slog.String("connection_id", string(id)),
			slog.String("event", event))
	}
}

// Count returns the number of live sockets, for gauge scrapes.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) add(conn *wsConn) {
	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()
}

func (h *Hub) remove(id ConnectionID) {
	h.mu.Lock()
	conn, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if ok {
		conn.shutdown()
	}
}

func mustRaw(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		// Payloads are our own structs; failure here is a programming error.
		panic(err)
	}
	return raw
}
