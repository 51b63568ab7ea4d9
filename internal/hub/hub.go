// Package hub tracks live subscriber connections per ticket and fans
// ticket events out to them. State is in-memory only; reconnecting clients
// fetch a fresh snapshot from the ticket store.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

const defaultSendTimeout = 5 * time.Second

// Conn is one live subscriber. Implementations must tolerate concurrent
// Send calls for different broadcasts.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[Conn]struct{}
	sendTimeout time.Duration
}

func New() *Hub {
	return &Hub{
		subscribers: make(map[string]map[Conn]struct{}),
		sendTimeout: defaultSendTimeout,
	}
}

// Connect registers conn under ticketID. Registering the same connection
// twice is a no-op.
func (h *Hub) Connect(conn Conn, ticketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subscribers[ticketID]
	if !ok {
		set = make(map[Conn]struct{})
		h.subscribers[ticketID] = set
	}
	set[conn] = struct{}{}
}

// Disconnect removes conn from ticketID, dropping the ticket entry when
// its subscriber set becomes empty.
func (h *Hub) Disconnect(conn Conn, ticketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(conn, ticketID)
}

func (h *Hub) removeLocked(conn Conn, ticketID string) {
	set, ok := h.subscribers[ticketID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.subscribers, ticketID)
	}
}

// Broadcast delivers event to every current subscriber of ticketID. A
// ticket with no subscribers is a no-op. Connections that fail delivery
// are evicted; a slow subscriber times out without blocking the others'
// eviction handling beyond its own send window.
func (h *Hub) Broadcast(ctx context.Context, ticketID string, event Event) {
	h.mu.Lock()
	set, ok := h.subscribers[ticketID]
	if !ok {
		h.mu.Unlock()
		return
	}
	conns := make([]Conn, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("broadcast marshal failed ticket=%s type=%s err=%v", ticketID, event.Type, err)
		return
	}

	var dead []Conn
	for _, conn := range conns {
		sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
		err := conn.Send(sendCtx, payload)
		cancel()
		if err != nil {
			log.Printf("broadcast delivery failed ticket=%s err=%v", ticketID, err)
			dead = append(dead, conn)
		}
	}

	if len(dead) == 0 {
		return
	}

	h.mu.Lock()
	for _, conn := range dead {
		h.removeLocked(conn, ticketID)
	}
	h.mu.Unlock()

	for _, conn := range dead {
		_ = conn.Close()
	}
}

// SubscriberCount reports the number of live subscribers for a ticket.
func (h *Hub) SubscriberCount(ticketID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[ticketID])
}
