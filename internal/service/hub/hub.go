package hub

import (
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"

	"maarga/internal/domain/event"
)

// Conn is a live subscriber connection. Send must not block indefinitely;
// a failed send marks the connection dead and it is dropped from every
// room it subscribes to.
type Conn interface {
	ID() string
	Send(data []byte) error
}

// Hub maintains the mapping from room code to the set of live connections
// subscribed to it and fans events out to them. Delivery is best-effort per
// connection: one subscriber failing never prevents delivery to the rest
// and never surfaces to the publisher.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn
	nc    *nats.Conn

	// subjectPrefix prefixes the NATS subject events are mirrored to.
	subjectPrefix string
}

// New creates a broadcast hub. nc may be nil; the NATS mirror is then
// disabled.
func New(nc *nats.Conn) *Hub {
	return &Hub{
		rooms:         make(map[string]map[string]Conn),
		nc:            nc,
		subjectPrefix: "room",
	}
}

// Subscribe attaches a connection to a room's fan-out set. Subscribing is a
// transport-layer concern and does not imply room membership.
func (h *Hub) Subscribe(roomCode string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomCode]
	if !ok {
		subs = make(map[string]Conn)
		h.rooms[roomCode] = subs
	}
	subs[c.ID()] = c
}

// Unsubscribe detaches a connection from a room. Unknown rooms and unknown
// connections are silently a no-op.
func (h *Hub) Unsubscribe(roomCode string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.rooms[roomCode]; ok {
		delete(subs, c.ID())
		if len(subs) == 0 {
			delete(h.rooms, roomCode)
		}
	}
}

// SubscriberCount returns the number of connections subscribed to a room.
func (h *Hub) SubscriberCount(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}

// Publish delivers the event to every subscriber of the room except the
// optional excluded connection, then mirrors it to NATS. Deliveries happen
// synchronously, so two publishes from the same caller reach each shared
// subscriber in publish order.
func (h *Hub) Publish(roomCode string, ev event.Event, exclude Conn) {
	data, err := ev.Encode()
	if err != nil {
		log.Printf("hub: encoding %s event for room %s: %v", ev.Type, roomCode, err)
		return
	}

	h.mu.RLock()
	targets := make([]Conn, 0, len(h.rooms[roomCode]))
	for _, c := range h.rooms[roomCode] {
		if exclude != nil && c.ID() == exclude.ID() {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var failed []Conn
	for _, c := range targets {
		if err := c.Send(data); err != nil {
			log.Printf("hub: delivery to %s in room %s failed: %v", c.ID(), roomCode, err)
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		h.Unsubscribe(roomCode, c)
	}

	h.mirror(roomCode, ev.Type, data)
}

// mirror publishes the event to NATS for external consumers. Best-effort:
// a missing or failed connection is logged and ignored.
func (h *Hub) mirror(roomCode string, t event.Type, data []byte) {
	if h.nc == nil {
		return
	}
	subject := fmt.Sprintf("%s.%s.events", h.subjectPrefix, roomCode)
	if err := h.nc.Publish(subject, data); err != nil {
		log.Printf("hub: publishing %s to %s: %v", t, subject, err)
	}
}
