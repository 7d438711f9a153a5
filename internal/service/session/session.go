package session

import (
	"log"
	"sync"

	"maarga/internal/domain/event"
	"maarga/internal/service/hub"
)

// Session ties a live connection to the room and participant it represents.
type Session struct {
	RoomCode      string
	ParticipantID string
	Name          string
}

// Manager maps each connection to at most one (room, participant) pair and
// performs transport-level cleanup when the connection goes away.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]Session
	hub      *hub.Hub
}

// NewManager creates a session manager backed by the given hub.
func NewManager(h *hub.Hub) *Manager {
	return &Manager{
		sessions: make(map[string]Session),
		hub:      h,
	}
}

// Bind subscribes the connection to the room and records the session.
// A connection already bound elsewhere is rebound: the previous
// subscription is dropped first.
func (m *Manager) Bind(c hub.Conn, roomCode, participantID, name string) {
	m.mu.Lock()
	prev, had := m.sessions[c.ID()]
	m.sessions[c.ID()] = Session{RoomCode: roomCode, ParticipantID: participantID, Name: name}
	m.mu.Unlock()

	if had && prev.RoomCode != roomCode {
		m.hub.Unsubscribe(prev.RoomCode, c)
	}
	m.hub.Subscribe(roomCode, c)
}

// Lookup returns the session for a connection, if one exists.
func (m *Manager) Lookup(c hub.Conn) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[c.ID()]
	return s, ok
}

// Release drops the session and the hub subscription without announcing
// anything. Used for explicit unsubscribes.
func (m *Manager) Release(c hub.Conn) (Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[c.ID()]
	delete(m.sessions, c.ID())
	m.mu.Unlock()

	if ok {
		m.hub.Unsubscribe(s.RoomCode, c)
	}
	return s, ok
}

// Disconnect handles a connection loss: the connection is unsubscribed and
// the room is told the member is gone. Room membership is deliberately left
// untouched: a transport drop is not an explicit leave, and the participant
// may reconnect and resume.
func (m *Manager) Disconnect(c hub.Conn) {
	s, ok := m.Release(c)
	if !ok {
		return
	}

	log.Printf("session: connection %s for %s in room %s dropped", c.ID(), s.ParticipantID, s.RoomCode)
	m.hub.Publish(s.RoomCode, event.New(event.TypeMemberLeft, s.RoomCode, event.MemberPayload{
		ParticipantID: s.ParticipantID,
		Name:          s.Name,
	}), nil)
}
