package event

import (
	"encoding/json"
	"time"

	"maarga/internal/domain/room"
)

// Type identifies an event fanned out to room subscribers.
type Type string

const (
	TypeMemberJoined      Type = "member_joined"
	TypeMemberLeft        Type = "member_left"
	TypeLocationUpdate    Type = "location_update"
	TypeViolationRaised   Type = "violation_raised"
	TypeViolationCleared  Type = "violation_cleared"
	TypeEmergencyRaised   Type = "emergency_raised"
	TypeEmergencyResolved Type = "emergency_resolved"
	TypeNotification      Type = "notification"
	TypeRoomState         Type = "room_state"
)

// Event is the envelope delivered to every subscriber of a room.
type Event struct {
	Type      Type        `json:"type"`
	RoomCode  string      `json:"room_code"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Encode serializes the event for transport.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// New builds an event stamped with the current time.
func New(t Type, roomCode string, payload interface{}) Event {
	return Event{
		Type:      t,
		RoomCode:  roomCode,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// MemberPayload announces a membership change.
type MemberPayload struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	IsLeader      bool   `json:"is_leader,omitempty"`
}

// ViolationClearedPayload announces a member returning into range.
type ViolationClearedPayload struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
}

// EmergencyResolvedPayload announces an alert resolution.
type EmergencyResolvedPayload struct {
	AlertID    string `json:"alert_id"`
	ResolvedBy string `json:"resolved_by"`
}

// NotificationPayload carries a free-form room message.
type NotificationPayload struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// RoomStatePayload is the snapshot sent to a subscriber when it attaches to
// a room.
type RoomStatePayload struct {
	Room    room.Room     `json:"room"`
	Members []room.Member `json:"members"`
}
