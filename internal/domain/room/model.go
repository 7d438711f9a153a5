package room

import (
	"time"

	"maarga/internal/domain/geo"
)

// Status represents the lifecycle state of a room.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// MemberStatus represents the state of a single membership.
type MemberStatus string

const (
	MemberActive MemberStatus = "active"
	MemberLeft   MemberStatus = "left"
)

// Room is a named group of participants traveling together toward a shared
// destination, identified by a short human-typeable code.
type Room struct {
	Code        string    `json:"code"`
	Destination string    `json:"destination"`
	LeaderID    string    `json:"leader_id"`
	LeaderName  string    `json:"leader_name"`
	Status      Status    `json:"status"`
	MaxMembers  int       `json:"max_members"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership ties a participant to a room. JoinedAt fixes the ordering used
// when listing members.
type Membership struct {
	ParticipantID string       `json:"participant_id"`
	Name          string       `json:"name"`
	IsLeader      bool         `json:"is_leader"`
	Status        MemberStatus `json:"status"`
	JoinedAt      time.Time    `json:"joined_at"`
}

// Member is a membership together with the latest known location, as
// returned by member listings.
type Member struct {
	Membership
	LastLocation *LocationSample `json:"last_location,omitempty"`
}

// LocationSample is one position report from a participant. Only the latest
// sample per (participant, room) is authoritative for live computation;
// history belongs to the storage mirror.
type LocationSample struct {
	ParticipantID string         `json:"participant_id"`
	Name          string         `json:"name,omitempty"`
	RoomCode      string         `json:"room_code"`
	Coordinate    geo.Coordinate `json:"coordinate"`
	Speed         *float64       `json:"speed,omitempty"`
	Heading       *float64       `json:"heading,omitempty"`
	Accuracy      *float64       `json:"accuracy,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}
