package alert

import (
	"errors"
	"time"

	"maarga/internal/domain/geo"
)

// Kind identifies what a participant is signalling.
type Kind string

const (
	KindEmergency Kind = "emergency"
	KindHelp      Kind = "help"
	KindAccident  Kind = "accident"
	KindBreakdown Kind = "breakdown"
)

// Status represents the resolution state of an alert.
type Status string

const (
	StatusActive     Status = "active"
	StatusResolved   Status = "resolved"
	StatusFalseAlarm Status = "false_alarm"
)

var (
	ErrAlertNotFound   = errors.New("alert not found")
	ErrAlreadyResolved = errors.New("alert already resolved")
	ErrInvalidKind     = errors.New("unknown alert kind")
)

// Emergency is an alert raised by a participant in a room.
type Emergency struct {
	ID            string         `json:"id"`
	RoomCode      string         `json:"room_code"`
	ParticipantID string         `json:"participant_id"`
	Name          string         `json:"name"`
	Kind          Kind           `json:"kind"`
	Location      geo.Coordinate `json:"location"`
	Description   string         `json:"description,omitempty"`
	Status        Status         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy    string         `json:"resolved_by,omitempty"`
}

// ValidKind reports whether k is one of the recognized alert kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindEmergency, KindHelp, KindAccident, KindBreakdown:
		return true
	}
	return false
}

// ViolationStatus is the state of the per-member geofence state machine.
type ViolationStatus string

const (
	ViolationClear   ViolationStatus = "clear"
	ViolationPending ViolationStatus = "pending"
	ViolationActive  ViolationStatus = "active"
)

// ViolationState is the debounce state tracked per (room, participant). It is
// mutated only by the violation detector and discarded when the membership
// becomes inactive.
type ViolationState struct {
	Status       ViolationStatus
	PendingSince time.Time
	LastDistance float64
}

// Violation is the record of a raised geofence violation, as broadcast and
// mirrored to storage.
type Violation struct {
	RoomCode       string         `json:"room_code"`
	ParticipantID  string         `json:"participant_id"`
	Name           string         `json:"name"`
	Distance       float64        `json:"distance"`
	LeaderLocation geo.Coordinate `json:"leader_location"`
	Location       geo.Coordinate `json:"location"`
	RaisedAt       time.Time      `json:"raised_at"`
}
