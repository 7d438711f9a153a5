package stats

import (
	"sync"
	"time"

	"maarga/internal/domain/geo"
	"maarga/internal/domain/room"
)

// Trip accumulates per (room, participant) ride statistics while the
// membership is active. Distances are meters, speeds meters per second.
type Trip struct {
	RoomCode      string    `json:"room_code"`
	ParticipantID string    `json:"participant_id"`
	TotalDistance float64   `json:"total_distance"`
	MaxSpeed      float64   `json:"max_speed"`
	AvgSpeed      float64   `json:"avg_speed"`
	Violations    int       `json:"violations"`
	Samples       int       `json:"samples"`
	StartedAt     time.Time `json:"started_at"`
	LastSampleAt  time.Time `json:"last_sample_at"`
}

type key struct {
	roomCode      string
	participantID string
}

type accumulator struct {
	trip       Trip
	speedSum   float64
	speedCount int
}

// Tracker maintains trip statistics for every active membership. It is fed
// by the engine on each accepted sample and violation, and drained when a
// member leaves so the final numbers can be mirrored to storage.
type Tracker struct {
	mu    sync.Mutex
	trips map[key]*accumulator
}

// NewTracker creates a trip statistics tracker.
func NewTracker() *Tracker {
	return &Tracker{trips: make(map[key]*accumulator)}
}

// RecordSample folds an accepted location sample into the member's trip.
// prev is the sample it replaced, used for the traveled-distance increment.
func (t *Tracker) RecordSample(prev *room.LocationSample, cur room.LocationSample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{roomCode: cur.RoomCode, participantID: cur.ParticipantID}
	acc, ok := t.trips[k]
	if !ok {
		acc = &accumulator{trip: Trip{
			RoomCode:      cur.RoomCode,
			ParticipantID: cur.ParticipantID,
			StartedAt:     cur.Timestamp,
		}}
		t.trips[k] = acc
	}

	if prev != nil {
		acc.trip.TotalDistance += geo.Distance(prev.Coordinate, cur.Coordinate)
	}
	if cur.Speed != nil && geo.PlausibleSpeed(*cur.Speed) {
		if *cur.Speed > acc.trip.MaxSpeed {
			acc.trip.MaxSpeed = *cur.Speed
		}
		acc.speedSum += *cur.Speed
		acc.speedCount++
		acc.trip.AvgSpeed = acc.speedSum / float64(acc.speedCount)
	}
	acc.trip.Samples++
	acc.trip.LastSampleAt = cur.Timestamp
}

// RecordViolation counts a raised geofence violation against the trip.
func (t *Tracker) RecordViolation(roomCode, participantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{roomCode: roomCode, participantID: participantID}
	if acc, ok := t.trips[k]; ok {
		acc.trip.Violations++
	}
}

// Snapshot returns a copy of the member's current trip, if one exists.
func (t *Tracker) Snapshot(roomCode, participantID string) (Trip, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if acc, ok := t.trips[key{roomCode: roomCode, participantID: participantID}]; ok {
		return acc.trip, true
	}
	return Trip{}, false
}

// Finish removes and returns the member's trip for mirroring to storage.
func (t *Tracker) Finish(roomCode, participantID string) (Trip, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{roomCode: roomCode, participantID: participantID}
	acc, ok := t.trips[k]
	if !ok {
		return Trip{}, false
	}
	delete(t.trips, k)
	return acc.trip, true
}

// ForgetRoom discards all trips for a reclaimed room.
func (t *Tracker) ForgetRoom(roomCode string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k := range t.trips {
		if k.roomCode == roomCode {
			delete(t.trips, k)
		}
	}
}
