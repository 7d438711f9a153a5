package violation

import (
	"sync"
	"time"

	"maarga/internal/domain/alert"
	"maarga/internal/domain/geo"
	"maarga/internal/domain/room"
)

// Config contains configuration for the violation detector.
type Config struct {
	// RadiusMeters is the geofence radius around the leader.
	RadiusMeters float64

	// Threshold is the minimum continuous out-of-range duration before a
	// violation is raised. Debounces transient GPS jitter.
	Threshold time.Duration
}

// Transition is the edge produced by evaluating one sample. Only state
// changes are reported; samples that leave the state unchanged produce
// TransitionNone.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionRaised
	TransitionCleared
)

// Result carries the outcome of evaluating a sample against the leader
// position.
type Result struct {
	Transition Transition
	Distance   float64
	Violation  *alert.Violation
}

type stateKey struct {
	roomCode      string
	participantID string
}

// Detector runs the per (room, member) geofence state machine:
// clear -> pending -> active -> clear. Raising is debounced by the
// configured threshold; both raise and clear are edge-triggered.
type Detector struct {
	mu     sync.Mutex
	states map[stateKey]*alert.ViolationState
	cfg    Config
	now    func() time.Time
}

// New creates a violation detector.
func New(cfg Config) *Detector {
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = 500
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 30 * time.Second
	}
	return &Detector{
		states: make(map[stateKey]*alert.ViolationState),
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetClock overrides the detector's time source. Intended for tests.
func (d *Detector) SetClock(now func() time.Time) {
	d.now = now
}

// Evaluate updates the member's state machine with a new sample. The leader
// is exempt: when the sample belongs to the leader, or the leader position
// is unknown, the call only records distance bookkeeping and never raises.
func (d *Detector) Evaluate(sample room.LocationSample, leader *room.LocationSample, leaderID string) Result {
	if leader == nil || sample.ParticipantID == leaderID {
		return Result{}
	}

	distance := geo.Distance(sample.Coordinate, leader.Coordinate)

	d.mu.Lock()
	defer d.mu.Unlock()

	key := stateKey{roomCode: sample.RoomCode, participantID: sample.ParticipantID}
	st, ok := d.states[key]
	if !ok {
		st = &alert.ViolationState{Status: alert.ViolationClear}
		d.states[key] = st
	}
	st.LastDistance = distance

	now := d.now()

	if distance <= d.cfg.RadiusMeters {
		cleared := st.Status == alert.ViolationPending || st.Status == alert.ViolationActive
		st.Status = alert.ViolationClear
		st.PendingSince = time.Time{}
		if cleared {
			return Result{Transition: TransitionCleared, Distance: distance}
		}
		return Result{Distance: distance}
	}

	switch st.Status {
	case alert.ViolationClear:
		st.Status = alert.ViolationPending
		st.PendingSince = now
	case alert.ViolationPending:
		if now.Sub(st.PendingSince) >= d.cfg.Threshold {
			st.Status = alert.ViolationActive
			v := &alert.Violation{
				RoomCode:       sample.RoomCode,
				ParticipantID:  sample.ParticipantID,
				Name:           sample.Name,
				Distance:       distance,
				LeaderLocation: leader.Coordinate,
				Location:       sample.Coordinate,
				RaisedAt:       now,
			}
			return Result{Transition: TransitionRaised, Distance: distance, Violation: v}
		}
	case alert.ViolationActive:
		// Already reported; stay quiet until the member comes back in range.
	}

	return Result{Distance: distance}
}

// State returns a copy of the member's current violation state, if any.
func (d *Detector) State(roomCode, participantID string) (alert.ViolationState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[stateKey{roomCode: roomCode, participantID: participantID}]
	if !ok {
		return alert.ViolationState{}, false
	}
	return *st, true
}

// Forget discards the state for a membership that became inactive.
func (d *Detector) Forget(roomCode, participantID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.states, stateKey{roomCode: roomCode, participantID: participantID})
}

// ForgetRoom discards all state for a reclaimed room.
func (d *Detector) ForgetRoom(roomCode string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.states {
		if key.roomCode == roomCode {
			delete(d.states, key)
		}
	}
}
