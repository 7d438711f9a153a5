package registry

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"maarga/internal/domain/room"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Config contains configuration for the room registry.
type Config struct {
	// DefaultMaxMembers caps rooms created without an explicit limit.
	DefaultMaxMembers int

	// CodeLength is the length of generated room codes.
	CodeLength int
}

// Registry is the authoritative in-memory map of active rooms and their
// memberships. The outer map is guarded by mu; each room carries its own
// lock so different rooms proceed in parallel while all mutations to one
// room are serialized.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
	cfg   Config
	now   func() time.Time
}

type roomState struct {
	mu      sync.Mutex
	room    room.Room
	members []room.Membership
	samples map[string]room.LocationSample
}

// New creates a room registry.
func New(cfg Config) *Registry {
	if cfg.DefaultMaxMembers <= 0 {
		cfg.DefaultMaxMembers = 10
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	return &Registry{
		rooms: make(map[string]*roomState),
		cfg:   cfg,
		now:   time.Now,
	}
}

// SetClock overrides the registry's time source. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// NormalizeCode maps a user-typed room code onto its canonical form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom registers a new active room with the creator as leader. When
// code is empty a fresh collision-checked code is generated. Fails with
// ErrDuplicateRoomCode if the code already denotes an active room.
func (r *Registry) CreateRoom(code, destination, leaderID, leaderName string, maxMembers int) (room.Room, error) {
	if maxMembers <= 0 {
		maxMembers = r.cfg.DefaultMaxMembers
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code = NormalizeCode(code)
	if code == "" {
		generated, err := r.generateCodeLocked()
		if err != nil {
			return room.Room{}, err
		}
		code = generated
	} else if _, exists := r.rooms[code]; exists {
		return room.Room{}, fmt.Errorf("room %s: %w", code, room.ErrDuplicateRoomCode)
	}

	now := r.now()
	st := &roomState{
		room: room.Room{
			Code:        code,
			Destination: destination,
			LeaderID:    leaderID,
			LeaderName:  leaderName,
			Status:      room.StatusActive,
			MaxMembers:  maxMembers,
			MemberCount: 1,
			CreatedAt:   now,
		},
		members: []room.Membership{{
			ParticipantID: leaderID,
			Name:          leaderName,
			IsLeader:      true,
			Status:        room.MemberActive,
			JoinedAt:      now,
		}},
		samples: make(map[string]room.LocationSample),
	}
	r.rooms[code] = st

	return st.room, nil
}

// JoinRoom adds a participant to an active room. Rejoining an already
// active member is idempotent and returns the current state; the returned
// bool reports whether the membership is new, so callers only announce
// genuine joins.
func (r *Registry) JoinRoom(code, participantID, name string) (room.Room, room.Membership, bool, error) {
	st, err := r.lookup(code)
	if err != nil {
		return room.Room{}, room.Membership{}, false, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.room.Status != room.StatusActive {
		return room.Room{}, room.Membership{}, false, fmt.Errorf("room %s: %w", code, room.ErrRoomNotFound)
	}

	for i := range st.members {
		m := &st.members[i]
		if m.ParticipantID != participantID {
			continue
		}
		if m.Status == room.MemberActive {
			return st.room, *m, false, nil
		}
		if st.activeCountLocked() >= st.room.MaxMembers {
			return room.Room{}, room.Membership{}, false, fmt.Errorf("room %s: %w", code, room.ErrRoomFull)
		}
		// Returning member: reactivate the existing slot.
		m.Status = room.MemberActive
		m.Name = name
		m.JoinedAt = r.now()
		st.room.MemberCount = st.activeCountLocked()
		return st.room, *m, true, nil
	}

	if st.activeCountLocked() >= st.room.MaxMembers {
		return room.Room{}, room.Membership{}, false, fmt.Errorf("room %s: %w", code, room.ErrRoomFull)
	}

	member := room.Membership{
		ParticipantID: participantID,
		Name:          name,
		Status:        room.MemberActive,
		JoinedAt:      r.now(),
	}
	st.members = append(st.members, member)
	st.room.MemberCount = st.activeCountLocked()

	return st.room, member, true, nil
}

// LeaveRoom marks the membership as left. Leadership is not transferred
// when the leader leaves. When the last active member leaves, the room is
// reclaimed and its code becomes reusable. The returned bool reports
// whether the room was reclaimed.
func (r *Registry) LeaveRoom(code, participantID string) (room.Membership, bool, error) {
	st, err := r.lookup(code)
	if err != nil {
		return room.Membership{}, false, err
	}

	st.mu.Lock()
	var left room.Membership
	found := false
	for i := range st.members {
		m := &st.members[i]
		if m.ParticipantID == participantID && m.Status == room.MemberActive {
			m.Status = room.MemberLeft
			left = *m
			found = true
			break
		}
	}
	if !found {
		st.mu.Unlock()
		return room.Membership{}, false, fmt.Errorf("room %s: %w", code, room.ErrNotAMember)
	}

	delete(st.samples, participantID)
	remaining := st.activeCountLocked()
	st.room.MemberCount = remaining
	reclaim := remaining == 0
	if reclaim {
		st.room.Status = room.StatusCompleted
	}
	st.mu.Unlock()

	if reclaim {
		r.mu.Lock()
		if cur, ok := r.rooms[NormalizeCode(code)]; ok && cur == st {
			delete(r.rooms, NormalizeCode(code))
		}
		r.mu.Unlock()
	}

	return left, reclaim, nil
}

// Get returns the room denoted by code.
func (r *Registry) Get(code string) (room.Room, error) {
	st, err := r.lookup(code)
	if err != nil {
		return room.Room{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.room, nil
}

// Members returns the active members of a room, leader first, then by join
// order, each with the latest known location.
func (r *Registry) Members(code string) ([]room.Member, error) {
	st, err := r.lookup(code)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]room.Member, 0, len(st.members))
	appendMember := func(m room.Membership) {
		member := room.Member{Membership: m}
		if s, ok := st.samples[m.ParticipantID]; ok {
			sample := s
			member.LastLocation = &sample
		}
		out = append(out, member)
	}

	for _, m := range st.members {
		if m.Status == room.MemberActive && m.IsLeader {
			appendMember(m)
		}
	}
	for _, m := range st.members {
		if m.Status == room.MemberActive && !m.IsLeader {
			appendMember(m)
		}
	}
	return out, nil
}

// RecordSample stores the latest location sample for a member and returns
// the sample it replaced, if any.
func (r *Registry) RecordSample(sample room.LocationSample) (*room.LocationSample, error) {
	st, err := r.lookup(sample.RoomCode)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.isActiveMemberLocked(sample.ParticipantID) {
		return nil, fmt.Errorf("room %s: %w", sample.RoomCode, room.ErrNotAMember)
	}

	var prev *room.LocationSample
	if old, ok := st.samples[sample.ParticipantID]; ok {
		o := old
		prev = &o
	}
	st.samples[sample.ParticipantID] = sample
	return prev, nil
}

// LeaderPosition returns the leader's latest sample, or nil when the leader
// has not reported a position or has left the room.
func (r *Registry) LeaderPosition(code string) (*room.LocationSample, error) {
	st, err := r.lookup(code)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.isActiveMemberLocked(st.room.LeaderID) {
		return nil, nil
	}
	if s, ok := st.samples[st.room.LeaderID]; ok {
		sample := s
		return &sample, nil
	}
	return nil, nil
}

// IsMember reports whether the participant is an active member of the room.
func (r *Registry) IsMember(code, participantID string) (bool, error) {
	st, err := r.lookup(code)
	if err != nil {
		return false, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.isActiveMemberLocked(participantID), nil
}

func (r *Registry) lookup(code string) (*roomState, error) {
	r.mu.RLock()
	st, ok := r.rooms[NormalizeCode(code)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("room %s: %w", NormalizeCode(code), room.ErrRoomNotFound)
	}
	return st, nil
}

func (r *Registry) generateCodeLocked() (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		b := make([]byte, r.cfg.CodeLength)
		for i := range b {
			b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
		code := string(b)
		if _, exists := r.rooms[code]; !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique room code")
}

func (st *roomState) activeCountLocked() int {
	n := 0
	for _, m := range st.members {
		if m.Status == room.MemberActive {
			n++
		}
	}
	return n
}

func (st *roomState) isActiveMemberLocked(participantID string) bool {
	for _, m := range st.members {
		if m.ParticipantID == participantID && m.Status == room.MemberActive {
			return true
		}
	}
	return false
}
