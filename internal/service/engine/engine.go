package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"maarga/internal/domain/alert"
	"maarga/internal/domain/event"
	"maarga/internal/domain/geo"
	"maarga/internal/domain/room"
	"maarga/internal/service/hub"
	"maarga/internal/service/registry"
	"maarga/internal/service/session"
	"maarga/internal/service/stats"
	"maarga/internal/service/violation"
)

// Store is the durable-storage collaborator. Every write is dispatched
// asynchronously and is best-effort: a failure is logged, never surfaced
// to the operation that triggered it.
type Store interface {
	AppendLocation(ctx context.Context, sample room.LocationSample) error
	AppendViolation(ctx context.Context, v alert.Violation) error
	SaveAlert(ctx context.Context, a alert.Emergency) error
	SaveTrip(ctx context.Context, t stats.Trip) error
}

// Config contains configuration for the proximity engine.
type Config struct {
	// SampleMinInterval is the minimum spacing between accepted samples
	// per participant. Samples arriving faster are acknowledged but not
	// broadcast or mirrored.
	SampleMinInterval time.Duration

	// StorageTimeout bounds each mirror write.
	StorageTimeout time.Duration

	// WriteQueueSize is the capacity of the async mirror queue.
	WriteQueueSize int
}

// Engine wires the room registry, violation detector, broadcast hub,
// session manager and trip tracker together. It exposes the operations the
// HTTP and WebSocket boundaries call; each one is a short transaction
// across the parts, atomic from the caller's point of view.
type Engine struct {
	registry *registry.Registry
	detector *violation.Detector
	hub      *hub.Hub
	sessions *session.Manager
	tracker  *stats.Tracker
	store    Store
	cfg      Config

	alertMu sync.Mutex
	alerts  map[string]*alert.Emergency

	throttleMu   sync.Mutex
	lastAccepted map[string]time.Time

	writes chan func(context.Context)
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// New creates a proximity engine. store may be nil, in which case mirroring
// is disabled.
func New(
	reg *registry.Registry,
	det *violation.Detector,
	h *hub.Hub,
	sessions *session.Manager,
	tracker *stats.Tracker,
	store Store,
	cfg Config,
) *Engine {
	if cfg.SampleMinInterval < 0 {
		cfg.SampleMinInterval = 0
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 5 * time.Second
	}
	if cfg.WriteQueueSize <= 0 {
		cfg.WriteQueueSize = 1024
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		registry:     reg,
		detector:     det,
		hub:          h,
		sessions:     sessions,
		tracker:      tracker,
		store:        store,
		cfg:          cfg,
		alerts:       make(map[string]*alert.Emergency),
		lastAccepted: make(map[string]time.Time),
		writes:       make(chan func(context.Context), cfg.WriteQueueSize),
		ctx:          ctx,
		cancel:       cancel,
		now:          time.Now,
	}

	e.wg.Add(1)
	go e.runWriter()

	return e
}

// SetClock overrides the engine's time source. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// CreateRoom registers a new room with the creator as leader.
func (e *Engine) CreateRoom(code, destination, leaderID, leaderName string, maxMembers int) (room.Room, error) {
	return e.registry.CreateRoom(code, destination, leaderID, leaderName, maxMembers)
}

// JoinRoom adds a participant to a room and announces the join to current
// subscribers. Rejoining is idempotent and silent.
func (e *Engine) JoinRoom(code, participantID, name string) (room.Room, room.Membership, error) {
	rm, member, joined, err := e.registry.JoinRoom(code, participantID, name)
	if err != nil {
		return room.Room{}, room.Membership{}, err
	}

	if joined {
		e.hub.Publish(rm.Code, event.New(event.TypeMemberJoined, rm.Code, event.MemberPayload{
			ParticipantID: member.ParticipantID,
			Name:          member.Name,
			IsLeader:      member.IsLeader,
		}), nil)
	}

	return rm, member, nil
}

// LeaveRoom marks the membership left, announces the departure, finalizes
// the member's trip statistics and drops all per-member tracking state.
func (e *Engine) LeaveRoom(code, participantID string) error {
	left, reclaimed, err := e.registry.LeaveRoom(code, participantID)
	if err != nil {
		return err
	}

	code = registry.NormalizeCode(code)
	e.detector.Forget(code, participantID)
	e.dropThrottle(code, participantID)

	if trip, ok := e.tracker.Finish(code, participantID); ok {
		e.mirror(func(ctx context.Context) {
			if e.store == nil {
				return
			}
			if err := e.store.SaveTrip(ctx, trip); err != nil {
				log.Printf("engine: mirroring trip stats for %s in %s: %v", participantID, code, err)
			}
		})
	}

	e.hub.Publish(code, event.New(event.TypeMemberLeft, code, event.MemberPayload{
		ParticipantID: left.ParticipantID,
		Name:          left.Name,
		IsLeader:      left.IsLeader,
	}), nil)

	if reclaimed {
		e.detector.ForgetRoom(code)
		e.tracker.ForgetRoom(code)
	}

	return nil
}

// ListMembers returns the active members of a room, leader first, with
// latest known locations.
func (e *Engine) ListMembers(code string) ([]room.Member, error) {
	return e.registry.Members(code)
}

// GetRoom returns the room denoted by code.
func (e *Engine) GetRoom(code string) (room.Room, error) {
	return e.registry.Get(code)
}

// SubmitLocation ingests one location sample: the registry records it, the
// violation detector evaluates it against the leader position, and the raw
// update plus any violation transition are fanned out to the room. origin,
// when non-nil, is excluded from the location fan-out so a sender does not
// receive an echo of its own update.
func (e *Engine) SubmitLocation(sample room.LocationSample, origin hub.Conn) error {
	if err := sample.Coordinate.Validate(); err != nil {
		return fmt.Errorf("%w: %v", room.ErrInvalidCoordinate, err)
	}
	if sample.Speed != nil && !geo.PlausibleSpeed(*sample.Speed) {
		// Keep the position, drop the senseless reading.
		sample.Speed = nil
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = e.now().UTC()
	}
	sample.RoomCode = registry.NormalizeCode(sample.RoomCode)

	if !e.throttleAllows(sample.RoomCode, sample.ParticipantID) {
		// Throttled: acknowledged, not broadcast, not mirrored.
		return nil
	}

	prev, err := e.registry.RecordSample(sample)
	if err != nil {
		return err
	}
	e.stampThrottle(sample.RoomCode, sample.ParticipantID)

	e.tracker.RecordSample(prev, sample)

	rm, err := e.registry.Get(sample.RoomCode)
	if err != nil {
		return err
	}
	leader, err := e.registry.LeaderPosition(sample.RoomCode)
	if err != nil {
		return err
	}

	result := e.detector.Evaluate(sample, leader, rm.LeaderID)

	e.hub.Publish(sample.RoomCode, event.New(event.TypeLocationUpdate, sample.RoomCode, sample), origin)

	switch result.Transition {
	case violation.TransitionRaised:
		v := *result.Violation
		e.tracker.RecordViolation(v.RoomCode, v.ParticipantID)
		e.hub.Publish(v.RoomCode, event.New(event.TypeViolationRaised, v.RoomCode, v), nil)
		e.mirror(func(ctx context.Context) {
			if e.store == nil {
				return
			}
			if err := e.store.AppendViolation(ctx, v); err != nil {
				log.Printf("engine: mirroring violation for %s in %s: %v", v.ParticipantID, v.RoomCode, err)
			}
		})
	case violation.TransitionCleared:
		e.hub.Publish(sample.RoomCode, event.New(event.TypeViolationCleared, sample.RoomCode, event.ViolationClearedPayload{
			ParticipantID: sample.ParticipantID,
			Name:          sample.Name,
		}), nil)
	}

	s := sample
	e.mirror(func(ctx context.Context) {
		if e.store == nil {
			return
		}
		if err := e.store.AppendLocation(ctx, s); err != nil {
			log.Printf("engine: mirroring location for %s in %s: %v", s.ParticipantID, s.RoomCode, err)
		}
	})

	return nil
}

// RaiseEmergency creates an emergency alert and broadcasts it to the room.
func (e *Engine) RaiseEmergency(code, participantID, name string, kind alert.Kind, coord geo.Coordinate, description string) (alert.Emergency, error) {
	if err := coord.Validate(); err != nil {
		return alert.Emergency{}, fmt.Errorf("%w: %v", room.ErrInvalidCoordinate, err)
	}
	if kind == "" {
		kind = alert.KindEmergency
	}
	if !alert.ValidKind(kind) {
		return alert.Emergency{}, fmt.Errorf("%w: %q", alert.ErrInvalidKind, kind)
	}

	code = registry.NormalizeCode(code)
	member, err := e.registry.IsMember(code, participantID)
	if err != nil {
		return alert.Emergency{}, err
	}
	if !member {
		return alert.Emergency{}, fmt.Errorf("room %s: %w", code, room.ErrNotAMember)
	}

	a := alert.Emergency{
		ID:            uuid.New().String(),
		RoomCode:      code,
		ParticipantID: participantID,
		Name:          name,
		Kind:          kind,
		Location:      coord,
		Description:   description,
		Status:        alert.StatusActive,
		CreatedAt:     e.now().UTC(),
	}

	e.alertMu.Lock()
	stored := a
	e.alerts[a.ID] = &stored
	e.alertMu.Unlock()

	e.hub.Publish(code, event.New(event.TypeEmergencyRaised, code, a), nil)

	e.mirror(func(ctx context.Context) {
		if e.store == nil {
			return
		}
		if err := e.store.SaveAlert(ctx, a); err != nil {
			log.Printf("engine: mirroring alert %s: %v", a.ID, err)
		}
	})

	return a, nil
}

// ResolveEmergency marks an active alert resolved. Any active member of the
// alert's room may resolve it.
func (e *Engine) ResolveEmergency(alertID, resolverID string) (alert.Emergency, error) {
	e.alertMu.Lock()
	stored, ok := e.alerts[alertID]
	if !ok {
		e.alertMu.Unlock()
		return alert.Emergency{}, fmt.Errorf("alert %s: %w", alertID, alert.ErrAlertNotFound)
	}
	if stored.Status != alert.StatusActive {
		e.alertMu.Unlock()
		return alert.Emergency{}, fmt.Errorf("alert %s: %w", alertID, alert.ErrAlreadyResolved)
	}
	code := stored.RoomCode
	e.alertMu.Unlock()

	member, err := e.registry.IsMember(code, resolverID)
	if err == nil && !member {
		return alert.Emergency{}, fmt.Errorf("room %s: %w", code, room.ErrNotAMember)
	}

	e.alertMu.Lock()
	if stored.Status != alert.StatusActive {
		e.alertMu.Unlock()
		return alert.Emergency{}, fmt.Errorf("alert %s: %w", alertID, alert.ErrAlreadyResolved)
	}
	now := e.now().UTC()
	stored.Status = alert.StatusResolved
	stored.ResolvedAt = &now
	stored.ResolvedBy = resolverID
	resolved := *stored
	e.alertMu.Unlock()

	e.hub.Publish(code, event.New(event.TypeEmergencyResolved, code, event.EmergencyResolvedPayload{
		AlertID:    alertID,
		ResolvedBy: resolverID,
	}), nil)

	e.mirror(func(ctx context.Context) {
		if e.store == nil {
			return
		}
		if err := e.store.SaveAlert(ctx, resolved); err != nil {
			log.Printf("engine: mirroring alert resolution %s: %v", alertID, err)
		}
	})

	return resolved, nil
}

// PostNotification fans a free-form message out to a room.
func (e *Engine) PostNotification(code, message, sender string) error {
	code = registry.NormalizeCode(code)
	if _, err := e.registry.Get(code); err != nil {
		return err
	}

	e.hub.Publish(code, event.New(event.TypeNotification, code, event.NotificationPayload{
		Message: message,
		Sender:  sender,
	}), nil)
	return nil
}

// Subscribe attaches a connection to a room's event stream and sends it the
// current room state. Subscription is transport-level and does not require
// membership.
func (e *Engine) Subscribe(c hub.Conn, code, participantID, name string) {
	code = registry.NormalizeCode(code)
	e.sessions.Bind(c, code, participantID, name)

	rm, err := e.registry.Get(code)
	if err != nil {
		return
	}
	members, err := e.registry.Members(code)
	if err != nil {
		return
	}

	snapshot := event.New(event.TypeRoomState, code, event.RoomStatePayload{Room: rm, Members: members})
	data, err := snapshot.Encode()
	if err != nil {
		log.Printf("engine: encoding room state for %s: %v", code, err)
		return
	}
	if err := c.Send(data); err != nil {
		log.Printf("engine: sending room state to %s: %v", c.ID(), err)
	}
}

// Unsubscribe detaches a connection without announcing a departure.
func (e *Engine) Unsubscribe(c hub.Conn) {
	e.sessions.Release(c)
}

// Disconnect handles a connection loss. Membership is not mutated; see the
// session manager.
func (e *Engine) Disconnect(c hub.Conn) {
	e.sessions.Disconnect(c)
}

// Stop shuts down the async mirror writer and waits for in-flight writes.
func (e *Engine) Stop(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// throttleAllows reports whether the per-participant minimum spacing between
// accepted samples has elapsed. It does not record anything: the stamp is
// committed only once the sample has actually been recorded, so a rejected
// submission leaves no trace.
func (e *Engine) throttleAllows(code, participantID string) bool {
	if e.cfg.SampleMinInterval == 0 {
		return true
	}

	e.throttleMu.Lock()
	defer e.throttleMu.Unlock()

	last, ok := e.lastAccepted[code+"/"+participantID]
	return !ok || e.now().Sub(last) >= e.cfg.SampleMinInterval
}

func (e *Engine) stampThrottle(code, participantID string) {
	if e.cfg.SampleMinInterval == 0 {
		return
	}
	e.throttleMu.Lock()
	e.lastAccepted[code+"/"+participantID] = e.now()
	e.throttleMu.Unlock()
}

func (e *Engine) dropThrottle(code, participantID string) {
	e.throttleMu.Lock()
	delete(e.lastAccepted, code+"/"+participantID)
	e.throttleMu.Unlock()
}

// mirror queues a fire-and-forget storage write. A full queue drops the
// write: losing a single mirrored sample is acceptable, blocking the
// broadcast path is not.
func (e *Engine) mirror(write func(context.Context)) {
	if e.store == nil {
		return
	}
	select {
	case e.writes <- write:
	default:
		log.Printf("engine: mirror queue full, dropping write")
	}
}

func (e *Engine) runWriter() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			// Drain what is already queued, then stop.
			for {
				select {
				case write := <-e.writes:
					e.applyWrite(write)
				default:
					return
				}
			}
		case write := <-e.writes:
			e.applyWrite(write)
		}
	}
}

func (e *Engine) applyWrite(write func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StorageTimeout)
	defer cancel()
	write(ctx)
}
