package services

import (
	"fmt"
	"sync"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/internal/infrastructure/monitoring"

	"go.uber.org/zap"
)

// Coordinator is the membership protocol core. It owns the join,
// leave, disconnect and eviction transitions for every (identity,
// room) pair and serializes them behind a single mutex, so each
// transition runs to completion before the next one starts.
type Coordinator struct {
	identities ports.IdentityRegistry
	rooms      ports.RoomTable
	relay      *Relay
	scheduler  *EvictionScheduler

	evictionDelay time.Duration

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger

	mu sync.Mutex
}

func NewCoordinator(
	identities ports.IdentityRegistry,
	rooms ports.RoomTable,
	relay *Relay,
	scheduler *EvictionScheduler,
	evictionDelay time.Duration,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) *Coordinator {
	return &Coordinator{
		identities:    identities,
		rooms:         rooms,
		relay:         relay,
		scheduler:     scheduler,
		evictionDelay: evictionDelay,
		metrics:       metrics,
		logger:        logger,
	}
}

// RegisterSession binds the connection to its durable identity and,
// when the client declared a stored room, immediately attempts the
// join (the reconnect-after-reload path).
func (c *Coordinator) RegisterSession(conn domain.ConnID, identity domain.Identity, room domain.RoomID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, _, ok := c.identities.SessionOf(conn); ok && prev != identity {
		// The connection re-declared itself as a different identity.
		// Unwind the old binding first, exactly as if it had dropped,
		// so the old identity's room gets its departure and grace
		// period instead of a stranded occupant.
		c.unbind(conn)
	}

	c.identities.Register(conn, identity)
	c.logger.Infow("session registered", "conn_id", conn, "identity", identity, "room_id", room)

	if room == "" {
		return nil
	}
	return c.join(conn, identity, room)
}

// Join handles create-room and join-room, which share server-side
// semantics: the room is created on first join. Returns
// domain.ErrRoomFull when two other identities already occupy the
// room, and domain.ErrUnknownIdentity when the connection never
// declared a session.
func (c *Coordinator) Join(conn domain.ConnID, room domain.RoomID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	identity, known := c.identities.IdentityOf(conn)
	if !known {
		return domain.ErrUnknownIdentity
	}
	return c.join(conn, identity, room)
}

func (c *Coordinator) join(conn domain.ConnID, identity domain.Identity, room domain.RoomID) error {
	// An identity occupies one room at a time: switching rooms runs
	// the departure path for the previous one first, so it gets its
	// user-left or grace period instead of a ghost occupant.
	for _, prev := range c.otherRooms(identity, room) {
		c.departRoom(conn, identity, prev)
	}

	c.rooms.EnsureRoom(room)
	c.metrics.SetRoomCount(len(c.rooms.List()))

	if c.rooms.HasOccupant(room, identity) {
		// Same identity on a new connection: a reconnection, never a
		// second occupant. Occupancy is keyed by identity.
		c.rooms.AddConnection(room, conn)
		c.identities.SetRoom(conn, room)
		c.cancelEviction(room)
		c.logger.Infow("identity reconnected to room", "conn_id", conn, "identity", identity, "room_id", room)
		return nil
	}

	if err := c.rooms.AddOccupant(room, identity); err != nil {
		c.metrics.RoomFullRejected()
		c.logger.Infow("join rejected", "conn_id", conn, "identity", identity, "room_id", room, "error", err)
		return err
	}

	c.rooms.AddConnection(room, conn)
	c.identities.SetRoom(conn, room)
	c.cancelEviction(room)

	c.relay.BroadcastToRoomExcept(room, conn, EventUserJoined, UserEventPayload{
		UserID:   conn,
		Identity: identity,
		RoomID:   room,
	})

	c.logger.Infow("identity joined room", "conn_id", conn, "identity", identity, "room_id", room)
	return nil
}

// Leave handles an explicit leave-room. A leave for a room the
// identity does not occupy is rejected untouched: it must not fake a
// user-left to the real occupants or disturb a pending eviction.
func (c *Coordinator) Leave(conn domain.ConnID, room domain.RoomID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	identity, known := c.identities.IdentityOf(conn)
	if !known {
		return domain.ErrUnknownIdentity
	}
	if !c.rooms.HasOccupant(room, identity) {
		return fmt.Errorf("leave %s: identity %q does not occupy the room", room, identity)
	}

	c.departRoom(conn, identity, room)
	return nil
}

// departRoom removes the identity from the room. Every connection the
// identity has bound to the room is detached, not just the acting one,
// so a sibling tab does not keep receiving the room's broadcasts after
// its identity left.
func (c *Coordinator) departRoom(conn domain.ConnID, identity domain.Identity, room domain.RoomID) {
	for _, sibling := range c.identities.ConnectionsFor(identity) {
		if _, bound, ok := c.identities.SessionOf(sibling); ok && bound == room {
			c.rooms.RemoveConnection(room, sibling)
			c.identities.ClearRoom(sibling)
		}
	}

	if !c.rooms.HasOccupant(room, identity) {
		return
	}
	empty, err := c.rooms.RemoveOccupant(room, identity)
	if err != nil {
		c.logger.Warnw("occupant removal failed", "room_id", room, "identity", identity, "error", err)
		return
	}
	c.departed(conn, identity, room, empty)
}

// otherRooms lists the rooms the identity is currently bound to other
// than the target, via any of its connections.
func (c *Coordinator) otherRooms(identity domain.Identity, target domain.RoomID) []domain.RoomID {
	var out []domain.RoomID
	seen := make(map[domain.RoomID]bool)
	for _, sibling := range c.identities.ConnectionsFor(identity) {
		_, bound, ok := c.identities.SessionOf(sibling)
		if !ok || bound == "" || bound == target || seen[bound] {
			continue
		}
		seen[bound] = true
		out = append(out, bound)
	}
	return out
}

// Disconnect handles the transport-level drop of a connection. Only
// the identity's last connection triggers occupancy changes; a tab
// closing while another remains is invisible to the room.
func (c *Coordinator) Disconnect(conn domain.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unbind(conn)
}

// unbind tears down a connection's registration and, when it was the
// identity's last connection, runs the room departure. Caller holds
// the coordinator lock.
func (c *Coordinator) unbind(conn domain.ConnID) {
	identity, room, last, found := c.identities.Deregister(conn)
	if !found {
		// Connection never declared a session; nothing to unwind.
		return
	}

	c.logger.Infow("connection deregistered", "conn_id", conn, "identity", identity, "room_id", room, "last", last)

	if room == "" {
		return
	}
	c.rooms.RemoveConnection(room, conn)

	if !last || !c.rooms.HasOccupant(room, identity) {
		return
	}

	empty, err := c.rooms.RemoveOccupant(room, identity)
	if err != nil {
		c.logger.Warnw("occupant removal failed on disconnect", "room_id", room, "identity", identity, "error", err)
		return
	}
	c.departed(conn, identity, room, empty)
}

// departed finishes a removal: the remaining occupant learns about it
// immediately, while an empty room enters the reconnection grace
// period instead of being deleted.
func (c *Coordinator) departed(conn domain.ConnID, identity domain.Identity, room domain.RoomID, empty bool) {
	if !empty {
		c.relay.BroadcastToRoomExcept(room, conn, EventUserLeft, UserEventPayload{
			UserID:   conn,
			Identity: identity,
			RoomID:   room,
		})
		c.logger.Infow("identity left room", "identity", identity, "room_id", room)
		return
	}
	c.scheduler.Schedule(room, identity, c.evictionDelay, c.expireEviction)
}

// expireEviction runs on the scheduler's timer goroutine when a grace
// period elapses with no reconnection. Occupancy is re-checked under
// the coordinator lock: the room may have been repopulated while the
// timer was in flight, in which case this is a no-op.
func (c *Coordinator) expireEviction(room domain.RoomID, identity domain.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.rooms.Status(room)
	if !status.Exists {
		return
	}
	if status.OccupantCount > 0 {
		c.logger.Infow("eviction expired on repopulated room, keeping it", "room_id", room, "identity", identity)
		return
	}

	if err := c.rooms.DeleteRoom(room); err != nil {
		c.logger.Warnw("room deletion failed after grace period", "room_id", room, "error", err)
		return
	}
	c.metrics.RoomEvicted()
	c.metrics.SetRoomCount(len(c.rooms.List()))
	c.logger.Infow("room deleted after grace period", "room_id", room, "identity", identity)
}

func (c *Coordinator) cancelEviction(room domain.RoomID) {
	if c.scheduler.Cancel(room) {
		c.metrics.EvictionCanceled()
	}
}

// SessionOf resolves a connection to its declared identity and the
// room it currently occupies.
func (c *Coordinator) SessionOf(conn domain.ConnID) (domain.Identity, domain.RoomID, bool) {
	return c.identities.SessionOf(conn)
}

// RoomStatus is the pre-join availability check. Pure read.
func (c *Coordinator) RoomStatus(room domain.RoomID) domain.RoomStatus {
	return c.rooms.Status(room)
}

// RoomDiagnostic augments a room snapshot with scheduler state.
type RoomDiagnostic struct {
	domain.RoomInfo
	PendingEviction bool `json:"pendingEviction"`
}

// Snapshot dumps every room for the diagnostic HTTP endpoint.
func (c *Coordinator) Snapshot() []RoomDiagnostic {
	infos := c.rooms.List()
	out := make([]RoomDiagnostic, 0, len(infos))
	for _, info := range infos {
		_, pending := c.scheduler.Pending(info.ID)
		out = append(out, RoomDiagnostic{RoomInfo: info, PendingEviction: pending})
	}
	return out
}
