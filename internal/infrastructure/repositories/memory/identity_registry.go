package memory

import (
	"sync"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
)

type connRecord struct {
	id           domain.ConnID
	identity     domain.Identity
	room         domain.RoomID
	registeredAt time.Time
}

// IdentityRegistry is the in-memory identity -> connections map. One
// connection belongs to exactly one identity for its whole lifetime;
// an identity may hold any number of connections.
type IdentityRegistry struct {
	byConn     map[domain.ConnID]*connRecord
	byIdentity map[domain.Identity][]*connRecord
	primary    map[domain.Identity]domain.ConnID
	mu         sync.RWMutex
}

func NewIdentityRegistry() ports.IdentityRegistry {
	return &IdentityRegistry{
		byConn:     make(map[domain.ConnID]*connRecord),
		byIdentity: make(map[domain.Identity][]*connRecord),
		primary:    make(map[domain.Identity]domain.ConnID),
	}
}

func (r *IdentityRegistry) Register(conn domain.ConnID, identity domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, exists := r.byConn[conn]; exists {
		if rec.identity == identity {
			return
		}
		// The connection re-declared itself as a different identity.
		// Migrate the record: the old identity must not keep counting
		// this connection, or its room bindings leak.
		r.detachLocked(rec)
		delete(r.byConn, conn)
	}

	rec := &connRecord{
		id:           conn,
		identity:     identity,
		registeredAt: time.Now(),
	}
	r.byConn[conn] = rec
	r.byIdentity[identity] = append(r.byIdentity[identity], rec)

	// First connection since the identity had none becomes primary.
	if _, has := r.primary[identity]; !has {
		r.primary[identity] = conn
	}
}

// detachLocked removes the record from its identity's connection list
// and recomputes the primary. Returns true when it was the identity's
// last connection. Caller holds the write lock.
func (r *IdentityRegistry) detachLocked(rec *connRecord) bool {
	survivors := r.byIdentity[rec.identity][:0]
	for _, other := range r.byIdentity[rec.identity] {
		if other.id != rec.id {
			survivors = append(survivors, other)
		}
	}

	if len(survivors) == 0 {
		delete(r.byIdentity, rec.identity)
		delete(r.primary, rec.identity)
		return true
	}

	r.byIdentity[rec.identity] = survivors
	// Slices stay registration-ordered, so the oldest surviving
	// connection is the new primary.
	if r.primary[rec.identity] == rec.id {
		r.primary[rec.identity] = survivors[0].id
	}
	return false
}

func (r *IdentityRegistry) SetRoom(conn domain.ConnID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, exists := r.byConn[conn]; exists {
		rec.room = room
	}
}

func (r *IdentityRegistry) ClearRoom(conn domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, exists := r.byConn[conn]; exists {
		rec.room = ""
	}
}

func (r *IdentityRegistry) Deregister(conn domain.ConnID) (domain.Identity, domain.RoomID, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.byConn[conn]
	if !exists {
		return "", "", false, false
	}
	delete(r.byConn, conn)

	last := r.detachLocked(rec)
	return rec.identity, rec.room, last, true
}

func (r *IdentityRegistry) IdentityOf(conn domain.ConnID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.byConn[conn]
	if !exists {
		return "", false
	}
	return rec.identity, true
}

func (r *IdentityRegistry) SessionOf(conn domain.ConnID) (domain.Identity, domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.byConn[conn]
	if !exists {
		return "", "", false
	}
	return rec.identity, rec.room, true
}

func (r *IdentityRegistry) ConnectionsFor(identity domain.Identity) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := r.byIdentity[identity]
	conns := make([]domain.ConnID, 0, len(recs))
	for _, rec := range recs {
		conns = append(conns, rec.id)
	}
	return conns
}

func (r *IdentityRegistry) PrimaryFor(identity domain.Identity) (domain.ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.primary[identity]
	return conn, exists
}
