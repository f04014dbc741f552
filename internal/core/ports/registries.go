package ports

import (
	"parley/internal/core/domain"
)

// IdentityRegistry maps durable identities onto their live connections
// and designates one connection per identity as primary.
type IdentityRegistry interface {
	// Register records the connection under the identity. The first
	// connection observed for an identity becomes its primary.
	// Idempotent for a repeated (conn, identity) pair.
	Register(conn domain.ConnID, identity domain.Identity)

	// SetRoom remembers which room the connection has joined, so that
	// Deregister can report the affected room.
	SetRoom(conn domain.ConnID, room domain.RoomID)

	// ClearRoom forgets the connection's room association.
	ClearRoom(conn domain.ConnID)

	// Deregister removes the connection. It reports the identity and
	// room the connection was under, and whether this was the
	// identity's last live connection. When the departing connection
	// was the primary, the oldest surviving connection takes over.
	Deregister(conn domain.ConnID) (identity domain.Identity, room domain.RoomID, last bool, found bool)

	// IdentityOf returns the identity a connection is registered under.
	IdentityOf(conn domain.ConnID) (domain.Identity, bool)

	// SessionOf returns the identity together with the room the
	// connection currently sits in ("" when it has joined none).
	SessionOf(conn domain.ConnID) (domain.Identity, domain.RoomID, bool)

	// ConnectionsFor returns the identity's live connections, oldest
	// first. Empty for an unknown identity.
	ConnectionsFor(identity domain.Identity) []domain.ConnID

	// PrimaryFor returns the identity's primary connection.
	PrimaryFor(identity domain.Identity) (domain.ConnID, bool)
}

// RoomTable owns the room objects: occupant identity sets capped at
// domain.RoomCapacity plus the raw connection set per room.
type RoomTable interface {
	// EnsureRoom creates an empty room if absent. Always succeeds.
	EnsureRoom(room domain.RoomID)

	// Status reports existence, occupant count and fullness without
	// mutating anything.
	Status(room domain.RoomID) domain.RoomStatus

	// AddOccupant adds the identity to the room's occupant set.
	// Returns domain.ErrRoomFull when the room already holds
	// RoomCapacity other identities; a no-op success when the identity
	// is already an occupant.
	AddOccupant(room domain.RoomID, identity domain.Identity) error

	// RemoveOccupant removes the identity and reports whether the
	// occupant set is now empty.
	RemoveOccupant(room domain.RoomID, identity domain.Identity) (empty bool, err error)

	Occupants(room domain.RoomID) []domain.Identity
	HasOccupant(room domain.RoomID, identity domain.Identity) bool

	AddConnection(room domain.RoomID, conn domain.ConnID)
	RemoveConnection(room domain.RoomID, conn domain.ConnID)
	Connections(room domain.RoomID) []domain.ConnID

	// DeleteRoom removes the room entirely. Fails with
	// domain.ErrRoomNotEmpty unless the occupant set is empty.
	DeleteRoom(room domain.RoomID) error

	List() []domain.RoomInfo
}
