package domain

import "time"

// Identity is the durable, client-supplied participant token. It is
// opaque to the server and stable across reconnects; its lifecycle
// (generation, expiry) belongs to the client.
type Identity string

// ConnID identifies one live transport-level connection. Generated on
// connect, destroyed on disconnect. A ConnID maps to at most one
// Identity for its entire lifetime; an Identity may hold many ConnIDs.
type ConnID string

// RoomID is the client-chosen room key.
type RoomID string

// RoomCapacity is the maximum number of distinct identities per room.
const RoomCapacity = 2

// Room is the unit of call membership. Occupants are counted by
// identity; Connections tracks the raw connection set, which may be
// larger than the occupant set when one identity holds several
// connections (tab reload, transport fallback).
type Room struct {
	ID          RoomID
	Occupants   map[Identity]struct{}
	Connections map[ConnID]struct{}
	CreatedAt   time.Time
}

func NewRoom(id RoomID) *Room {
	return &Room{
		ID:          id,
		Occupants:   make(map[Identity]struct{}),
		Connections: make(map[ConnID]struct{}),
		CreatedAt:   time.Now(),
	}
}

// RoomStatus is the result of a pre-join availability check.
type RoomStatus struct {
	Exists        bool
	OccupantCount int
	Full          bool
}

// RoomInfo is a diagnostic snapshot of a room, used by the HTTP API.
type RoomInfo struct {
	ID              RoomID     `json:"roomId"`
	Occupants       []Identity `json:"occupants"`
	ConnectionCount int        `json:"connectionCount"`
	CreatedAt       time.Time  `json:"createdAt"`
}
