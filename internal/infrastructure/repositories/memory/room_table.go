package memory

import (
	"sort"
	"sync"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
)

// RoomTable is the in-memory room map. Occupancy is counted by
// identity, never by connection; the connection set is tracked
// separately for relay routing.
type RoomTable struct {
	rooms map[domain.RoomID]*domain.Room
	mu    sync.RWMutex
}

func NewRoomTable() ports.RoomTable {
	return &RoomTable{
		rooms: make(map[domain.RoomID]*domain.Room),
	}
}

func (t *RoomTable) EnsureRoom(room domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.rooms[room]; !exists {
		t.rooms[room] = domain.NewRoom(room)
	}
}

func (t *RoomTable) Status(room domain.RoomID) domain.RoomStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, exists := t.rooms[room]
	if !exists {
		return domain.RoomStatus{}
	}
	return domain.RoomStatus{
		Exists:        true,
		OccupantCount: len(r.Occupants),
		Full:          len(r.Occupants) >= domain.RoomCapacity,
	}
}

func (t *RoomTable) AddOccupant(room domain.RoomID, identity domain.Identity) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, exists := t.rooms[room]
	if !exists {
		return domain.ErrRoomNotFound
	}
	if _, already := r.Occupants[identity]; already {
		return nil
	}
	if len(r.Occupants) >= domain.RoomCapacity {
		return domain.ErrRoomFull
	}
	r.Occupants[identity] = struct{}{}
	return nil
}

func (t *RoomTable) RemoveOccupant(room domain.RoomID, identity domain.Identity) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, exists := t.rooms[room]
	if !exists {
		return false, domain.ErrRoomNotFound
	}
	delete(r.Occupants, identity)
	return len(r.Occupants) == 0, nil
}

func (t *RoomTable) Occupants(room domain.RoomID) []domain.Identity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, exists := t.rooms[room]
	if !exists {
		return nil
	}
	occupants := make([]domain.Identity, 0, len(r.Occupants))
	for identity := range r.Occupants {
		occupants = append(occupants, identity)
	}
	sort.Slice(occupants, func(i, j int) bool { return occupants[i] < occupants[j] })
	return occupants
}

func (t *RoomTable) HasOccupant(room domain.RoomID, identity domain.Identity) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, exists := t.rooms[room]
	if !exists {
		return false
	}
	_, occupied := r.Occupants[identity]
	return occupied
}

func (t *RoomTable) AddConnection(room domain.RoomID, conn domain.ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, exists := t.rooms[room]; exists {
		r.Connections[conn] = struct{}{}
	}
}

func (t *RoomTable) RemoveConnection(room domain.RoomID, conn domain.ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, exists := t.rooms[room]; exists {
		delete(r.Connections, conn)
	}
}

func (t *RoomTable) Connections(room domain.RoomID) []domain.ConnID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, exists := t.rooms[room]
	if !exists {
		return nil
	}
	conns := make([]domain.ConnID, 0, len(r.Connections))
	for conn := range r.Connections {
		conns = append(conns, conn)
	}
	return conns
}

func (t *RoomTable) DeleteRoom(room domain.RoomID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, exists := t.rooms[room]
	if !exists {
		return domain.ErrRoomNotFound
	}
	if len(r.Occupants) > 0 {
		return domain.ErrRoomNotEmpty
	}
	delete(t.rooms, room)
	return nil
}

func (t *RoomTable) List() []domain.RoomInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	infos := make([]domain.RoomInfo, 0, len(t.rooms))
	for _, r := range t.rooms {
		occupants := make([]domain.Identity, 0, len(r.Occupants))
		for identity := range r.Occupants {
			occupants = append(occupants, identity)
		}
		sort.Slice(occupants, func(i, j int) bool { return occupants[i] < occupants[j] })
		infos = append(infos, domain.RoomInfo{
			ID:              r.ID,
			Occupants:       occupants,
			ConnectionCount: len(r.Connections),
			CreatedAt:       r.CreatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
