package services

import (
	"sync"
	"time"

	"parley/internal/core/domain"

	"go.uber.org/zap"
)

type pendingEviction struct {
	identity domain.Identity
	timer    *time.Timer
}

// EvictionScheduler owns the delayed room-teardown timers. At most one
// pending eviction exists per room; scheduling again replaces it. This
// is the only place eviction timers are created or canceled.
type EvictionScheduler struct {
	pending map[domain.RoomID]*pendingEviction
	mu      sync.Mutex

	logger *zap.SugaredLogger
}

func NewEvictionScheduler(logger *zap.SugaredLogger) *EvictionScheduler {
	return &EvictionScheduler{
		pending: make(map[domain.RoomID]*pendingEviction),
		logger:  logger,
	}
}

// Schedule starts the grace-period timer for the room. An existing
// pending eviction for the room is canceled and replaced. expire runs
// on the timer goroutine after the pending record has been discarded,
// so a concurrent Cancel can no longer race with it.
func (s *EvictionScheduler) Schedule(room domain.RoomID, identity domain.Identity, delay time.Duration, expire func(room domain.RoomID, identity domain.Identity)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.pending[room]; exists {
		existing.timer.Stop()
	}

	p := &pendingEviction{identity: identity}
	p.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		current, exists := s.pending[room]
		if !exists || current != p {
			// Canceled or replaced after the timer already fired.
			s.mu.Unlock()
			return
		}
		delete(s.pending, room)
		s.mu.Unlock()

		expire(room, identity)
	})
	s.pending[room] = p

	s.logger.Infow("eviction scheduled", "room_id", room, "identity", identity, "delay", delay)
}

// Cancel removes any pending eviction for the room. Returns whether
// one existed.
func (s *EvictionScheduler) Cancel(room domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.pending[room]
	if !exists {
		return false
	}
	p.timer.Stop()
	delete(s.pending, room)

	s.logger.Infow("eviction canceled", "room_id", room, "identity", p.identity)
	return true
}

// Pending reports the identity expected to reconnect to the room, if
// a grace period is running.
func (s *EvictionScheduler) Pending(room domain.RoomID) (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.pending[room]
	if !exists {
		return "", false
	}
	return p.identity, true
}

// Stop cancels every pending eviction. Used on shutdown.
func (s *EvictionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for room, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, room)
	}
}
