package reservation

import (
	"sync"

	"github.com/bkoehler/tgtg-notify/internal/models"
)

type entry struct {
	reservation models.Reservation
	handle      TimerHandle
}

// Store holds the active reservations. Every entry carries exactly one
// scheduled-cancellation handle; removal and handle cancellation happen
// atomically under the same mutex, so of two racing cancel triggers only
// one ever observes the entry.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Put inserts a reservation with its timer handle. An existing entry for
// the same order ID is overwritten and its handle stopped first; this
// should not happen in practice since order IDs are externally assigned
// per successful reservation.
func (s *Store) Put(orderID string, res models.Reservation, handle TimerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[orderID]; ok && prev.handle != nil {
		prev.handle.Stop()
	}
	s.entries[orderID] = entry{reservation: res, handle: handle}
}

// Remove is the single atomic check-and-delete both cancellation paths
// race through. It stops the timer handle, deletes the entry, and
// returns the reservation; false means another path already removed it.
func (s *Store) Remove(orderID string) (models.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[orderID]
	if !ok {
		return models.Reservation{}, false
	}
	if e.handle != nil {
		e.handle.Stop()
	}
	delete(s.entries, orderID)
	return e.reservation, true
}

// Snapshot returns a point-in-time copy. The store may mutate
// concurrently; callers must treat the copy as already stale.
func (s *Store) Snapshot() map[string]models.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]models.Reservation, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.reservation
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
