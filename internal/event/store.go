package event

import (
	"maps"
	"slices"
	"sync"
)

// Store is the concurrent channel -> owner -> events table. Buckets are created
// on first insert and never removed; each bucket keeps arrival order.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string][]Event
	n    int
}

func NewStore() *Store {
	return &Store{
		data: make(map[string]map[string][]Event),
	}
}

// Add appends e under e.Channel and e.Owner.
func (s *Store) Add(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owners, ok := s.data[e.Channel]
	if !ok {
		owners = make(map[string][]Event)
		s.data[e.Channel] = owners
	}
	owners[e.Owner] = append(owners[e.Owner], e)
	s.n++
}

// Events returns a copy of the events reported by owner on channel.
func (s *Store) Events(channel, owner string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data[channel][owner])
}

// Channels returns every channel with at least one event, sorted.
func (s *Store) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.data))
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}
