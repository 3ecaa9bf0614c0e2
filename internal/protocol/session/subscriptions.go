package session

import (
	"errors"
	"hash/fnv"
	"maps"
	"slices"
	"strconv"
	"sync"
)

var (
	ErrAlreadySubscribed = errors.New("session: already subscribed")
	ErrNotSubscribed     = errors.New("session: not subscribed")
)

// SubscriptionID derives the subscription id for user on topic. The id is a
// stable FNV-1a hash, so unsubscribe can recompute it without a lookup.
func SubscriptionID(user, topic string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(user))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(topic))
	return strconv.FormatUint(uint64(h.Sum32()), 10)
}

// SubscriptionRegistry is the bidirectional topic <-> subscription id table.
// Entries are only added or removed after the broker confirms.
type SubscriptionRegistry struct {
	mu      sync.RWMutex
	byTopic map[string]string
	byID    map[string]string
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		byTopic: make(map[string]string),
		byID:    make(map[string]string),
	}
}

func (r *SubscriptionRegistry) Add(topic, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byTopic[topic]; ok {
		return ErrAlreadySubscribed
	}
	r.byTopic[topic] = id
	r.byID[id] = topic
	return nil
}

func (r *SubscriptionRegistry) Remove(topic string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byTopic[topic]
	if !ok {
		return "", ErrNotSubscribed
	}
	delete(r.byTopic, topic)
	delete(r.byID, id)
	return id, nil
}

func (r *SubscriptionRegistry) ID(topic string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byTopic[topic]
	return id, ok
}

func (r *SubscriptionRegistry) Topic(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topic, ok := r.byID[id]
	return topic, ok
}

func (r *SubscriptionRegistry) Has(topic string) bool {
	_, ok := r.ID(topic)
	return ok
}

// Topics returns subscribed topics in sorted order.
func (r *SubscriptionRegistry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.byTopic))
}

func (r *SubscriptionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTopic)
}

func (r *SubscriptionRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.byTopic)
	clear(r.byID)
}
