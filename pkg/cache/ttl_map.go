// Package cache holds small in-memory stores shared by the server.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// expired reports whether the entry is past its deadline. A zero deadline never expires.
func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// TTLMap is a mutex guarded map whose entries carry an optional expiry. Expired
// entries are hidden by GetFresh and dropped by Sweep.
type TTLMap[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
}

func NewTTLMap[K comparable, V any]() *TTLMap[K, V] {
	return &TTLMap[K, V]{items: map[K]entry[V]{}}
}

// Get returns the stored value and its deadline, expired or not.
func (m *TTLMap[K, V]) Get(key K) (V, time.Time, bool) {
	var zero V
	if m == nil {
		return zero, time.Time{}, false
	}
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return zero, time.Time{}, false
	}
	return e.value, e.expiresAt, true
}

func (m *TTLMap[K, V]) GetFresh(key K, now time.Time) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || e.expired(now) {
		return zero, false
	}
	return e.value, true
}

// SetWithTTL stores value until now+ttl. A ttl <= 0 stores it without expiry.
func (m *TTLMap[K, V]) SetWithTTL(key K, value V, now time.Time, ttl time.Duration) {
	if m == nil {
		return
	}
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = entry[V]{value: value, expiresAt: exp}
	m.mu.Unlock()
}

func (m *TTLMap[K, V]) Delete(key K) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}

// Sweep drops every entry expired at now and returns how many were removed.
func (m *TTLMap[K, V]) Sweep(now time.Time) int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.items {
		if e.expired(now) {
			delete(m.items, k)
			removed++
		}
	}
	return removed
}

func (m *TTLMap[K, V]) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
