package memory

import (
	"sync"
	"time"

	"github.com/agencyflow/agency-oauth/storage"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Expiring is a concurrency-safe keyed store where every entry carries its own expiry.
// Reads check expiry themselves, so correctness never depends on when Sweep runs.
type Expiring[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	now     func() time.Time
}

// NewExpiring creates an empty store. A nil clock means time.Now.
func NewExpiring[T any](now func() time.Time) *Expiring[T] {
	if now == nil {
		now = time.Now
	}
	return &Expiring[T]{
		entries: make(map[string]entry[T]),
		now:     now,
	}
}

// expired reports whether expiresAt has been reached. A record is live strictly before it.
func expired(now, expiresAt time.Time) bool {
	return !now.Before(expiresAt)
}

// Put stores value under key for ttl, replacing any previous entry.
func (e *Expiring[T]) Put(key string, value T, ttl time.Duration) {
	e.PutUntil(key, value, e.now().Add(ttl))
}

// PutUntil stores value under key until expiresAt.
func (e *Expiring[T]) PutUntil(key string, value T, expiresAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries[key] = entry[T]{value: value, expiresAt: expiresAt}
}

// Get returns the live value for key. An expired entry is evicted and reported absent.
func (e *Expiring[T]) Get(key string) (T, bool) {
	v, err := e.Lookup(key)
	return v, err == nil
}

// Lookup is Get with the miss reason: storage.ErrNotFound, or storage.ErrExpired
// when an unswept expired entry was found and evicted.
func (e *Expiring[T]) Lookup(key string) (T, error) {
	e.mu.RLock()
	ent, ok := e.entries[key]
	e.mu.RUnlock()

	var zero T
	if !ok {
		return zero, storage.ErrNotFound
	}
	if !expired(e.now(), ent.expiresAt) {
		return ent.value, nil
	}

	e.mu.Lock()
	// The key may have been rewritten between the two locks.
	if cur, ok := e.entries[key]; ok && expired(e.now(), cur.expiresAt) {
		delete(e.entries, key)
	}
	e.mu.Unlock()
	return zero, storage.ErrExpired
}

// Delete removes key. Missing keys are ignored.
func (e *Expiring[T]) Delete(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.entries, key)
}

// Take removes key and returns its value in a single critical section, so concurrent
// callers for the same key observe exactly one winner. An entry whose expiry has passed
// is removed as well and returned together with storage.ErrExpired.
func (e *Expiring[T]) Take(key string) (T, error) {
	e.mu.Lock()
	ent, ok := e.entries[key]
	if ok {
		delete(e.entries, key)
	}
	e.mu.Unlock()

	if !ok {
		var zero T
		return zero, storage.ErrNotFound
	}
	if expired(e.now(), ent.expiresAt) {
		return ent.value, storage.ErrExpired
	}
	return ent.value, nil
}

// Sweep removes every expired entry and returns how many were removed.
func (e *Expiring[T]) Sweep() int {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for key, ent := range e.entries {
		if expired(now, ent.expiresAt) {
			delete(e.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (e *Expiring[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}
