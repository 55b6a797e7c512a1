package utils

import "sync"

// KeyedMutex provides per-key mutual exclusion.
//
// Coordinators use it to serialize all mutations for a given session id, which
// is what linearizes create/join/leave/end per session and makes termination
// exactly-once within a process. Entries are reference-counted and removed
// when the last holder unlocks, so the key space does not grow unbounded.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*kmEntry
}

type kmEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*kmEntry)}
}

// Lock blocks until the key is held and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &kmEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
