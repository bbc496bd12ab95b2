package alert

import "sync"

// keyedLocks is an arena of per-key mutexes with refcounted entries. Each
// user's active-alert slot is serialized behind its own lock so concurrent
// detections for one user are atomic while unrelated users proceed in
// parallel; a single global lock across users is deliberately avoided.
//
// Entries are created on first use and removed when the last holder releases
// them, keeping the arena bounded by the number of users currently in flight.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key, creating it on demand, and returns the
// corresponding unlock function.
func (k *keyedLocks) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size reports the number of live entries. Test hook.
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
