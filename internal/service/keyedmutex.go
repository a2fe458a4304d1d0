package service

import "sync"

// keyedMutex provides per-key mutual exclusion. The orchestrator holds a
// driver's lock across the whole fetch-check-persist sequence so two
// concurrent creates for the same driver cannot both observe a
// conflict-free schedule before either write lands.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key and returns its unlock function.
// An empty key is a no-op: unassigned runs have no resource to serialize on.
func (k *keyedMutex) Lock(key string) func() {
	if key == "" {
		return func() {}
	}

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
