package availability

import "sync"

// dayLocks serializes work per ProviderDay key. Entries are refcounted so
// the map does not grow with every provider/day ever touched; different
// keys never contend.
type dayLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newDayLocks() *dayLocks {
	return &dayLocks{locks: make(map[string]*lockEntry)}
}

// acquire blocks until the key's lock is held.
func (l *dayLocks) acquire(key string) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &lockEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// release unlocks the key and drops the entry once nobody holds or waits
// on it.
func (l *dayLocks) release(key string) {
	l.mu.Lock()
	entry := l.locks[key]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
