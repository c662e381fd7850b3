package engine

import "sync"

// sessionLocks serializes message processing per conversation key, so a
// conversation has a single writer while unrelated conversations proceed
// in parallel. Entries are refcounted and dropped once idle.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionEntry
}

type sessionEntry struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionEntry)}
}

func (l *sessionLocks) acquire(key string) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &sessionEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *sessionLocks) release(key string) {
	l.mu.Lock()
	entry := l.locks[key]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
