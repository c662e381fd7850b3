package conversation

import (
	"context"
	"sync"
)

// Store loads and saves conversation contexts. Load returns a fresh empty
// context when none exists for the key; absence is not an error.
type Store interface {
	Load(ctx context.Context, key Key) (*Context, error)
	Save(ctx context.Context, conv *Context) error
}

// MemoryStore is an in-process Store for tests and single-node runs.
type MemoryStore struct {
	mu       sync.Mutex
	contexts map[string]*Context
	capacity int
}

// NewMemoryStore creates a memory-backed store whose contexts keep at most
// capacity turns.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		contexts: make(map[string]*Context),
		capacity: capacity,
	}
}

// Load returns the stored context for key, or a fresh empty one.
func (s *MemoryStore) Load(ctx context.Context, key Key) (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.contexts[key.String()]; ok {
		return conv, nil
	}
	return NewContext(key, s.capacity), nil
}

// Save stores the context.
func (s *MemoryStore) Save(ctx context.Context, conv *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[conv.Key.String()] = conv
	return nil
}
