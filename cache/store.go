// Package cache keeps the post history close at hand: a newest-first
// in-memory Timeline for readers, backed by a persisted Store keyed by
// durable id so restarts do not re-read the durable store.
package cache

import (
	"context"
	"sync"

	"github.com/spacecats-dao/spacecats-sync/post"
)

// Store is a persisted key-value store of durable posts.
type Store interface {
	// Get returns the post stored under id, or nil if there is none.
	Get(ctx context.Context, id string) (*post.DurablePost, error)
	Set(ctx context.Context, id string, p post.DurablePost) error
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]post.DurablePost
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]post.DurablePost{}}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*post.DurablePost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) Set(_ context.Context, id string, p post.DurablePost) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[id] = p
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
