package durable

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/spacecats-dao/spacecats-sync/errkind"
)

// MemoryStore is an in-process Store for tests and dry runs. Ids are the
// base64url sha256 of the payload and an insertion counter.
type MemoryStore struct {
	mu    sync.Mutex
	order []string
	data  map[string][]byte
	tags  map[string][]Tag
	reads int
	seq   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: map[string][]byte{},
		tags: map[string][]Tag{},
	}
}

func (m *MemoryStore) Search(_ context.Context, tag Tag) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, id := range m.order {
		for _, t := range m.tags[id] {
			if t == tag {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func (m *MemoryStore) Read(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	payload, ok := m.data[id]
	if !ok {
		return nil, errkind.NewPermanent("read", fmt.Errorf("no payload with id %v", id))
	}
	return append([]byte(nil), payload...), nil
}

func (m *MemoryStore) Write(_ context.Context, payload []byte, tags ...Tag) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	sum := sha256.Sum256(append([]byte(fmt.Sprintf("%d:", m.seq)), payload...))
	id := base64.RawURLEncoding.EncodeToString(sum[:])

	m.order = append(m.order, id)
	m.data[id] = append([]byte(nil), payload...)
	m.tags[id] = append([]Tag(nil), tags...)
	return id, nil
}

// Reads reports how many Read calls have been served.
func (m *MemoryStore) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}
