// Package dedup remembers the most recently written posts so a ledger
// notification that is delivered twice is only written once.
package dedup

import (
	"sync"

	"github.com/spacecats-dao/spacecats-sync/post"
)

// DefaultCapacity is the number of recent post hashes retained.
const DefaultCapacity = 25

// Window is a fixed-capacity recency set of post hashes. Once full, each
// insert evicts the oldest entry.
type Window struct {
	mu    sync.Mutex
	ring  []post.Hash
	next  int // ring position of the next insert
	size  int
	index map[post.Hash]struct{}
}

func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		ring:  make([]post.Hash, capacity),
		index: make(map[post.Hash]struct{}, capacity),
	}
}

// RecordAndCheck reports whether p was already recorded. If it was not, p
// is recorded as the newest entry. Check and insert happen under one lock.
func (w *Window) RecordAndCheck(p post.Post) (isDuplicate bool) {
	h := p.Hash()

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.index[h]; ok {
		return true
	}
	w.insert(h)
	return false
}

func (w *Window) insert(h post.Hash) {
	if w.size == len(w.ring) {
		delete(w.index, w.ring[w.next])
	} else {
		w.size++
	}
	w.ring[w.next] = h
	w.index[h] = struct{}{}
	w.next = (w.next + 1) % len(w.ring)
}

// Forget removes p so a later notification for it is processed again.
func (w *Window) Forget(p post.Post) {
	h := p.Hash()

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.index[h]; !ok {
		return
	}
	// rebuild the ring without h, preserving age order
	kept := make([]post.Hash, 0, w.size)
	for i := 0; i < w.size; i++ {
		pos := (w.next - w.size + i + 2*len(w.ring)) % len(w.ring)
		if w.ring[pos] != h {
			kept = append(kept, w.ring[pos])
		}
	}
	w.reset()
	for _, k := range kept {
		w.insert(k)
	}
}

// Seed records posts oldest first, so that given a newest-first list the
// newest posts survive eviction.
func (w *Window) Seed(newestFirst []post.DurablePost) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(newestFirst)
	if n > len(w.ring) {
		n = len(w.ring)
	}
	for i := n - 1; i >= 0; i-- {
		h := newestFirst[i].Hash()
		if _, ok := w.index[h]; !ok {
			w.insert(h)
		}
	}
}

func (w *Window) reset() {
	w.next = 0
	w.size = 0
	clear(w.index)
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

func (w *Window) Capacity() int {
	return len(w.ring)
}
