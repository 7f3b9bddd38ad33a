package cache

import (
	"sync"
	"sync/atomic"

	"github.com/spacecats-dao/spacecats-sync/post"
)

// Timeline is the newest-first post history served to readers. Readers get
// an immutable snapshot and never block on the writer.
type Timeline struct {
	mu       sync.Mutex // serializes writers
	snapshot atomic.Pointer[[]post.DurablePost]
}

func NewTimeline(initial []post.DurablePost) *Timeline {
	t := &Timeline{}
	t.Replace(initial)
	return t
}

// Replace swaps in a whole new history, newest first.
func (t *Timeline) Replace(posts []post.DurablePost) {
	list := append([]post.DurablePost(nil), posts...)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshot.Store(&list)
}

// Prepend makes p the newest post. Existing entries keep their order.
func (t *Timeline) Prepend(p post.DurablePost) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.Snapshot()
	list := make([]post.DurablePost, 0, len(current)+1)
	list = append(list, p)
	list = append(list, current...)
	t.snapshot.Store(&list)
}

// Snapshot returns the current history. Callers must not modify it.
func (t *Timeline) Snapshot() []post.DurablePost {
	if list := t.snapshot.Load(); list != nil {
		return *list
	}
	return nil
}

func (t *Timeline) Len() int {
	return len(t.Snapshot())
}

// Head returns the newest post.
func (t *Timeline) Head() (post.DurablePost, bool) {
	list := t.Snapshot()
	if len(list) == 0 {
		return post.DurablePost{}, false
	}
	return list[0], true
}

// Find returns the post with the given durable id.
func (t *Timeline) Find(id string) (post.DurablePost, bool) {
	for _, p := range t.Snapshot() {
		if p.ID == id {
			return p, true
		}
	}
	return post.DurablePost{}, false
}
