package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/spacecats-dao/spacecats-sync/post"
	"github.com/tj/assert"
)

func durablePost(id string, sec int64) post.DurablePost {
	return post.DurablePost{
		ID:   id,
		Post: post.Post{Content: "post " + id, Author: "A1", Timestamp: time.Unix(sec, 0).UTC()},
	}
}

func TestTimeline(t *testing.T) {
	timeline := NewTimeline([]post.DurablePost{durablePost("b", 2), durablePost("a", 1)})

	before := timeline.Snapshot()
	timeline.Prepend(durablePost("c", 3))

	assert.Len(t, before, 2)
	assert.Equal(t, 3, timeline.Len())

	head, ok := timeline.Head()
	assert.True(t, ok)
	assert.Equal(t, "c", head.ID)

	var ids []string
	for _, p := range timeline.Snapshot() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)

	found, ok := timeline.Find("b")
	assert.True(t, ok)
	assert.Equal(t, "post b", found.Content)

	_, ok = timeline.Find("zzz")
	assert.False(t, ok)
}

func TestTimelineEmpty(t *testing.T) {
	timeline := NewTimeline(nil)
	_, ok := timeline.Head()
	assert.False(t, ok)
	assert.Equal(t, 0, timeline.Len())
}

func TestTimelineConcurrentReaders(t *testing.T) {
	timeline := NewTimeline(nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for j := 0; j < 1000; j++ {
				n := len(timeline.Snapshot())
				assert.True(t, n >= last)
				last = n
			}
		}()
	}
	for i := 0; i < 100; i++ {
		timeline.Prepend(durablePost("p", int64(i+1)))
	}
	wg.Wait()
	assert.Equal(t, 100, timeline.Len())
}
