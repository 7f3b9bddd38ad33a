package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spacecats-dao/spacecats-sync/post"
	"github.com/tj/assert"
)

func newPost(i int) post.Post {
	return post.Post{
		Content:   fmt.Sprintf("post %d", i),
		Author:    "A1",
		Timestamp: time.Unix(1690000000+int64(i), 0),
	}
}

func TestWindow(t *testing.T) {
	t.Run("second sighting is a duplicate", func(t *testing.T) {
		w := New(DefaultCapacity)
		assert.False(t, w.RecordAndCheck(newPost(1)))
		assert.True(t, w.RecordAndCheck(newPost(1)))
		assert.Equal(t, 1, w.Len())
	})

	t.Run("bounded at capacity", func(t *testing.T) {
		w := New(25)
		for i := 0; i < 1000; i++ {
			assert.False(t, w.RecordAndCheck(newPost(i)))
		}
		assert.Equal(t, 25, w.Len())
		assert.Equal(t, 25, len(w.index))

		// the newest 25 are remembered, older ones were evicted
		assert.True(t, w.RecordAndCheck(newPost(999)))
		assert.True(t, w.RecordAndCheck(newPost(975)))
		assert.False(t, w.RecordAndCheck(newPost(974)))
	})

	t.Run("forget", func(t *testing.T) {
		w := New(3)
		w.RecordAndCheck(newPost(1))
		w.RecordAndCheck(newPost(2))
		w.RecordAndCheck(newPost(3))
		w.Forget(newPost(2))
		assert.Equal(t, 2, w.Len())

		// 4 fills the hole; 1 is still the oldest and is evicted by 5
		assert.False(t, w.RecordAndCheck(newPost(4)))
		assert.False(t, w.RecordAndCheck(newPost(5)))
		assert.False(t, w.RecordAndCheck(newPost(1)))
		assert.True(t, w.RecordAndCheck(newPost(5)))
	})

	t.Run("seed keeps the newest", func(t *testing.T) {
		w := New(2)
		w.Seed([]post.DurablePost{
			{ID: "c", Post: newPost(3)},
			{ID: "b", Post: newPost(2)},
			{ID: "a", Post: newPost(1)},
		})
		assert.Equal(t, 2, w.Len())
		assert.True(t, w.RecordAndCheck(newPost(3)))
		assert.True(t, w.RecordAndCheck(newPost(2)))
	})

	t.Run("concurrent callers agree on a single winner", func(t *testing.T) {
		w := New(DefaultCapacity)
		var (
			wg      sync.WaitGroup
			winners int64
		)
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !w.RecordAndCheck(newPost(42)) {
					atomic.AddInt64(&winners, 1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, winners)
	})
}
