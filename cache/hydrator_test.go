package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spacecats-dao/spacecats-sync/durable"
	"github.com/spacecats-dao/spacecats-sync/post"
	"github.com/tj/assert"
)

type failingStore struct {
	*MemoryStore
}

func (failingStore) Set(context.Context, string, post.DurablePost) error {
	return errors.New("disk full")
}

func seedDurable(t *testing.T, posts ...post.Post) (*durable.MemoryStore, *durable.Writer, []string) {
	store := durable.NewMemoryStore()
	writer := durable.NewWriter(store, zerolog.Nop())
	var ids []string
	for _, p := range posts {
		id, err := writer.Write(context.Background(), p)
		assert.Nil(t, err)
		ids = append(ids, id)
	}
	return store, writer, ids
}

func TestHydrate(t *testing.T) {
	ctx := context.Background()
	durableStore, writer, ids := seedDurable(t,
		post.Post{Content: "first", Author: "A1", Timestamp: time.Unix(100, 0).UTC()},
		post.Post{Content: "third", Author: "A1", Timestamp: time.Unix(300, 0).UTC()},
		post.Post{Content: "second", Author: "A2", Timestamp: time.Unix(200, 0).UTC()},
	)

	persisted := NewMemoryStore()
	hydrator := NewHydrator(writer, persisted, zerolog.Nop())

	posts, err := hydrator.Hydrate(ctx)
	assert.Nil(t, err)
	assert.Len(t, posts, 3)
	assert.Equal(t, "third", posts[0].Content)
	assert.Equal(t, "second", posts[1].Content)
	assert.Equal(t, "first", posts[2].Content)
	assert.Equal(t, ids[1], posts[0].ID)
	assert.Equal(t, 3, durableStore.Reads())
	assert.Equal(t, 3, persisted.Len())

	t.Run("second run reads nothing from the durable store", func(t *testing.T) {
		again, err := hydrator.Hydrate(ctx)
		assert.Nil(t, err)
		assert.Equal(t, posts, again)
		assert.Equal(t, 3, durableStore.Reads())
	})
}

func TestHydrateEqualTimestamps(t *testing.T) {
	ts := time.Unix(100, 0).UTC()
	_, writer, ids := seedDurable(t,
		post.Post{Content: "a", Author: "A1", Timestamp: ts},
		post.Post{Content: "b", Author: "A1", Timestamp: ts},
	)

	posts, err := NewHydrator(writer, NewMemoryStore(), zerolog.Nop()).Hydrate(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, ids[1], posts[0].ID)
	assert.Equal(t, ids[0], posts[1].ID)
}

func TestHydrateStoreFailure(t *testing.T) {
	_, writer, _ := seedDurable(t, post.Post{Content: "a", Author: "A1", Timestamp: time.Unix(100, 0).UTC()})

	_, err := NewHydrator(writer, failingStore{NewMemoryStore()}, zerolog.Nop()).Hydrate(context.Background())
	assert.NotNil(t, err)
}

func TestHydrateEmpty(t *testing.T) {
	_, writer, _ := seedDurable(t)
	posts, err := NewHydrator(writer, NewMemoryStore(), zerolog.Nop()).Hydrate(context.Background())
	assert.Nil(t, err)
	assert.Empty(t, posts)
}

func TestReportDuplicates(t *testing.T) {
	ts := time.Unix(100, 0).UTC()
	posts := []post.DurablePost{
		{ID: "1", Post: post.Post{Content: "a", Author: "A1", Timestamp: ts}},
		{ID: "2", Post: post.Post{Content: "a", Author: "A1", Timestamp: ts}},
		{ID: "3", Post: post.Post{Content: "b", Author: "A1", Timestamp: ts}},
	}
	before := append([]post.DurablePost(nil), posts...)

	assert.Equal(t, 1, ReportDuplicates(zerolog.Nop(), posts))
	assert.Equal(t, before, posts)
	assert.Equal(t, 0, ReportDuplicates(zerolog.Nop(), nil))
}
