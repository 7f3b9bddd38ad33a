package durable

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spacecats-dao/spacecats-sync/errkind"
	"github.com/spacecats-dao/spacecats-sync/post"
	"github.com/tj/assert"
)

func TestWriterRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	writer := NewWriter(store, zerolog.Nop())

	posts := []post.Post{
		{Content: "hello", Author: "A1", Timestamp: time.Unix(1690000000, 0).UTC()},
		{Content: "héllo wörld 🐈", Author: "A2", Timestamp: time.Unix(1690000001, 0).UTC()},
		{Content: "", Author: "A3", Timestamp: time.Unix(1, 0).UTC()},
	}
	for _, p := range posts {
		id, err := writer.Write(ctx, p)
		assert.Nil(t, err)

		got, err := writer.Read(ctx, id)
		assert.Nil(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, p, got.Post)
	}

	ids, err := writer.Search(ctx)
	assert.Nil(t, err)
	assert.Len(t, ids, len(posts))
}

func TestWriterRejectsInvalid(t *testing.T) {
	writer := NewWriter(NewMemoryStore(), zerolog.Nop())
	_, err := writer.Write(context.Background(), post.Post{Content: "x"})
	assert.Equal(t, errkind.Permanent, errkind.Of(err))
}

func TestDecode(t *testing.T) {
	got, err := Decode("abc123", []byte(`{"content":"hello","author":"A1","timestamp":1690000000000}`))
	assert.Nil(t, err)
	assert.Equal(t, "abc123", got.ID)
	assert.Equal(t, "hello", got.Content)

	_, err = Decode("abc123", []byte(`not json`))
	assert.Equal(t, errkind.Permanent, errkind.Of(err))
}

type fundedStore struct {
	*MemoryStore
	balance uint64
	funded  []uint64
	err     error
}

func (f *fundedStore) Balance(context.Context) (uint64, error) { return f.balance, f.err }
func (f *fundedStore) Fund(_ context.Context, amount uint64) error {
	f.funded = append(f.funded, amount)
	f.balance += amount
	return nil
}

func TestEnsureFunds(t *testing.T) {
	ctx := context.Background()

	t.Run("below threshold", func(t *testing.T) {
		store := &fundedStore{MemoryStore: NewMemoryStore(), balance: 9}
		assert.Nil(t, NewWriter(store, zerolog.Nop()).EnsureFunds(ctx))
		assert.Equal(t, []uint64{DefaultFundAmount}, store.funded)
	})

	t.Run("at threshold", func(t *testing.T) {
		store := &fundedStore{MemoryStore: NewMemoryStore(), balance: 10}
		assert.Nil(t, NewWriter(store, zerolog.Nop()).EnsureFunds(ctx))
		assert.Empty(t, store.funded)
	})

	t.Run("balance error", func(t *testing.T) {
		store := &fundedStore{MemoryStore: NewMemoryStore(), err: errors.New("boom")}
		assert.NotNil(t, NewWriter(store, zerolog.Nop()).EnsureFunds(ctx))
	})

	t.Run("store without funding", func(t *testing.T) {
		assert.Nil(t, NewWriter(NewMemoryStore(), zerolog.Nop()).EnsureFunds(ctx))
	})
}
