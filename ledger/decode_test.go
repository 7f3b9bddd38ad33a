package ledger

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/spacecats-dao/spacecats-sync/errkind"
	"github.com/tj/assert"
)

func slotOf(content string, author PublicKey, ts int64) Slot {
	s := Slot{Author: author, Timestamp: ts}
	copy(s.Content[:], content)
	return s
}

func TestDecode(t *testing.T) {
	author := PublicKey{1, 2, 3}

	t.Run("empty slots produce nothing", func(t *testing.T) {
		for _, index := range []uint64{0, 1, 250, Capacity} {
			var state AccountState
			state.Index = index
			_, ok, err := Decode(&state)
			assert.Nil(t, err)
			assert.False(t, ok)
		}
	})

	t.Run("index zero reads slot zero", func(t *testing.T) {
		var state AccountState
		state.Slots[0] = slotOf("first", author, 1690000000)
		p, ok, err := Decode(&state)
		assert.Nil(t, err)
		assert.True(t, ok)
		assert.Equal(t, "first", p.Content)
	})

	t.Run("index N reads slot N-1", func(t *testing.T) {
		var state AccountState
		state.Index = 3
		state.Slots[1] = slotOf("older", author, 1689999999)
		state.Slots[2] = slotOf("hello", author, 1690000000)
		p, ok, err := Decode(&state)
		assert.Nil(t, err)
		assert.True(t, ok)
		assert.Equal(t, "hello", p.Content)
		assert.Equal(t, author.String(), p.Author)
		assert.Equal(t, time.Unix(1690000000, 0).UTC(), p.Timestamp)
		assert.Equal(t, int64(1690000000000), p.Timestamp.UnixMilli())
	})

	t.Run("null padding is stripped", func(t *testing.T) {
		var state AccountState
		state.Index = 1
		state.Slots[0] = slotOf("hi there", author, 1)
		p, _, _ := Decode(&state)
		assert.Equal(t, 8, len(p.Content))
	})

	t.Run("index beyond capacity is a permanent error", func(t *testing.T) {
		var state AccountState
		state.Index = Capacity + 2
		_, _, err := Decode(&state)
		assert.Error(t, err)
		assert.Equal(t, errkind.Permanent, errkind.Of(err))
	})
}

func TestDecodeSlotInvalidUTF8(t *testing.T) {
	slot := Slot{Author: PublicKey{1}, Timestamp: 1690000000}
	copy(slot.Content[:], strings.Repeat("a\xff", ContentSize/2))

	p, ok := DecodeSlot(slot)
	assert.True(t, ok)
	assert.True(t, utf8.ValidString(p.Content))
	assert.True(t, len(p.Content) <= ContentSize)
	assert.Nil(t, p.Validate())
	assert.True(t, strings.HasPrefix(p.Content, "a�a�"))
}

func TestLivePosts(t *testing.T) {
	author := PublicKey{9}
	var state AccountState
	state.Index = 3
	state.Slots[0] = slotOf("a", author, 10)
	state.Slots[1] = Slot{}
	state.Slots[2] = slotOf("c", author, 30)
	state.Slots[3] = slotOf("stale", author, 40)

	posts := LivePosts(&state)
	assert.Equal(t, 2, len(posts))
	assert.Equal(t, "a", posts[0].Content)
	assert.Equal(t, "c", posts[1].Content)
}

func TestAccountCodec(t *testing.T) {
	var state AccountState
	state.Index = 7
	state.Slots[6] = slotOf("seven", PublicKey{7}, 1690000000)
	state.Slots[Capacity-1] = slotOf("last", PublicKey{8}, 42)
	state.CompactionAuthority = PublicKey{0xaa, 0xbb}

	data := EncodeAccount([8]byte{1, 2, 3, 4, 5, 6, 7, 8}, &state)
	assert.Equal(t, 160048, len(data))

	got, err := DecodeAccount(data)
	assert.Nil(t, err)
	assert.Equal(t, state, *got)

	_, err = DecodeAccount(data[:100])
	assert.True(t, errors.Is(err, ErrShortAccount))
}

func TestPublicKey(t *testing.T) {
	k := PublicKey{1, 2, 3, 4}
	parsed, err := ParsePublicKey(k.String())
	assert.Nil(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParsePublicKey("abc")
	assert.Error(t, err)
}
