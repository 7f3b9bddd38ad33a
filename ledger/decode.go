package ledger

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spacecats-dao/spacecats-sync/errkind"
	"github.com/spacecats-dao/spacecats-sync/post"
)

// Decode extracts the most recently written post from a state change. It
// returns false when the current slot is an empty placeholder, which is what
// a freshly compacted account looks like.
func Decode(state *AccountState) (post.Post, bool, error) {
	i := state.CurrentIndex()
	if i >= Capacity {
		return post.Post{}, false, errkind.NewPermanent("decode", fmt.Errorf("%w: %d", ErrIndexOutOfRange, state.Index))
	}
	p, ok := DecodeSlot(state.Slots[i])
	return p, ok, nil
}

// DecodeSlot converts a single slot, returning false for empty slots.
func DecodeSlot(slot Slot) (post.Post, bool) {
	if slot.Empty() {
		return post.Post{}, false
	}
	content := bytes.ReplaceAll(slot.Content[:], []byte{0}, nil)
	return post.Post{
		Content:   clamp(strings.ToValidUTF8(string(content), "�"), post.MaxContentLength),
		Author:    slot.Author.String(),
		Timestamp: time.Unix(slot.Timestamp, 0).UTC(),
	}, true
}

// clamp cuts s to at most n bytes without splitting a rune. Replacing
// invalid bytes can make content longer than the slot it came from.
func clamp(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// LivePosts returns every non-empty slot below the write index, oldest
// first.
func LivePosts(state *AccountState) []post.Post {
	end := state.Index
	if end > Capacity {
		end = Capacity
	}
	var posts []post.Post
	for i := uint64(0); i < end; i++ {
		if p, ok := DecodeSlot(state.Slots[i]); ok {
			posts = append(posts, p)
		}
	}
	return posts
}
