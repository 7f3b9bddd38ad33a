// Package post holds the post records that flow from the ledger into the
// durable store and the read cache.
package post

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// MaxContentLength is the size of a ledger slot's content buffer.
const MaxContentLength = 280

// Post is a decoded ledger entry.
type Post struct {
	Content   string
	Author    string
	Timestamp time.Time
}

// DurablePost is a Post that has been written to the durable store under ID.
type DurablePost struct {
	ID string
	Post
}

// wire is the JSON form shared by the durable store payload, the persisted
// cache and the read API. Timestamps are unix milliseconds.
type wire struct {
	ID        string `json:"id,omitempty"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
}

func (p Post) MarshalJSON() ([]byte, error) {
	return json.Marshal(wire{
		Content:   p.Content,
		Author:    p.Author,
		Timestamp: p.Timestamp.UnixMilli(),
	})
}

func (p *Post) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Post{
		Content:   w.Content,
		Author:    w.Author,
		Timestamp: time.UnixMilli(w.Timestamp).UTC(),
	}
	return nil
}

func (d DurablePost) MarshalJSON() ([]byte, error) {
	return json.Marshal(wire{
		ID:        d.ID,
		Content:   d.Content,
		Author:    d.Author,
		Timestamp: d.Timestamp.UnixMilli(),
	})
}

func (d *DurablePost) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = DurablePost{
		ID: w.ID,
		Post: Post{
			Content:   w.Content,
			Author:    w.Author,
			Timestamp: time.UnixMilli(w.Timestamp).UTC(),
		},
	}
	return nil
}

// Validate rejects posts that could not have come from a ledger slot.
func (p Post) Validate() error {
	if len(p.Content) > MaxContentLength {
		return fmt.Errorf("content is %d bytes, max %d", len(p.Content), MaxContentLength)
	}
	if p.Author == "" {
		return fmt.Errorf("missing author")
	}
	if p.Timestamp.IsZero() || p.Timestamp.Unix() == 0 {
		return fmt.Errorf("missing timestamp")
	}
	return nil
}

// Hash identifies a post by (author, content, timestamp). Fields are length
// prefixed so no two distinct posts share an encoding.
type Hash [sha256.Size]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (p Post) Hash() Hash {
	h := sha256.New()
	var buf [8]byte
	for _, field := range []string{p.Author, p.Content} {
		binary.BigEndian.PutUint64(buf[:], uint64(len(field)))
		h.Write(buf[:])
		h.Write([]byte(field))
	}
	binary.BigEndian.PutUint64(buf[:], uint64(p.Timestamp.UnixMilli()))
	h.Write(buf[:])

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
