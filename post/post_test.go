package post

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tj/assert"
)

func TestHash(t *testing.T) {
	ts := time.Unix(1690000000, 0)
	a := Post{Content: "hello", Author: "A1", Timestamp: ts}

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, a.Hash(), Post{Content: "hello", Author: "A1", Timestamp: ts.UTC()}.Hash())
	})

	t.Run("field boundaries matter", func(t *testing.T) {
		b := Post{Content: "1hello", Author: "A", Timestamp: ts}
		assert.NotEqual(t, a.Hash(), b.Hash())
	})

	t.Run("timestamp matters", func(t *testing.T) {
		b := Post{Content: "hello", Author: "A1", Timestamp: ts.Add(time.Second)}
		assert.NotEqual(t, a.Hash(), b.Hash())
	})
}

func TestDurablePostJSON(t *testing.T) {
	d := DurablePost{
		ID:   "abc123",
		Post: Post{Content: "hello", Author: "A1", Timestamp: time.Unix(1690000000, 0).UTC()},
	}

	data, err := json.Marshal(d)
	assert.Nil(t, err)
	assert.Equal(t, `{"id":"abc123","content":"hello","author":"A1","timestamp":1690000000000}`, string(data))

	// the durable store payload carries no id
	data, err = json.Marshal(d.Post)
	assert.Nil(t, err)
	assert.Equal(t, `{"content":"hello","author":"A1","timestamp":1690000000000}`, string(data))

	var got DurablePost
	assert.Nil(t, json.Unmarshal([]byte(`{"id":"x","content":"hi","author":"B","timestamp":1690000000000}`), &got))
	assert.Equal(t, "x", got.ID)
	assert.Equal(t, "2023-07-22T04:26:40Z", got.Timestamp.Format(time.RFC3339))
}

func TestValidate(t *testing.T) {
	ts := time.Unix(1690000000, 0)
	assert.Nil(t, Post{Content: "ok", Author: "A", Timestamp: ts}.Validate())
	assert.Error(t, Post{Content: strings.Repeat("x", 281), Author: "A", Timestamp: ts}.Validate())
	assert.Error(t, Post{Content: "ok", Timestamp: ts}.Validate())
	assert.Error(t, Post{Content: "ok", Author: "A"}.Validate())
}
