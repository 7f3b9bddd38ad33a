package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/spacecats-dao/spacecats-sync/post"
)

// Realtime message types.
const (
	MsgPost = "post"
	MsgPing = "ping"
	MsgPong = "pong"
)

// Message is the envelope sent to realtime clients.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseMessage parses a client message.
func ParseMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("invalid realtime message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	return &msg, nil
}

// PostMessage returns the "post" event for p.
func PostMessage(p post.DurablePost) ([]byte, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshalling post: %w", err)
	}
	b, err := json.Marshal(Message{Type: MsgPost, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshalling message: %w", err)
	}
	return b, nil
}

// PongMessage answers a client ping.
func PongMessage() []byte {
	b, _ := json.Marshal(Message{Type: MsgPong})
	return b
}
