// Package wshub serves the realtime websocket channel. Each connected client
// gets every post event; a client that falls behind loses events rather than
// slowing anyone else down.
package wshub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/spacecats-dao/spacecats-sync/broadcast"
	"github.com/spacecats-dao/spacecats-sync/post"
)

const (
	DefaultSendBuffer   = 16
	DefaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	maxMessageSize      = 4096
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

type Hub struct {
	logger       zerolog.Logger
	upgrader     websocket.Upgrader
	sendBuffer   int
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

var _ broadcast.Sink = (*Hub)(nil)

func New(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "wshub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuffer:   DefaultSendBuffer,
		pingInterval: DefaultPingInterval,
		clients:      map[string]*client{},
	}
}

func (h *Hub) Name() string { return "websocket" }

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the connection until the client
// leaves or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   ulid.Make().String(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	logger := h.logger.With().Str("connection", c.id).Logger()
	logger.Debug().Msg("client connected")

	go h.writeLoop(c, logger)
	h.readLoop(c, logger)

	h.unregister(c)
	c.close()
	logger.Debug().Msg("client disconnected")
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
}

func (h *Hub) readLoop(c *client, logger zerolog.Logger) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})

	for {
		_, body, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := broadcast.ParseMessage(body)
		if err != nil {
			logger.Debug().Err(err).Msg("ignoring client message")
			continue
		}
		if msg.Type == broadcast.MsgPing {
			h.enqueue(c, broadcast.PongMessage())
		}
	}
}

func (h *Hub) writeLoop(c *client, logger zerolog.Logger) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug().Err(err).Msg("write failed")
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

// enqueue never blocks; a full buffer drops msg for that client.
func (h *Hub) enqueue(c *client, msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Send pushes p to every connected client.
func (h *Hub) Send(_ context.Context, p post.DurablePost) error {
	msg, err := broadcast.PostMessage(p)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var dropped int
	for _, c := range h.clients {
		if !h.enqueue(c, msg) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn().Int("dropped", dropped).Str("id", p.ID).Msg("slow clients missed post")
	}
	return nil
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}
	return nil
}
