package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/spacecats-dao/spacecats-sync/errkind"
	"github.com/spacecats-dao/spacecats-sync/ledger"
)

type notification struct {
	Method string `json:"method"`
	Params struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Value *struct {
				Data []string `json:"data"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

type subscription struct {
	conn      *websocket.Conn
	logger    zerolog.Logger
	id        uint64
	heartbeat time.Duration
	updates   chan *ledger.AccountState
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	err       error
}

// Subscribe opens an accountSubscribe stream for the storage account. The
// returned subscription pings the node every heartbeat interval and fails
// when the connection goes quiet for two intervals.
func (c *Client) Subscribe(ctx context.Context) (ledger.Subscription, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.config.Timeout}
	conn, _, err := dialer.DialContext(ctx, c.config.WSURL, nil)
	if err != nil {
		return nil, errkind.NewTransient("accountSubscribe", fmt.Errorf("failed to dial %v: %w", c.config.WSURL, err))
	}

	id, err := c.openSubscription(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	s := &subscription{
		conn:      conn,
		logger:    c.logger.With().Uint64("subscription", id).Logger(),
		id:        id,
		heartbeat: c.config.Heartbeat,
		updates:   make(chan *ledger.AccountState, 16),
		done:      make(chan struct{}),
	}
	conn.SetReadDeadline(time.Now().Add(2 * s.heartbeat))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.heartbeat))
	})

	go s.readLoop(ctx)
	go s.pingLoop()

	s.logger.Info().Msg("subscribed to storage account")
	return s, nil
}

func (c *Client) openSubscription(conn *websocket.Conn) (uint64, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.rpc.nextID.Add(1),
		Method:  "accountSubscribe",
		Params: []interface{}{
			c.config.StorageAccount.String(),
			map[string]string{"encoding": "base64", "commitment": c.config.Commitment},
		},
	}
	conn.SetWriteDeadline(time.Now().Add(c.config.Timeout))
	if err := conn.WriteJSON(req); err != nil {
		return 0, errkind.NewTransient("accountSubscribe", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.config.Timeout))
	var resp rpcResponse
	if err := conn.ReadJSON(&resp); err != nil {
		return 0, errkind.NewTransient("accountSubscribe", fmt.Errorf("no subscription confirmation: %w", err))
	}
	if resp.Error != nil {
		return 0, errkind.NewPermanent("accountSubscribe", resp.Error)
	}
	var id uint64
	if err := json.Unmarshal(resp.Result, &id); err != nil {
		return 0, errkind.NewPermanent("accountSubscribe", fmt.Errorf("unexpected subscription id %s: %w", resp.Result, err))
	}
	return id, nil
}

func (s *subscription) Updates() <-chan *ledger.AccountState { return s.updates }
func (s *subscription) Done() <-chan struct{}                { return s.done }

func (s *subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteJSON(rpcRequest{
			JSONRPC: "2.0",
			ID:      s.id,
			Method:  "accountUnsubscribe",
			Params:  []interface{}{s.id},
		})
		s.writeMu.Unlock()
		s.conn.Close()
		close(s.done)
	})
	return nil
}

// stop records the first failure and releases the connection.
func (s *subscription) stop(err error) {
	s.closeOnce.Do(func() {
		s.err = err
		s.conn.Close()
		close(s.done)
	})
}

func (s *subscription) pingLoop() {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.heartbeat))
			s.writeMu.Unlock()
			if err != nil {
				s.stop(errkind.NewTransient("ping", err))
				return
			}
		}
	}
}

func (s *subscription) readLoop(ctx context.Context) {
	defer close(s.updates)

	for {
		var n notification
		if err := s.conn.ReadJSON(&n); err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn().Err(err).Msg("subscription read failed")
			}
			s.stop(errkind.NewTransient("accountNotification", err))
			return
		}
		if n.Method != "accountNotification" || n.Params.Subscription != s.id {
			continue
		}
		if n.Params.Result.Value == nil {
			s.stop(errkind.NewPermanent("accountNotification", fmt.Errorf("storage account was closed")))
			return
		}

		data, err := decodeAccountData(n.Params.Result.Value.Data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping undecodable notification")
			continue
		}
		state, err := ledger.DecodeAccount(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping malformed account state")
			continue
		}

		select {
		case s.updates <- state:
		case <-s.done:
			return
		case <-ctx.Done():
			s.stop(ctx.Err())
			return
		}
	}
}
