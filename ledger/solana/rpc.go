package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/spacecats-dao/spacecats-sync/errkind"
)

// RPCError is an error object returned by the JSON-RPC endpoint.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %v", e.Code, e.Message)
}

// node-side conditions that clear up on their own
const (
	codeBlockhashNotFound = -32002
	codeNodeUnhealthy     = -32005
	codeSlotSkipped       = -32007
)

func (e *RPCError) transient() bool {
	switch e.Code {
	case codeBlockhashNotFound, codeNodeUnhealthy, codeSlotSkipped:
		return true
	}
	return false
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type rpcClient struct {
	url    string
	http   *http.Client
	nextID atomic.Uint64
}

func (c *rpcClient) call(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errkind.NewPermanent(method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errkind.NewPermanent(method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errkind.NewTransient(method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errkind.NewTransient(method, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return errkind.NewTransient(method, fmt.Errorf("http status %v: %s", resp.StatusCode, truncate(raw)))
	}
	if resp.StatusCode != http.StatusOK {
		return errkind.NewPermanent(method, fmt.Errorf("http status %v: %s", resp.StatusCode, truncate(raw)))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return errkind.NewPermanent(method, fmt.Errorf("unable to decode response: %w", err))
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.transient() {
			return errkind.NewTransient(method, rpcResp.Error)
		}
		return errkind.NewPermanent(method, rpcResp.Error)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return errkind.NewPermanent(method, fmt.Errorf("unable to decode result: %w", err))
	}
	return nil
}

func truncate(b []byte) []byte {
	const max = 256
	if len(b) > max {
		return b[:max]
	}
	return b
}
