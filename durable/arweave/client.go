// Package arweave is a durable.Store backed by an Arweave gateway. Writes are
// signed format 1 transactions carrying the payload inline; searches go
// through the gateway's GraphQL endpoint.
package arweave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/spacecats-dao/spacecats-sync/durable"
	"github.com/spacecats-dao/spacecats-sync/errkind"
)

type Config struct {
	// URL is the gateway base, e.g. http://localhost:1984
	URL     string
	Wallet  *Wallet
	Timeout time.Duration
	// AutoMine asks a local gateway to mine a block after each write so
	// the transaction becomes searchable.
	AutoMine bool
	// PageSize bounds each GraphQL search page.
	PageSize int
}

type Client struct {
	config Config
	logger zerolog.Logger
	http   *http.Client
}

var (
	_ durable.Store  = (*Client)(nil)
	_ durable.Funder = (*Client)(nil)
)

func New(config Config, logger zerolog.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = durable.DefaultTimeout
	}
	if config.PageSize == 0 {
		config.PageSize = 100
	}
	config.URL = strings.TrimRight(config.URL, "/")
	return &Client{
		config: config,
		logger: logger.With().Str("component", "arweave").Str("address", config.Wallet.Address()).Logger(),
		http:   &http.Client{Timeout: config.Timeout},
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.URL+path, body)
	if err != nil {
		return nil, errkind.NewPermanent(op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errkind.NewTransient(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.NewTransient(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errkind.NewTransient(op, fmt.Errorf("http status %v: %s", resp.StatusCode, truncate(raw)))
	case resp.StatusCode == http.StatusAccepted && method == http.MethodGet:
		// pending transactions have no data yet
		return nil, errkind.NewTransient(op, fmt.Errorf("transaction pending"))
	case resp.StatusCode >= 300:
		return nil, errkind.NewPermanent(op, fmt.Errorf("http status %v: %s", resp.StatusCode, truncate(raw)))
	}
	return raw, nil
}

func truncate(b []byte) []byte {
	const max = 256
	if len(b) > max {
		return b[:max]
	}
	return b
}

func (c *Client) Write(ctx context.Context, payload []byte, tags ...durable.Tag) (id string, err error) {
	anchor, err := c.do(ctx, "tx_anchor", http.MethodGet, "/tx_anchor", nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch anchor: %w", err)
	}
	reward, err := c.do(ctx, "price", http.MethodGet, "/price/"+strconv.Itoa(len(payload)), nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch price: %w", err)
	}

	tx := newTransaction(c.config.Wallet, strings.TrimSpace(string(anchor)), strings.TrimSpace(string(reward)), payload, tags)
	if err := tx.sign(c.config.Wallet); err != nil {
		return "", errkind.NewPermanent("sign", err)
	}

	body, err := json.Marshal(tx)
	if err != nil {
		return "", errkind.NewPermanent("encode tx", err)
	}
	if _, err := c.do(ctx, "post tx", http.MethodPost, "/tx", bytes.NewReader(body)); err != nil {
		return "", fmt.Errorf("failed to post transaction %v: %w", tx.ID, err)
	}

	if c.config.AutoMine {
		if err := c.Mine(ctx); err != nil {
			c.logger.Warn().Err(err).Str("id", tx.ID).Msg("unable to mine after write")
		}
	}
	return tx.ID, nil
}

func (c *Client) Read(ctx context.Context, id string) ([]byte, error) {
	raw, err := c.do(ctx, "read", http.MethodGet, "/tx/"+url.PathEscape(id)+"/data", nil)
	if err != nil {
		return nil, err
	}
	payload, err := b64.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, errkind.NewPermanent("read", fmt.Errorf("transaction %v data is not base64url: %w", id, err))
	}
	return payload, nil
}

const searchQuery = `query($tags: [TagFilter!], $first: Int, $after: String) {
  transactions(tags: $tags, first: $first, after: $after, sort: HEIGHT_ASC) {
    pageInfo { hasNextPage }
    edges { cursor node { id } }
  }
}`

type searchResponse struct {
	Data struct {
		Transactions struct {
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
			Edges []struct {
				Cursor string `json:"cursor"`
				Node   struct {
					ID string `json:"id"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"transactions"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Search pages through every transaction carrying tag, oldest block first.
func (c *Client) Search(ctx context.Context, tag durable.Tag) ([]string, error) {
	var (
		ids   []string
		after string
	)
	for {
		variables := map[string]interface{}{
			"tags":  []map[string]interface{}{{"name": tag.Name, "values": []string{tag.Value}}},
			"first": c.config.PageSize,
		}
		if after != "" {
			variables["after"] = after
		}
		body, err := json.Marshal(map[string]interface{}{"query": searchQuery, "variables": variables})
		if err != nil {
			return nil, errkind.NewPermanent("search", err)
		}

		raw, err := c.do(ctx, "search", http.MethodPost, "/graphql", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		var resp searchResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, errkind.NewPermanent("search", fmt.Errorf("unable to decode response: %w", err))
		}
		if len(resp.Errors) > 0 {
			return nil, errkind.NewPermanent("search", fmt.Errorf("graphql: %v", resp.Errors[0].Message))
		}

		edges := resp.Data.Transactions.Edges
		for _, edge := range edges {
			ids = append(ids, edge.Node.ID)
		}
		if !resp.Data.Transactions.PageInfo.HasNextPage || len(edges) == 0 {
			return ids, nil
		}
		after = edges[len(edges)-1].Cursor
	}
}

// Balance returns the wallet balance in winston.
func (c *Client) Balance(ctx context.Context) (uint64, error) {
	raw, err := c.do(ctx, "balance", http.MethodGet, "/wallet/"+c.config.Wallet.Address()+"/balance", nil)
	if err != nil {
		return 0, err
	}
	balance, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, errkind.NewPermanent("balance", fmt.Errorf("invalid balance %q: %w", truncate(raw), err))
	}
	return balance, nil
}

// Fund mints winston into the wallet. Only local gateways expose /mint.
func (c *Client) Fund(ctx context.Context, amount uint64) error {
	path := fmt.Sprintf("/mint/%v/%v", c.config.Wallet.Address(), amount)
	if _, err := c.do(ctx, "mint", http.MethodGet, path, nil); err != nil {
		return err
	}
	if c.config.AutoMine {
		return c.Mine(ctx)
	}
	return nil
}

// Mine asks a local gateway to produce a block.
func (c *Client) Mine(ctx context.Context) error {
	_, err := c.do(ctx, "mine", http.MethodGet, "/mine", nil)
	return err
}
