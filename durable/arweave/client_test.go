package arweave

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spacecats-dao/spacecats-sync/durable"
	"github.com/spacecats-dao/spacecats-sync/errkind"
	"github.com/spacecats-dao/spacecats-sync/post"
	"github.com/tj/assert"
)

var (
	testWalletOnce sync.Once
	testWallet     *Wallet
)

func wallet(t *testing.T) *Wallet {
	testWalletOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testWallet = NewWallet(key)
	})
	return testWallet
}

// gateway is a minimal local Arweave node.
type gateway struct {
	t       *testing.T
	wallet  *Wallet
	mu      sync.Mutex
	txs     []*transaction
	balance uint64
	mined   int
	// pending holds transactions posted since the last mined block
	pending map[string]bool
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	path := req.URL.Path
	switch {
	case path == "/tx_anchor":
		w.Write([]byte(b64.EncodeToString([]byte("anchor-anchor-anchor-anchor-0001"))))

	case strings.HasPrefix(path, "/price/"):
		size, _ := strconv.Atoi(strings.TrimPrefix(path, "/price/"))
		w.Write([]byte(strconv.Itoa(1000 + size)))

	case path == "/tx" && req.Method == http.MethodPost:
		var tx transaction
		if err := json.NewDecoder(req.Body).Decode(&tx); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := tx.verify(g.wallet); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.txs = append(g.txs, &tx)
		if g.pending == nil {
			g.pending = map[string]bool{}
		}
		g.pending[tx.ID] = true

	case strings.HasPrefix(path, "/tx/") && strings.HasSuffix(path, "/data"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/tx/"), "/data")
		if g.pending[id] {
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte("Pending"))
			return
		}
		for _, tx := range g.txs {
			if tx.ID == id {
				w.Write([]byte(tx.Data))
				return
			}
		}
		http.NotFound(w, req)

	case path == "/graphql":
		var in struct {
			Variables struct {
				Tags []struct {
					Name   string   `json:"name"`
					Values []string `json:"values"`
				} `json:"tags"`
				First int    `json:"first"`
				After string `json:"after"`
			} `json:"variables"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter := in.Variables.Tags[0]
		var matched []string
		for _, tx := range g.txs {
			for _, tg := range tx.Tags {
				name, _ := b64.DecodeString(tg.Name)
				value, _ := b64.DecodeString(tg.Value)
				if string(name) == filter.Name && string(value) == filter.Values[0] {
					matched = append(matched, tx.ID)
				}
			}
		}
		start := 0
		if in.Variables.After != "" {
			start, _ = strconv.Atoi(in.Variables.After)
		}
		end := min(start+in.Variables.First, len(matched))
		type edge struct {
			Cursor string            `json:"cursor"`
			Node   map[string]string `json:"node"`
		}
		var edges []edge
		for i := start; i < end; i++ {
			edges = append(edges, edge{Cursor: strconv.Itoa(i + 1), Node: map[string]string{"id": matched[i]}})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"transactions": map[string]interface{}{
					"pageInfo": map[string]bool{"hasNextPage": end < len(matched)},
					"edges":    edges,
				},
			},
		})

	case strings.HasPrefix(path, "/wallet/"):
		w.Write([]byte(strconv.FormatUint(g.balance, 10)))

	case strings.HasPrefix(path, "/mint/"):
		parts := strings.Split(path, "/")
		amount, _ := strconv.ParseUint(parts[len(parts)-1], 10, 64)
		g.balance += amount
		w.Write([]byte(strconv.FormatUint(g.balance, 10)))

	case path == "/mine":
		g.mined++
		g.pending = nil
		w.Write([]byte(`{}`))

	default:
		http.NotFound(w, req)
	}
}

func newGateway(t *testing.T) (*gateway, *Client, func()) {
	g := &gateway{t: t, wallet: wallet(t)}
	server := httptest.NewServer(g)
	client := New(Config{
		URL:      server.URL + "/",
		Wallet:   g.wallet,
		Timeout:  5 * time.Second,
		AutoMine: true,
		PageSize: 2,
	}, zerolog.Nop())
	return g, client, server.Close
}

func TestWriteReadRoundTrip(t *testing.T) {
	g, client, done := newGateway(t)
	defer done()
	ctx := context.Background()

	payload := []byte(`{"content":"hello","author":"A1","timestamp":1690000000000}`)
	id, err := client.Write(ctx, payload, durable.DefaultTag)
	assert.Nil(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, g.mined)

	got, err := client.Read(ctx, id)
	assert.Nil(t, err)
	assert.Equal(t, payload, got)

	g.mu.Lock()
	tx := g.txs[0]
	g.mu.Unlock()
	assert.Equal(t, 1, tx.Format)
	assert.Equal(t, strconv.Itoa(1000+len(payload)), tx.Reward)
	assert.Equal(t, g.wallet.Owner(), tx.Owner)
}

func TestWriterThroughGateway(t *testing.T) {
	_, client, done := newGateway(t)
	defer done()
	ctx := context.Background()

	writer := durable.NewWriter(client, zerolog.Nop())
	p := post.Post{Content: "hello", Author: "A1", Timestamp: time.Unix(1690000000, 0).UTC()}

	id, err := writer.Write(ctx, p)
	assert.Nil(t, err)

	got, err := writer.Read(ctx, id)
	assert.Nil(t, err)
	assert.Equal(t, post.DurablePost{ID: id, Post: p}, got)
}

func TestSearchPaginates(t *testing.T) {
	_, client, done := newGateway(t)
	defer done()
	ctx := context.Background()

	var want []string
	for i := 0; i < 5; i++ {
		id, err := client.Write(ctx, []byte(strconv.Itoa(i)), durable.DefaultTag)
		assert.Nil(t, err)
		want = append(want, id)
	}
	_, err := client.Write(ctx, []byte("other"), durable.Tag{Name: "ApplicationTag", Value: "Other"})
	assert.Nil(t, err)

	ids, err := client.Search(ctx, durable.DefaultTag)
	assert.Nil(t, err)
	assert.Equal(t, want, ids)
}

func TestReadPendingUntilMined(t *testing.T) {
	g, client, done := newGateway(t)
	defer done()
	client.config.AutoMine = false
	ctx := context.Background()

	payload := []byte(`{"content":"hello","author":"A1","timestamp":1690000000000}`)
	id, err := client.Write(ctx, payload, durable.DefaultTag)
	assert.Nil(t, err)
	assert.Equal(t, 0, g.mined)

	_, err = client.Read(ctx, id)
	assert.True(t, errkind.IsTransient(err))

	assert.Nil(t, client.Mine(ctx))
	got, err := client.Read(ctx, id)
	assert.Nil(t, err)
	assert.Equal(t, payload, got)
}

func TestReadMissing(t *testing.T) {
	_, client, done := newGateway(t)
	defer done()

	_, err := client.Read(context.Background(), "nope")
	assert.Equal(t, errkind.Permanent, errkind.Of(err))
}

func TestGatewayUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(Config{URL: server.URL, Wallet: wallet(t)}, zerolog.Nop())
	_, err := client.Write(context.Background(), []byte("x"), durable.DefaultTag)
	assert.True(t, errkind.IsTransient(err))
}

func TestEnsureFunds(t *testing.T) {
	g, client, done := newGateway(t)
	defer done()
	ctx := context.Background()

	writer := durable.NewWriter(client, zerolog.Nop())
	assert.Nil(t, writer.EnsureFunds(ctx))
	assert.Equal(t, uint64(durable.DefaultFundAmount), g.balance)

	// above threshold, no further mint
	assert.Nil(t, writer.EnsureFunds(ctx))
	assert.Equal(t, uint64(durable.DefaultFundAmount), g.balance)
}

func TestWalletJSON(t *testing.T) {
	w := wallet(t)
	data, err := json.Marshal(w)
	assert.Nil(t, err)

	parsed, err := ParseWallet(data)
	assert.Nil(t, err)
	assert.Equal(t, w.Address(), parsed.Address())
	assert.Equal(t, w.Owner(), parsed.Owner())

	_, err = ParseWallet([]byte(`{"kty":"EC"}`))
	assert.NotNil(t, err)
}

func TestTransactionSignature(t *testing.T) {
	w := wallet(t)
	tx := newTransaction(w, b64.EncodeToString([]byte("anchor")), "42", []byte("payload"), []durable.Tag{durable.DefaultTag})
	assert.Nil(t, tx.sign(w))
	assert.Nil(t, tx.verify(w))

	tx.Reward = "43"
	assert.NotNil(t, tx.verify(w))
}
