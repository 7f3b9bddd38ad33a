// Package solana implements ledger.Client against a Solana JSON-RPC node:
// account reads over HTTP, change notifications over the node's websocket,
// and garbage_collect transactions signed by the compaction authority.
package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/rs/zerolog"

	"github.com/spacecats-dao/spacecats-sync/errkind"
	"github.com/spacecats-dao/spacecats-sync/ledger"
)

// DefaultProgramID is the deployed posts program.
const DefaultProgramID = "76cyyWGTHNmt8ruNohBDYYv86q5HZcgvwRi8GayVLjUs"

type Config struct {
	RPCURL         string
	WSURL          string
	ProgramID      ledger.PublicKey
	StorageAccount ledger.PublicKey
	// Authority signs compaction transactions and pays their fees.
	Authority  ed25519.PrivateKey
	Commitment string
	// Timeout bounds each RPC call.
	Timeout time.Duration
	// Heartbeat is the websocket ping interval. A subscription is declared
	// dead when no pong arrives within two intervals.
	Heartbeat time.Duration
	// ConfirmPoll is the interval between signature status checks.
	ConfirmPoll time.Duration
}

func (c *Config) setDefaults() {
	if c.Commitment == "" {
		c.Commitment = "confirmed"
	}
	if c.Timeout == 0 {
		c.Timeout = 20 * time.Second
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = 30 * time.Second
	}
	if c.ConfirmPoll == 0 {
		c.ConfirmPoll = 500 * time.Millisecond
	}
}

type Client struct {
	config Config
	logger zerolog.Logger
	rpc    *rpcClient
}

var _ ledger.Client = (*Client)(nil)

func New(config Config, logger zerolog.Logger) *Client {
	config.setDefaults()
	return &Client{
		config: config,
		logger: logger.With().Str("component", "ledger").Str("account", config.StorageAccount.String()).Logger(),
		rpc: &rpcClient{
			url:  config.RPCURL,
			http: &http.Client{Timeout: config.Timeout},
		},
	}
}

func (c *Client) Authority() ledger.PublicKey {
	return PublicKeyOf(c.config.Authority)
}

type accountInfo struct {
	Value *struct {
		Data     []string `json:"data"`
		Lamports uint64   `json:"lamports"`
		Owner    string   `json:"owner"`
	} `json:"value"`
}

func (c *Client) getAccountData(ctx context.Context) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var info accountInfo
	err := c.rpc.call(ctx, "getAccountInfo", &info,
		c.config.StorageAccount.String(),
		map[string]string{"encoding": "base64", "commitment": c.config.Commitment},
	)
	if err != nil {
		return nil, false, err
	}
	if info.Value == nil {
		return nil, false, nil
	}
	data, err := decodeAccountData(info.Value.Data)
	if err != nil {
		return nil, true, err
	}
	return data, true, nil
}

func decodeAccountData(field []string) ([]byte, error) {
	if len(field) != 2 || field[1] != "base64" {
		return nil, errkind.NewPermanent("getAccountInfo", fmt.Errorf("unexpected account data encoding %v", field))
	}
	data, err := base64.StdEncoding.DecodeString(field[0])
	if err != nil {
		return nil, errkind.NewPermanent("getAccountInfo", fmt.Errorf("invalid account data: %w", err))
	}
	return data, nil
}

func (c *Client) FetchAccountState(ctx context.Context) (*ledger.AccountState, error) {
	data, found, err := c.getAccountData(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch storage account: %w", err)
	}
	if !found {
		return nil, errkind.NewPermanent("getAccountInfo", fmt.Errorf("storage account %v not found", c.config.StorageAccount))
	}
	state, err := ledger.DecodeAccount(data)
	if err != nil {
		return nil, errkind.NewPermanent("decode account", err)
	}
	return state, nil
}

func (c *Client) AccountExists(ctx context.Context) (ledger.Existence, error) {
	_, found, err := c.getAccountData(ctx)
	switch {
	case err != nil:
		return ledger.Unknown, err
	case found:
		return ledger.Exists, nil
	default:
		return ledger.NotFound, nil
	}
}

func (c *Client) latestBlockhash(ctx context.Context) ([32]byte, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	var hash [32]byte
	if err := c.rpc.call(ctx, "getLatestBlockhash", &result, map[string]string{"commitment": c.config.Commitment}); err != nil {
		return hash, err
	}
	raw := base58.Decode(result.Value.Blockhash)
	if len(raw) != len(hash) {
		return hash, errkind.NewPermanent("getLatestBlockhash", fmt.Errorf("invalid blockhash %q", result.Value.Blockhash))
	}
	copy(hash[:], raw)
	return hash, nil
}

// SubmitCompaction sends a garbage_collect transaction and waits for it to
// reach the configured commitment.
func (c *Client) SubmitCompaction(ctx context.Context) (signature string, err error) {
	defer func(begin time.Time) {
		c.logger.Info().
			Dur("elapsed", time.Since(begin)).
			Err(err).
			Str("signature", signature).
			Msg("submitted compaction")
	}(time.Now())

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch blockhash: %w", err)
	}

	msg := compactionMessage(c.Authority(), c.config.StorageAccount, c.config.ProgramID, blockhash)
	tx, sig := signTransaction(c.config.Authority, msg)

	if err := c.rpc.call(ctx, "sendTransaction", &signature,
		base64.StdEncoding.EncodeToString(tx),
		map[string]string{"encoding": "base64", "preflightCommitment": c.config.Commitment},
	); err != nil {
		return "", fmt.Errorf("failed to send compaction transaction: %w", err)
	}
	if signature == "" {
		signature = base58.Encode(sig)
	}

	if err := c.confirm(ctx, signature); err != nil {
		return signature, fmt.Errorf("compaction %v not confirmed: %w", signature, err)
	}
	return signature, nil
}

type signatureStatus struct {
	Err                any    `json:"err"`
	ConfirmationStatus string `json:"confirmationStatus"`
}

func (c *Client) confirm(ctx context.Context, signature string) error {
	ticker := time.NewTicker(c.config.ConfirmPoll)
	defer ticker.Stop()

	for {
		var result struct {
			Value []*signatureStatus `json:"value"`
		}
		if err := c.rpc.call(ctx, "getSignatureStatuses", &result, []string{signature}); err != nil {
			return err
		}
		if len(result.Value) == 1 && result.Value[0] != nil {
			status := result.Value[0]
			if status.Err != nil {
				return errkind.NewPermanent("getSignatureStatuses", fmt.Errorf("transaction failed: %v", status.Err))
			}
			if reached(status.ConfirmationStatus, c.config.Commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return errkind.NewTransient("confirm", ctx.Err())
		case <-ticker.C:
		}
	}
}

func reached(status, commitment string) bool {
	rank := map[string]int{"processed": 1, "confirmed": 2, "finalized": 3}
	return rank[status] >= rank[commitment] && rank[status] > 0
}

// Balance returns the lamports held by key.
func (c *Client) Balance(ctx context.Context, key ledger.PublicKey) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.rpc.call(ctx, "getBalance", &result, key.String(), map[string]string{"commitment": c.config.Commitment}); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// EnsureAirdrop tops the compaction authority up to lamports on networks
// that support airdrops. It is a no-op when the balance is already there.
func (c *Client) EnsureAirdrop(ctx context.Context, lamports uint64) error {
	authority := c.Authority()
	balance, err := c.Balance(ctx, authority)
	if err != nil {
		return fmt.Errorf("failed to read authority balance: %w", err)
	}
	logger := c.logger.With().Str("authority", authority.String()).Uint64("balance", balance).Logger()
	if balance >= lamports {
		logger.Debug().Msg("authority balance sufficient, skipping airdrop")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var signature string
	if err := c.rpc.call(ctx, "requestAirdrop", &signature, authority.String(), lamports-balance); err != nil {
		return fmt.Errorf("airdrop failed: %w", err)
	}
	if err := c.confirm(ctx, signature); err != nil {
		return fmt.Errorf("airdrop %v not confirmed: %w", signature, err)
	}
	logger.Info().Uint64("lamports", lamports-balance).Msg("airdropped compaction authority")
	return nil
}
