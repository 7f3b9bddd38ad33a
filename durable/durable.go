// Package durable writes posts to a permanent, content-addressed store and
// reads them back by id.
package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/spacecats-dao/spacecats-sync/errkind"
	"github.com/spacecats-dao/spacecats-sync/post"
)

// Tag is a name/value label attached to a stored payload and used to find
// it again.
type Tag struct {
	Name  string
	Value string
}

func (t Tag) String() string {
	return t.Name + "=" + t.Value
}

// DefaultTag marks every post this service writes.
var DefaultTag = Tag{Name: "ApplicationTag", Value: "SpaceCatsDao"}

// Store is a content-addressed store. Payloads are signed by the identity
// the store was built with.
type Store interface {
	// Search returns the ids of every payload carrying tag.
	Search(ctx context.Context, tag Tag) ([]string, error)
	// Read returns the payload stored under id.
	Read(ctx context.Context, id string) ([]byte, error)
	// Write stores payload with tags and returns its id.
	Write(ctx context.Context, payload []byte, tags ...Tag) (string, error)
}

// Funder is implemented by stores whose writes cost a balance that can be
// topped up, such as local test gateways.
type Funder interface {
	Balance(ctx context.Context) (uint64, error)
	Fund(ctx context.Context, amount uint64) error
}

const (
	DefaultFundThreshold = 10
	DefaultFundAmount    = 1000
	DefaultTimeout       = 20 * time.Second
)

type Writer struct {
	Store  Store
	Tag    Tag
	Logger zerolog.Logger
	// FundThreshold and FundAmount drive EnsureFunds.
	FundThreshold uint64
	FundAmount    uint64
	Timeout       time.Duration
}

func NewWriter(store Store, logger zerolog.Logger) *Writer {
	return &Writer{
		Store:         store,
		Tag:           DefaultTag,
		Logger:        logger.With().Str("component", "durable").Logger(),
		FundThreshold: DefaultFundThreshold,
		FundAmount:    DefaultFundAmount,
		Timeout:       DefaultTimeout,
	}
}

func (w *Writer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.Timeout)
}

// Write stores p under the writer's tag and returns the new id. It does not
// dedup or retry.
func (w *Writer) Write(ctx context.Context, p post.Post) (id string, err error) {
	defer func(begin time.Time) {
		w.Logger.Debug().
			Dur("elapsed", time.Since(begin)).
			Err(err).
			Str("id", id).
			Msg("durable write")
	}(time.Now())

	if err := p.Validate(); err != nil {
		return "", errkind.NewPermanent("validate post", err)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return "", errkind.NewPermanent("encode post", err)
	}

	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	id, err = w.Store.Write(ctx, payload, w.Tag)
	if err != nil {
		return "", fmt.Errorf("failed to write post: %w", err)
	}
	return id, nil
}

// Read fetches id and decodes it into its canonical stored form.
func (w *Writer) Read(ctx context.Context, id string) (post.DurablePost, error) {
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	payload, err := w.Store.Read(ctx, id)
	if err != nil {
		return post.DurablePost{}, fmt.Errorf("failed to read post %v: %w", id, err)
	}
	return Decode(id, payload)
}

// Search lists the ids of every post written under the writer's tag.
func (w *Writer) Search(ctx context.Context) ([]string, error) {
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	ids, err := w.Store.Search(ctx, w.Tag)
	if err != nil {
		return nil, fmt.Errorf("failed to search for %v: %w", w.Tag, err)
	}
	return ids, nil
}

// Decode parses a stored payload. The id is taken from the store, never from
// the payload.
func Decode(id string, payload []byte) (post.DurablePost, error) {
	var p post.Post
	if err := json.Unmarshal(payload, &p); err != nil {
		return post.DurablePost{}, errkind.NewPermanent("decode post", fmt.Errorf("post %v: %w", id, err))
	}
	return post.DurablePost{ID: id, Post: p}, nil
}

// EnsureFunds tops the store balance up by FundAmount when it is below
// FundThreshold. Stores that cannot be funded are left alone.
func (w *Writer) EnsureFunds(ctx context.Context) error {
	funder, ok := w.Store.(Funder)
	if !ok {
		return nil
	}

	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	balance, err := funder.Balance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store balance: %w", err)
	}
	if balance >= w.FundThreshold {
		w.Logger.Info().Uint64("balance", balance).Msg("store balance")
		return nil
	}
	if err := funder.Fund(ctx, w.FundAmount); err != nil {
		return fmt.Errorf("failed to fund store: %w", err)
	}

	balance, err = funder.Balance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store balance: %w", err)
	}
	w.Logger.Info().Uint64("balance", balance).Uint64("funded", w.FundAmount).Msg("funded store")
	return nil
}
