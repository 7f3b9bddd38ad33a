package cache

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/spacecats-dao/spacecats-sync/post"
)

// Source lists and reads posts from the durable store.
type Source interface {
	Search(ctx context.Context) ([]string, error)
	Read(ctx context.Context, id string) (post.DurablePost, error)
}

const DefaultConcurrency = 8

// Hydrator rebuilds the post history at startup. Posts already in the
// persisted store are never read from the durable store again.
type Hydrator struct {
	Source      Source
	Store       Store
	Logger      zerolog.Logger
	Concurrency int
}

func NewHydrator(source Source, store Store, logger zerolog.Logger) *Hydrator {
	return &Hydrator{
		Source:      source,
		Store:       store,
		Logger:      logger.With().Str("component", "hydrator").Logger(),
		Concurrency: DefaultConcurrency,
	}
}

// Hydrate returns every durable post, newest first. Posts with equal
// timestamps keep the order the durable store listed them in.
func (h *Hydrator) Hydrate(ctx context.Context) ([]post.DurablePost, error) {
	begin := time.Now()

	ids, err := h.Source.Search(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list durable posts: %w", err)
	}

	var fetched atomic.Int64
	posts := make([]post.DurablePost, len(ids))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(max(h.Concurrency, 1))
	for i, id := range ids {
		i, id := i, id
		group.Go(func() error {
			cached, err := h.Store.Get(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to read cached post %v: %w", id, err)
			}
			if cached != nil {
				posts[i] = *cached
				return nil
			}

			p, err := h.Source.Read(ctx, id)
			if err != nil {
				return err
			}
			if err := h.Store.Set(ctx, id, p); err != nil {
				return fmt.Errorf("failed to cache post %v: %w", id, err)
			}
			fetched.Add(1)
			posts[i] = p
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// ids arrive oldest first; reverse so the stable sort keeps later
	// writes ahead of earlier ones on equal timestamps
	for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
		posts[i], posts[j] = posts[j], posts[i]
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Timestamp.After(posts[j].Timestamp)
	})

	h.Logger.Info().
		Int("posts", len(posts)).
		Int64("fetched", fetched.Load()).
		Dur("elapsed", time.Since(begin)).
		Msg("hydrated post history")
	return posts, nil
}

// ReportDuplicates logs every post whose (author, content, timestamp) was
// already seen earlier in posts, and returns how many there were. posts is
// left untouched.
func ReportDuplicates(logger zerolog.Logger, posts []post.DurablePost) int {
	seen := make(map[post.Hash]string, len(posts))
	var duplicates int
	for _, p := range posts {
		h := p.Hash()
		if first, ok := seen[h]; ok {
			duplicates++
			logger.Warn().
				Str("id", p.ID).
				Str("first", first).
				Str("author", p.Author).
				Time("timestamp", p.Timestamp).
				Msg("duplicate post in history")
			continue
		}
		seen[h] = p.ID
	}
	logger.Info().Int("posts", len(posts)).Int("duplicates", duplicates).Msg("validated post history")
	return duplicates
}
