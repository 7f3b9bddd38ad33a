// Package pipeline turns ledger account changes into durable, cached and
// broadcast posts.
//
// Events are handled one at a time on the goroutine running Run. For each
// change the pipeline decodes the newest slot, drops it if it was written
// recently, writes it to the durable store, re-reads the stored form,
// prepends it to the timeline, persists it, broadcasts it and finally runs a
// compaction checkpoint.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/spacecats-dao/spacecats-sync/broadcast"
	"github.com/spacecats-dao/spacecats-sync/cache"
	"github.com/spacecats-dao/spacecats-sync/dedup"
	"github.com/spacecats-dao/spacecats-sync/errkind"
	"github.com/spacecats-dao/spacecats-sync/gc"
	"github.com/spacecats-dao/spacecats-sync/ledger"
	"github.com/spacecats-dao/spacecats-sync/post"
	spacecatscli "github.com/spacecats-dao/spacecats-sync/spacecats-cli"
)

// Writer is the durable side of the pipeline.
type Writer interface {
	Write(ctx context.Context, p post.Post) (string, error)
	Read(ctx context.Context, id string) (post.DurablePost, error)
}

// Checkpointer runs compaction checkpoints.
type Checkpointer interface {
	Checkpoint(ctx context.Context) (gc.Result, error)
}

const (
	DefaultResubscribeInterval = 15 * time.Minute
	DefaultRetryDelay          = 5 * time.Second
	DefaultEventTimeout        = 60 * time.Second
	DefaultRefetchDelay        = time.Second
)

// Outcome is what Handle did with an event.
type Outcome int

const (
	// Empty means the newest slot held no post.
	Empty Outcome = iota
	Duplicate
	Stored
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Stored:
		return "stored"
	default:
		return "empty"
	}
}

type Pipeline struct {
	Ledger      ledger.Client
	Writer      Writer
	Dedup       *dedup.Window
	Timeline    *cache.Timeline
	Store       cache.Store
	Broadcaster broadcast.Broadcaster
	GC          Checkpointer
	Logger      zerolog.Logger
	Metrics     spacecatscli.Recorder

	// ResubscribeInterval replaces the subscription even when it looks
	// healthy.
	ResubscribeInterval time.Duration
	// RetryDelay spaces out failed subscribe attempts.
	RetryDelay time.Duration
	// EventTimeout bounds the handling of one event, including after
	// shutdown has begun.
	EventTimeout time.Duration
	// RefetchDelay spaces out reads of a post the durable store has
	// accepted but not yet made readable.
	RefetchDelay time.Duration

	subscribed atomic.Bool
	restarts   atomic.Int64
	processed  atomic.Int64
	lastEvent  atomic.Int64 // unix millis
}

func New(
	client ledger.Client,
	writer Writer,
	window *dedup.Window,
	timeline *cache.Timeline,
	store cache.Store,
	broadcaster broadcast.Broadcaster,
	checkpointer Checkpointer,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		Ledger:              client,
		Writer:              writer,
		Dedup:               window,
		Timeline:            timeline,
		Store:               store,
		Broadcaster:         broadcaster,
		GC:                  checkpointer,
		Logger:              logger.With().Str("component", "pipeline").Logger(),
		Metrics:             spacecatscli.NopRecorder{},
		ResubscribeInterval: DefaultResubscribeInterval,
		RetryDelay:          DefaultRetryDelay,
		EventTimeout:        DefaultEventTimeout,
		RefetchDelay:        DefaultRefetchDelay,
	}
}

// Handle processes one account change. Errors abort only this event.
func (p *Pipeline) Handle(ctx context.Context, state *ledger.AccountState) (Outcome, error) {
	p.lastEvent.Store(time.Now().UnixMilli())

	decoded, ok, err := ledger.Decode(state)
	if err != nil {
		return Empty, fmt.Errorf("decode: %w", err)
	}
	if !ok {
		p.Logger.Debug().Uint64("index", state.Index).Msg("newest slot is empty, ignoring")
		return Empty, nil
	}
	return p.handlePost(ctx, decoded)
}

func (p *Pipeline) handlePost(ctx context.Context, decoded post.Post) (Outcome, error) {
	logger := p.Logger.With().
		Str("author", decoded.Author).
		Time("timestamp", decoded.Timestamp).
		Str("hash", decoded.Hash().String()).
		Logger()

	if p.Dedup.RecordAndCheck(decoded) {
		logger.Info().Msg("post already written, skipping")
		p.Metrics.Event(ctx, spacecatscli.PostDuplicateMetric)
		return Duplicate, nil
	}

	begin := time.Now()
	id, err := p.Writer.Write(ctx, decoded)
	if err != nil {
		p.Dedup.Forget(decoded)
		p.Metrics.Event(ctx, spacecatscli.DurableWriteFailedMetric, map[spacecatscli.DimensionName]string{
			spacecatscli.ReasonDimension: errkind.Of(err).String(),
		})
		return Empty, fmt.Errorf("durable write: %w", err)
	}
	p.Metrics.Timing(ctx, spacecatscli.DurableWriteTimeMetric, begin)
	logger = logger.With().Str("id", id).Logger()
	logger.Info().Dur("elapsed", time.Since(begin)).Msg("wrote post")

	stored, err := p.refetch(ctx, id)
	if err != nil {
		return Empty, fmt.Errorf("re-fetch %v: %w", id, err)
	}

	p.Timeline.Prepend(stored)

	if err := p.Store.Set(ctx, id, stored); err != nil {
		return Empty, fmt.Errorf("persist %v: %w", id, err)
	}

	p.Broadcaster.Publish(ctx, stored)
	p.processed.Add(1)
	p.Metrics.Event(ctx, spacecatscli.PostProcessedMetric)

	if _, err := p.GC.Checkpoint(ctx); err != nil {
		logger.Warn().Err(err).Str("kind", errkind.Of(err).String()).Msg("checkpoint after write failed")
	}
	return Stored, nil
}

// refetch reads back a post that was just written. Transient failures,
// such as a transaction that is still pending, are retried until ctx is
// done.
func (p *Pipeline) refetch(ctx context.Context, id string) (post.DurablePost, error) {
	for attempt := 1; ; attempt++ {
		stored, err := p.Writer.Read(ctx, id)
		if err == nil || !errkind.IsTransient(err) {
			return stored, err
		}
		p.Logger.Debug().Err(err).Str("id", id).Int("attempt", attempt).Msg("post not readable yet")
		select {
		case <-ctx.Done():
			return post.DurablePost{}, err
		case <-time.After(p.RefetchDelay):
		}
	}
}

// handle runs one event on a context that survives shutdown so an event
// that has started is finished.
func (p *Pipeline) handle(ctx context.Context, state *ledger.AccountState) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.EventTimeout)
	defer cancel()

	outcome, err := p.Handle(ctx, state)
	if err != nil {
		p.Logger.Error().
			Err(err).
			Str("kind", errkind.Of(err).String()).
			Uint64("index", state.Index).
			Msg("failed to process account change")
		return
	}
	p.Logger.Debug().Stringer("outcome", outcome).Uint64("index", state.Index).Msg("processed account change")
}

// Backfill processes live ledger posts that are missing from known, oldest
// first. It closes the gap left by posts written while the service was
// down.
func (p *Pipeline) Backfill(ctx context.Context, known []post.DurablePost) (int, error) {
	state, err := p.Ledger.FetchAccountState(ctx)
	if err != nil {
		return 0, fmt.Errorf("backfill: %w", err)
	}

	seen := make(map[post.Hash]struct{}, len(known))
	for _, dp := range known {
		seen[dp.Hash()] = struct{}{}
	}

	var stored int
	for _, live := range ledger.LivePosts(state) {
		if _, ok := seen[live.Hash()]; ok {
			continue
		}
		outcome, err := p.handlePost(ctx, live)
		if err != nil {
			p.Logger.Error().Err(err).Str("author", live.Author).Time("timestamp", live.Timestamp).Msg("backfill failed for post")
			continue
		}
		if outcome == Stored {
			stored++
		}
	}
	p.Logger.Info().Int("stored", stored).Uint64("index", state.Index).Msg("backfill complete")
	return stored, nil
}

// Run owns the ledger subscription until ctx is done. Subscription failures
// and the refresh interval both lead to a fresh subscription. Updates still
// buffered on the old subscription are handled first, and every new
// subscription backfills the live posts missing from the timeline.
func (p *Pipeline) Run(ctx context.Context) error {
	refresh := time.NewTicker(p.ResubscribeInterval)
	defer refresh.Stop()

	var sub ledger.Subscription
	defer func() {
		if sub != nil {
			sub.Close()
		}
		p.subscribed.Store(false)
	}()

	for {
		if sub == nil {
			var err error
			sub, err = p.subscribe(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.Logger.Error().Err(err).Dur("retry", p.RetryDelay).Msg("subscribe failed")
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(p.RetryDelay):
					continue
				}
			}
			refresh.Reset(p.ResubscribeInterval)
		}

		select {
		case <-ctx.Done():
			return nil

		case state, ok := <-sub.Updates():
			if !ok {
				p.restart(ctx, &sub, "closed", sub.Err())
				continue
			}
			p.handle(ctx, state)

		case <-sub.Done():
			p.restart(ctx, &sub, "failed", sub.Err())

		case <-refresh.C:
			p.restart(ctx, &sub, "interval", nil)
		}
	}
}

// subscribe opens a subscription and then backfills every live post the
// timeline does not hold yet. Changes made before the subscription was
// open are picked up by the backfill, later ones arrive as updates.
func (p *Pipeline) subscribe(ctx context.Context) (ledger.Subscription, error) {
	sub, err := p.Ledger.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	p.subscribed.Store(true)

	catchUp, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.EventTimeout)
	defer cancel()
	if _, err := p.Backfill(catchUp, p.Timeline.Snapshot()); err != nil {
		p.Logger.Warn().Err(err).Msg("unable to catch up after subscribing")
	}
	return sub, nil
}

// restart handles any updates still buffered on sub, then closes it.
func (p *Pipeline) restart(ctx context.Context, sub *ledger.Subscription, reason string, cause error) {
	p.drain(ctx, *sub)
	(*sub).Close()
	*sub = nil
	p.subscribed.Store(false)
	p.restarts.Add(1)
	p.Metrics.Event(ctx, spacecatscli.ResubscribeMetric, map[spacecatscli.DimensionName]string{
		spacecatscli.ReasonDimension: reason,
	})

	event := p.Logger.Info()
	if cause != nil && !errors.Is(cause, context.Canceled) {
		event = p.Logger.Warn().Err(cause)
	}
	event.Str("reason", reason).Int64("restarts", p.restarts.Load()).Msg("resubscribing to storage account")
}

func (p *Pipeline) drain(ctx context.Context, sub ledger.Subscription) {
	for {
		select {
		case state, ok := <-sub.Updates():
			if !ok {
				return
			}
			p.handle(ctx, state)
		default:
			return
		}
	}
}

// Status is a point-in-time view of the pipeline for health checks.
type Status struct {
	Subscribed bool      `json:"subscribed"`
	Restarts   int64     `json:"restarts"`
	Processed  int64     `json:"processed"`
	LastEvent  time.Time `json:"lastEvent,omitempty"`
	Posts      int       `json:"posts"`
}

func (p *Pipeline) Status() Status {
	s := Status{
		Subscribed: p.subscribed.Load(),
		Restarts:   p.restarts.Load(),
		Processed:  p.processed.Load(),
		Posts:      p.Timeline.Len(),
	}
	if ms := p.lastEvent.Load(); ms > 0 {
		s.LastEvent = time.UnixMilli(ms).UTC()
	}
	return s
}
