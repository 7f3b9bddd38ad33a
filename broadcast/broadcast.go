// Package broadcast pushes newly stored posts to realtime subscribers. Every
// send is fire-and-forget: a slow or failing sink never holds up the
// pipeline.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/spacecats-dao/spacecats-sync/post"
)

// Sink is one realtime destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, p post.DurablePost) error
}

// Broadcaster is what the pipeline publishes through.
type Broadcaster interface {
	Publish(ctx context.Context, p post.DurablePost)
}

const DefaultSendTimeout = 5 * time.Second

// Fanout delivers each post to every sink concurrently.
type Fanout struct {
	sinks   []Sink
	logger  zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewFanout(logger zerolog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{
		sinks:   sinks,
		logger:  logger.With().Str("component", "broadcast").Logger(),
		timeout: DefaultSendTimeout,
	}
}

// Publish returns immediately. Sink errors are logged.
func (f *Fanout) Publish(ctx context.Context, p post.DurablePost) {
	ctx = context.WithoutCancel(ctx)
	for _, sink := range f.sinks {
		sink := sink
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()

			ctx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			if err := sink.Send(ctx, p); err != nil {
				f.logger.Warn().Err(err).Str("sink", sink.Name()).Str("id", p.ID).Msg("broadcast failed")
			}
		}()
	}
}

// Wait blocks until every in-flight send has finished.
func (f *Fanout) Wait() {
	f.wg.Wait()
}
