// Package gc decides when the ledger's storage account needs compacting and
// makes sure at most one compaction is in flight per process.
package gc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	spacecatscli "github.com/spacecats-dao/spacecats-sync/spacecats-cli"
	"github.com/spacecats-dao/spacecats-sync/ledger"
)

// Result describes what a checkpoint did.
type Result struct {
	// Skipped is set when another checkpoint was already running.
	Skipped   bool
	Index     uint64
	Triggered bool
	Signature string
}

type Coordinator struct {
	Ledger    ledger.Client
	Threshold uint64
	// Dry logs the decision instead of submitting.
	Dry     bool
	Logger  zerolog.Logger
	Metrics spacecatscli.Recorder

	running sync.Mutex
}

func New(client ledger.Client, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		Ledger:    client,
		Threshold: ledger.CompactionThreshold,
		Logger:    logger.With().Str("component", "gc").Logger(),
		Metrics:   spacecatscli.NopRecorder{},
	}
}

// Checkpoint reads the storage account and submits a compaction when its
// index has reached the threshold. A checkpoint that finds another one
// running returns immediately with Skipped set.
func (c *Coordinator) Checkpoint(ctx context.Context) (Result, error) {
	if !c.running.TryLock() {
		c.Logger.Debug().Msg("checkpoint already running")
		return Result{Skipped: true}, nil
	}
	defer c.running.Unlock()

	state, err := c.Ledger.FetchAccountState(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("checkpoint: %w", err)
	}

	result := Result{Index: state.Index}
	c.Metrics.Gauge(ctx, spacecatscli.LedgerIndexMetric, float64(state.Index))

	logger := c.Logger.With().Uint64("index", state.Index).Uint64("threshold", c.Threshold).Logger()
	if state.Index < c.Threshold {
		logger.Debug().Msg("compaction not needed")
		return result, nil
	}
	if c.Dry {
		logger.Info().Msg("dry run, not submitting compaction")
		return result, nil
	}

	begin := time.Now()
	signature, err := c.Ledger.SubmitCompaction(ctx)
	if err != nil {
		c.Metrics.Event(ctx, spacecatscli.CompactionMetric, map[spacecatscli.DimensionName]string{
			spacecatscli.ReasonDimension: "failed",
		})
		return result, fmt.Errorf("checkpoint: compaction at index %v failed: %w", state.Index, err)
	}

	result.Triggered = true
	result.Signature = signature
	c.Metrics.Event(ctx, spacecatscli.CompactionMetric)
	logger.Info().
		Str("signature", signature).
		Dur("elapsed", time.Since(begin)).
		Msg("compaction submitted")
	return result, nil
}

// Run checkpoints every interval until ctx is done. Errors are logged.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Checkpoint(ctx); err != nil {
				c.Logger.Warn().Err(err).Msg("scheduled checkpoint failed")
			}
		}
	}
}
