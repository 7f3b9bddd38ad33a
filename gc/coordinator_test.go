package gc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spacecats-dao/spacecats-sync/ledger"
	"github.com/tj/assert"
)

type fakeLedger struct {
	index     uint64
	submits   atomic.Int32
	submitErr error
	fetchErr  error
	// gate blocks SubmitCompaction until closed
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeLedger) Subscribe(context.Context) (ledger.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLedger) FetchAccountState(context.Context) (*ledger.AccountState, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &ledger.AccountState{Index: f.index}, nil
}

func (f *fakeLedger) SubmitCompaction(context.Context) (string, error) {
	f.submits.Add(1)
	if f.entered != nil {
		close(f.entered)
	}
	if f.gate != nil {
		<-f.gate
	}
	return "sig", f.submitErr
}

func (f *fakeLedger) AccountExists(context.Context) (ledger.Existence, error) {
	return ledger.Exists, nil
}

func TestCheckpointThreshold(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		index     uint64
		triggered bool
	}{
		{0, false},
		{249, false},
		{250, true},
		{500, true},
	} {
		l := &fakeLedger{index: tc.index}
		result, err := New(l, zerolog.Nop()).Checkpoint(ctx)
		assert.Nil(t, err)
		assert.Equal(t, tc.triggered, result.Triggered, "index %d", tc.index)
		assert.Equal(t, tc.index, result.Index)
		if tc.triggered {
			assert.EqualValues(t, 1, l.submits.Load())
			assert.Equal(t, "sig", result.Signature)
		} else {
			assert.EqualValues(t, 0, l.submits.Load())
		}
	}
}

func TestCheckpointDry(t *testing.T) {
	l := &fakeLedger{index: 300}
	c := New(l, zerolog.Nop())
	c.Dry = true

	result, err := c.Checkpoint(context.Background())
	assert.Nil(t, err)
	assert.False(t, result.Triggered)
	assert.EqualValues(t, 0, l.submits.Load())
}

func TestConcurrentCheckpointsSubmitOnce(t *testing.T) {
	l := &fakeLedger{
		index:   260,
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	c := New(l, zerolog.Nop())

	first := make(chan Result)
	go func() {
		result, _ := c.Checkpoint(context.Background())
		first <- result
	}()
	<-l.entered

	var (
		wg      sync.WaitGroup
		skipped atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := c.Checkpoint(context.Background())
			assert.Nil(t, err)
			if result.Skipped {
				skipped.Add(1)
			}
		}()
	}
	wg.Wait()
	close(l.gate)

	result := <-first
	assert.True(t, result.Triggered)
	assert.EqualValues(t, 10, skipped.Load())
	assert.EqualValues(t, 1, l.submits.Load())
}

func TestGuardReleasedOnError(t *testing.T) {
	ctx := context.Background()

	l := &fakeLedger{index: 260, submitErr: errors.New("boom")}
	c := New(l, zerolog.Nop())
	_, err := c.Checkpoint(ctx)
	assert.NotNil(t, err)

	l.submitErr = nil
	result, err := c.Checkpoint(ctx)
	assert.Nil(t, err)
	assert.False(t, result.Skipped)
	assert.True(t, result.Triggered)

	l.fetchErr = errors.New("rpc down")
	_, err = c.Checkpoint(ctx)
	assert.NotNil(t, err)

	l.fetchErr = nil
	result, err = c.Checkpoint(ctx)
	assert.Nil(t, err)
	assert.False(t, result.Skipped)
}

func TestRun(t *testing.T) {
	l := &fakeLedger{index: 10}
	c := New(l, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Nil(t, c.Run(ctx, 5*time.Millisecond))
}
