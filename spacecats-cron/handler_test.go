package spacecatscron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	spacecatscli "github.com/spacecats-dao/spacecats-sync/spacecats-cli"
	"github.com/tj/assert"
)

func TestRunOnce(t *testing.T) {
	calls := 0
	h := NewHandler(spacecatscli.NewService("test"), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.Nil(t, h.RunOnce(context.Background(), json.RawMessage(`{}`)))
	assert.Equal(t, 1, calls)
}

func TestRunOnceError(t *testing.T) {
	boom := errors.New("boom")
	h := NewHandler(spacecatscli.NewService("test"), func(ctx context.Context) error {
		return boom
	})
	assert.Equal(t, boom, h.RunOnce(context.Background(), nil))
}

func TestStartConsole(t *testing.T) {
	spacecatscli.CommonOpts.Console = true
	defer func() { spacecatscli.CommonOpts.Console = false }()

	calls := 0
	h := NewHandler(spacecatscli.NewService("test"), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.Nil(t, h.Start())
	assert.Equal(t, 1, calls)
}
