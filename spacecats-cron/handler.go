// Package spacecatscron runs a task on a schedule, either as a Lambda
// function or once from the console.
package spacecatscron

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	spacecatscli "github.com/spacecats-dao/spacecats-sync/spacecats-cli"
)

type RunCallback func(ctx context.Context) error

type Handler struct {
	service spacecatscli.Service
	logger  zerolog.Logger

	runOnce RunCallback
}

func NewHandler(
	service spacecatscli.Service,
	runOnce RunCallback,
) *Handler {
	return &Handler{
		service: service,
		logger:  spacecatscli.Logger(service),
		runOnce: runOnce,
	}
}

func (h *Handler) RunOnce(ctx context.Context, _ json.RawMessage) error {
	started := time.Now()
	h.logger.Info().Msg("running scheduled task")
	if err := h.runOnce(ctx); err != nil {
		h.logger.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("scheduled task failed")
		return err
	}
	h.logger.Info().Dur("elapsed", time.Since(started)).Msg("scheduled task complete")
	return nil
}

func (h *Handler) Start() error {
	switch {
	case spacecatscli.CommonOpts.Console:
		return h.RunOnce(context.Background(), nil)

	default:
		lambda.Start(h.RunOnce)
	}
	return nil
}
