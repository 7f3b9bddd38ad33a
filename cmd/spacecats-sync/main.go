package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/spacecats-dao/spacecats-sync/broadcast"
	"github.com/spacecats-dao/spacecats-sync/broadcast/mqttsink"
	"github.com/spacecats-dao/spacecats-sync/broadcast/publish"
	"github.com/spacecats-dao/spacecats-sync/broadcast/wshub"
	"github.com/spacecats-dao/spacecats-sync/cache"
	"github.com/spacecats-dao/spacecats-sync/dedup"
	"github.com/spacecats-dao/spacecats-sync/durable"
	"github.com/spacecats-dao/spacecats-sync/durable/arweave"
	"github.com/spacecats-dao/spacecats-sync/gc"
	"github.com/spacecats-dao/spacecats-sync/identity"
	"github.com/spacecats-dao/spacecats-sync/ledger"
	"github.com/spacecats-dao/spacecats-sync/ledger/solana"
	"github.com/spacecats-dao/spacecats-sync/pipeline"
	spacecatscli "github.com/spacecats-dao/spacecats-sync/spacecats-cli"
	spacecatsrest "github.com/spacecats-dao/spacecats-sync/spacecats-rest"
)

var service = spacecatscli.NewService("spacecats-sync")

func main() {
	app := spacecatscli.App(
		service,
		action,
		append(
			spacecatscli.CommonFlags,
			flags...,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := spacecatscli.Logger(service)
	sess := sync.OnceValue(func() *session.Session {
		return session.Must(session.NewSession())
	})

	var loader identity.SecretLoader
	if opts.SecretName != "" {
		loader = identity.SecretsManager(sess())
	}
	id, err := identity.Load(identity.Sources{
		AuthorityPath:  opts.Ledger.AuthorityPath,
		StorageAccount: opts.Ledger.StorageAccount,
		WalletPath:     opts.Arweave.WalletPath,
		SecretName:     opts.SecretName,
		NeedWallet:     true,
	}, loader)
	if err != nil {
		return err
	}

	programID, err := ledger.ParsePublicKey(opts.Ledger.ProgramID)
	if err != nil {
		return fmt.Errorf("invalid program id: %w", err)
	}

	var metrics spacecatscli.Recorder = spacecatscli.NopRecorder{}
	if opts.Metrics {
		metrics = spacecatscli.NewMetrics(service, cloudwatch.New(sess()))
	}

	ledgerClient := solana.New(solana.Config{
		RPCURL:         opts.Ledger.RPCURL,
		WSURL:          opts.Ledger.WSURL,
		ProgramID:      programID,
		StorageAccount: id.StorageAccount,
		Authority:      id.Authority,
		Commitment:     opts.Ledger.Commitment,
		Timeout:        opts.Timeout,
		Heartbeat:      opts.Ledger.Heartbeat,
	}, logger)

	arweaveClient := arweave.New(arweave.Config{
		URL:      opts.Arweave.URL,
		Wallet:   id.Wallet,
		Timeout:  opts.Timeout,
		AutoMine: opts.Arweave.AutoMine,
	}, logger)
	writer := durable.NewWriter(arweaveClient, logger)
	writer.Tag = durable.Tag{Name: opts.Arweave.TagName, Value: opts.Arweave.TagValue}
	writer.FundThreshold = opts.Arweave.FundThreshold
	writer.FundAmount = opts.Arweave.FundAmount
	writer.Timeout = opts.Timeout

	if err := ledger.RequireAccount(ctx, ledgerClient); err != nil {
		return err
	}
	if err := writer.EnsureFunds(ctx); err != nil {
		return err
	}
	if opts.Ledger.AirdropLamports > 0 {
		if err := ledgerClient.EnsureAirdrop(ctx, opts.Ledger.AirdropLamports); err != nil {
			return err
		}
	}

	store, closeStore, err := openStore(ctx, sess)
	if err != nil {
		return err
	}
	defer closeStore()

	hydrated, err := cache.NewHydrator(writer, store, logger).Hydrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to hydrate cache: %w", err)
	}
	cache.ReportDuplicates(logger, hydrated)
	timeline := cache.NewTimeline(hydrated)
	window := dedup.New(opts.DedupSize)
	window.Seed(hydrated)

	hub := wshub.New(logger)
	defer hub.Close()
	sinks := []broadcast.Sink{hub}
	if opts.Kinesis {
		sinks = append(sinks, publish.Build(sess(), spacecatscli.CommonOpts.Env))
	}
	if opts.MQTT.Broker != "" {
		mqtt, err := mqttsink.Connect(ctx, opts.MQTT, logger)
		if err != nil {
			return err
		}
		defer mqtt.Close()
		sinks = append(sinks, mqtt)
	}
	fanout := broadcast.NewFanout(logger, sinks...)
	defer fanout.Wait()

	coordinator := gc.New(ledgerClient, logger)
	coordinator.Threshold = opts.GC.Threshold
	coordinator.Dry = spacecatscli.CommonOpts.Dry
	coordinator.Metrics = metrics

	pipe := pipeline.New(ledgerClient, writer, window, timeline, store, fanout, coordinator, logger)
	pipe.Metrics = metrics
	pipe.ResubscribeInterval = opts.ResubscribeInterval

	if _, err := pipe.Backfill(ctx, hydrated); err != nil {
		return err
	}
	if _, err := coordinator.Checkpoint(ctx); err != nil {
		logger.Error().Err(err).Msg("startup checkpoint failed")
	}

	router, err := spacecatsrest.Router(spacecatsrest.Config{
		Logger:             logger,
		Timeline:           timeline,
		Status:             pipe,
		Realtime:           hub,
		AllowIntrospection: opts.Introspection,
	})
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return pipe.Run(ctx)
	})
	if opts.GC.Interval > 0 {
		group.Go(func() error {
			return coordinator.Run(ctx, opts.GC.Interval)
		})
	}
	group.Go(func() error {
		addr := fmt.Sprintf(":%v", spacecatscli.CommonOpts.Port)
		return spacecatsrest.Serve(ctx, addr, router, logger)
	})

	logger.Info().
		Int("posts", timeline.Len()).
		Str("storage_account", id.StorageAccount.String()).
		Str("wallet", id.Wallet.Address()).
		Msg("spacecats sync started")

	err = group.Wait()
	logger.Info().Msg("spacecats sync stopped")
	return err
}
