package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/urfave/cli/v2"

	"github.com/spacecats-dao/spacecats-sync/gc"
	"github.com/spacecats-dao/spacecats-sync/identity"
	"github.com/spacecats-dao/spacecats-sync/ledger"
	"github.com/spacecats-dao/spacecats-sync/ledger/solana"
	spacecatscli "github.com/spacecats-dao/spacecats-sync/spacecats-cli"
	spacecatscron "github.com/spacecats-dao/spacecats-sync/spacecats-cron"
)

var service = spacecatscli.NewService("spacecats-gc")

var opts struct {
	RPCURL         string
	ProgramID      string
	StorageAccount string
	AuthorityPath  string
	Commitment     string
	Threshold      uint64
	Timeout        time.Duration
	SecretName     string
	Metrics        bool
}

func main() {
	app := spacecatscli.App(
		service,
		action,
		append(
			spacecatscli.CommonFlags,
			spacecatscli.StringFlag("rpc-url", "ledger JSON-RPC endpoint", &opts.RPCURL, "http://127.0.0.1:8899"),
			spacecatscli.StringFlag("program-id", "posts program id", &opts.ProgramID, solana.DefaultProgramID),
			spacecatscli.StringFlag("storage-account", "storage account address or keypair file", &opts.StorageAccount),
			spacecatscli.StringFlag("authority-keypair", "compaction authority keypair file", &opts.AuthorityPath),
			spacecatscli.StringFlag("commitment", "ledger commitment level", &opts.Commitment, "confirmed"),
			spacecatscli.Uint64Flag("gc-threshold", "compact once the ledger index reaches this", &opts.Threshold, ledger.CompactionThreshold),
			spacecatscli.DurationFlag("timeout", "ledger request timeout", &opts.Timeout, 20*time.Second),
			spacecatscli.StringFlag("secret-name", "secrets manager secret holding the keys", &opts.SecretName),
			spacecatscli.BoolFlag("metrics", "emit cloudwatch metrics", &opts.Metrics),
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	logger := spacecatscli.Logger(service)

	var (
		sess   *session.Session
		loader identity.SecretLoader
	)
	if opts.SecretName != "" || opts.Metrics {
		sess = session.Must(session.NewSession())
	}
	if opts.SecretName != "" {
		loader = identity.SecretsManager(sess)
	}
	id, err := identity.Load(identity.Sources{
		AuthorityPath:  opts.AuthorityPath,
		StorageAccount: opts.StorageAccount,
		SecretName:     opts.SecretName,
	}, loader)
	if err != nil {
		return err
	}

	programID, err := ledger.ParsePublicKey(opts.ProgramID)
	if err != nil {
		return fmt.Errorf("invalid program id: %w", err)
	}

	coordinator := gc.New(solana.New(solana.Config{
		RPCURL:         opts.RPCURL,
		ProgramID:      programID,
		StorageAccount: id.StorageAccount,
		Authority:      id.Authority,
		Commitment:     opts.Commitment,
		Timeout:        opts.Timeout,
	}, logger), logger)
	coordinator.Threshold = opts.Threshold
	coordinator.Dry = spacecatscli.CommonOpts.Dry
	if opts.Metrics {
		coordinator.Metrics = spacecatscli.NewMetrics(service, cloudwatch.New(sess))
	}

	handler := spacecatscron.NewHandler(service, func(ctx context.Context) error {
		result, err := coordinator.Checkpoint(ctx)
		if err != nil {
			return err
		}
		logger.Info().
			Uint64("index", result.Index).
			Bool("triggered", result.Triggered).
			Str("signature", result.Signature).
			Msg("checkpoint complete")
		return nil
	})
	return handler.Start()
}
