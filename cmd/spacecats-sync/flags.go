package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/spacecats-dao/spacecats-sync/broadcast/mqttsink"
	"github.com/spacecats-dao/spacecats-sync/dedup"
	"github.com/spacecats-dao/spacecats-sync/durable"
	"github.com/spacecats-dao/spacecats-sync/ledger"
	"github.com/spacecats-dao/spacecats-sync/ledger/solana"
	"github.com/spacecats-dao/spacecats-sync/pipeline"
	spacecatscli "github.com/spacecats-dao/spacecats-sync/spacecats-cli"
)

const defaultCacheBackend = "sqlite"

var opts struct {
	Ledger struct {
		RPCURL          string
		WSURL           string
		ProgramID       string
		StorageAccount  string
		AuthorityPath   string
		Commitment      string
		Heartbeat       time.Duration
		AirdropLamports uint64
	}
	Arweave struct {
		URL           string
		WalletPath    string
		TagName       string
		TagValue      string
		FundThreshold uint64
		FundAmount    uint64
		AutoMine      bool
	}
	Cache struct {
		Backend string
		Path    string
		DSN     string
		Table   string
	}
	Kinesis bool
	MQTT    mqttsink.Config
	GC      struct {
		Threshold uint64
		Interval  time.Duration
	}
	ResubscribeInterval time.Duration
	Timeout             time.Duration
	DedupSize           int
	SecretName          string
	Metrics             bool
	Introspection       bool
}

var flags = []cli.Flag{
	spacecatscli.PortFlag(8080),

	spacecatscli.StringFlag("rpc-url", "ledger JSON-RPC endpoint", &opts.Ledger.RPCURL, "http://127.0.0.1:8899"),
	spacecatscli.StringFlag("ws-url", "ledger websocket endpoint", &opts.Ledger.WSURL, "ws://127.0.0.1:8900"),
	spacecatscli.StringFlag("program-id", "posts program id", &opts.Ledger.ProgramID, solana.DefaultProgramID),
	spacecatscli.StringFlag("storage-account", "storage account address or keypair file", &opts.Ledger.StorageAccount),
	spacecatscli.StringFlag("authority-keypair", "compaction authority keypair file", &opts.Ledger.AuthorityPath),
	spacecatscli.StringFlag("commitment", "ledger commitment level", &opts.Ledger.Commitment, "confirmed"),
	spacecatscli.DurationFlag("heartbeat", "subscription ping interval", &opts.Ledger.Heartbeat, 30*time.Second),
	spacecatscli.Uint64Flag("airdrop-lamports", "request an airdrop for the compaction authority below this balance (local ledgers only)", &opts.Ledger.AirdropLamports, 0),

	spacecatscli.StringFlag("arweave-url", "arweave gateway", &opts.Arweave.URL, "http://127.0.0.1:1984"),
	spacecatscli.StringFlag("arweave-wallet", "arweave JWK wallet file", &opts.Arweave.WalletPath),
	spacecatscli.StringFlag("tag-name", "tag name marking posts", &opts.Arweave.TagName, durable.DefaultTag.Name),
	spacecatscli.StringFlag("tag-value", "tag value marking posts", &opts.Arweave.TagValue, durable.DefaultTag.Value),
	spacecatscli.Uint64Flag("fund-threshold", "fund the wallet when its balance is below this", &opts.Arweave.FundThreshold, durable.DefaultFundThreshold),
	spacecatscli.Uint64Flag("fund-amount", "amount to fund the wallet with", &opts.Arweave.FundAmount, durable.DefaultFundAmount),
	spacecatscli.BoolFlag("auto-mine", "mine a block after each write (local gateways)", &opts.Arweave.AutoMine),

	spacecatscli.StringFlag("cache", "persisted cache backend: sqlite, postgres, dynamodb, or memory (not persisted)", &opts.Cache.Backend, defaultCacheBackend),
	spacecatscli.StringFlag("cache-path", "sqlite database file", &opts.Cache.Path, "spacecats.db"),
	spacecatscli.StringFlag("cache-dsn", "postgres connection string", &opts.Cache.DSN),
	spacecatscli.StringFlag("cache-table", "postgres table name", &opts.Cache.Table, "posts"),

	spacecatscli.BoolFlag("kinesis", "publish posts to the kinesis events stream", &opts.Kinesis),
	spacecatscli.StringFlag("mqtt-broker", "publish posts to this mqtt broker", &opts.MQTT.Broker),
	spacecatscli.StringFlag("mqtt-client-id", "mqtt client id", &opts.MQTT.ClientID, "spacecats-sync"),
	spacecatscli.StringFlag("mqtt-username", "mqtt username", &opts.MQTT.Username),
	spacecatscli.StringFlag("mqtt-password", "mqtt password", &opts.MQTT.Password),
	spacecatscli.StringFlag("mqtt-topic", "mqtt topic", &opts.MQTT.Topic, mqttsink.DefaultTopic),

	spacecatscli.Uint64Flag("gc-threshold", "compact once the ledger index reaches this", &opts.GC.Threshold, ledger.CompactionThreshold),
	spacecatscli.DurationFlag("gc-interval", "periodic checkpoint interval, 0 disables", &opts.GC.Interval, 0),
	spacecatscli.DurationFlag("resubscribe-interval", "replace the ledger subscription this often", &opts.ResubscribeInterval, pipeline.DefaultResubscribeInterval),
	spacecatscli.DurationFlag("timeout", "external request timeout", &opts.Timeout, durable.DefaultTimeout),
	spacecatscli.IntFlag("dedup-size", "recent post hashes remembered", &opts.DedupSize, dedup.DefaultCapacity),
	spacecatscli.StringFlag("secret-name", "secrets manager secret holding the keys", &opts.SecretName),
	spacecatscli.BoolFlag("metrics", "emit cloudwatch metrics", &opts.Metrics),
	spacecatscli.BoolFlag("introspection", "enable graphql introspection and graphiql", &opts.Introspection),
}
