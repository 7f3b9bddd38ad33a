package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"github.com/spacecats-dao/spacecats-sync/cache"
	"github.com/spacecats-dao/spacecats-sync/cache/pgkv"
	"github.com/spacecats-dao/spacecats-sync/cache/postdao"
	"github.com/spacecats-dao/spacecats-sync/cache/sqlitekv"
	spacecatscli "github.com/spacecats-dao/spacecats-sync/spacecats-cli"
)

// openStore returns the persisted cache selected by --cache and a func that
// releases it.
func openStore(ctx context.Context, sess func() *session.Session) (cache.Store, func(), error) {
	switch opts.Cache.Backend {
	case "memory":
		return cache.NewMemoryStore(), func() {}, nil

	case "", "sqlite":
		store, err := sqlitekv.Open(opts.Cache.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case "postgres":
		store, err := pgkv.Open(ctx, opts.Cache.DSN, opts.Cache.Table)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case "dynamodb":
		dao := postdao.Build(dynamodb.New(sess()), spacecatscli.CommonOpts.Env)
		if err := dao.CreateTableIfNotExists(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to create posts table: %w", err)
		}
		return dao, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", opts.Cache.Backend)
	}
}
