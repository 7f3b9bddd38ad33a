// Package pgkv persists the post cache in Postgres.
package pgkv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spacecats-dao/spacecats-sync/cache"
	"github.com/spacecats-dao/spacecats-sync/post"
)

type Store struct {
	pool  *pgxpool.Pool
	table string
}

var _ cache.Store = (*Store)(nil)

// Open connects to dsn and creates table if it is missing.
func Open(ctx context.Context, dsn, table string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 16
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s := &Store{pool: pool, table: pgx.Identifier{table}.Sanitize()}
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id        TEXT PRIMARY KEY,
		content   TEXT NOT NULL,
		author    TEXT NOT NULL,
		timestamp BIGINT NOT NULL
	)`, s.table)
	if _, err := pool.Exec(ctx, create); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table %v: %w", table, err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Get(ctx context.Context, id string) (*post.DurablePost, error) {
	var (
		p  = post.DurablePost{ID: id}
		ms int64
	)
	query := fmt.Sprintf(`SELECT content, author, timestamp FROM %s WHERE id = $1`, s.table)
	if err := s.pool.QueryRow(ctx, query, id).Scan(&p.Content, &p.Author, &ms); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get post %v: %w", id, err)
	}
	p.Timestamp = time.UnixMilli(ms).UTC()
	return &p, nil
}

func (s *Store) Set(ctx context.Context, id string, p post.DurablePost) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, author, timestamp) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, author = EXCLUDED.author, timestamp = EXCLUDED.timestamp`,
		s.table)
	if _, err := s.pool.Exec(ctx, query, id, p.Content, p.Author, p.Timestamp.UnixMilli()); err != nil {
		return fmt.Errorf("failed to put post %v: %w", id, err)
	}
	return nil
}
