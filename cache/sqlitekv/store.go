// Package sqlitekv persists the post cache in a local SQLite file.
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spacecats-dao/spacecats-sync/cache"
	"github.com/spacecats-dao/spacecats-sync/post"
)

const schema = `CREATE TABLE IF NOT EXISTS posts (
	id        TEXT PRIMARY KEY,
	content   TEXT NOT NULL,
	author    TEXT NOT NULL,
	timestamp INTEGER NOT NULL
)`

type Store struct {
	db *sql.DB
}

var _ cache.Store = (*Store)(nil)

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// one writer; the hydrator's concurrent reads queue on it
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range append(pragmas, schema) {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, id string) (*post.DurablePost, error) {
	var (
		p  = post.DurablePost{ID: id}
		ms int64
	)
	row := s.db.QueryRowContext(ctx, `SELECT content, author, timestamp FROM posts WHERE id = ?`, id)
	if err := row.Scan(&p.Content, &p.Author, &ms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get post %v: %w", id, err)
	}
	p.Timestamp = time.UnixMilli(ms).UTC()
	return &p, nil
}

func (s *Store) Set(ctx context.Context, id string, p post.DurablePost) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, content, author, timestamp) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, author = excluded.author, timestamp = excluded.timestamp`,
		id, p.Content, p.Author, p.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to put post %v: %w", id, err)
	}
	return nil
}
