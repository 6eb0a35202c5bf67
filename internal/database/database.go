package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN and checks that
// the server answers.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema is the media table. Storage keys are unique so a key can be looked
// up by the orphan sweep without scanning.
const Schema = `
CREATE TABLE IF NOT EXISTS media (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	s3_key TEXT NOT NULL UNIQUE,
	filename TEXT NOT NULL,
	title TEXT,
	description TEXT,
	media_type TEXT NOT NULL CHECK (media_type IN ('image', 'video')),
	mime_type TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	width INTEGER,
	height INTEGER,
	blur TEXT,
	duration INTEGER,
	thumbnail_s3_key TEXT,
	thumbnail_blur TEXT,
	metadata TEXT,
	is_public BOOLEAN NOT NULL DEFAULT FALSE,
	is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
	uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	taken_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_media_user_uploaded ON media(user_id, uploaded_at DESC);
CREATE INDEX IF NOT EXISTS idx_media_thumbnail_key ON media(thumbnail_s3_key);`

// EnsureSchema creates the media table if needed, so a fresh compose stack
// boots without a separate migration step.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
