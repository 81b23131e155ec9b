package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		doc JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		is_published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		doc JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS videos_owner_idx ON videos (owner_id)`,
	`CREATE INDEX IF NOT EXISTS videos_published_created_idx ON videos (is_published, created_at DESC)`,
}

func (r *postgresRepository) migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// importSnapshot bulk-loads a snapshot inside a single transaction. Users are
// inserted before videos so the owner foreign key resolves, and existing rows
// are replaced so reruns of the migration tool stay idempotent.
func (r *postgresRepository) importSnapshot(ctx context.Context, snapshot *Snapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, user := range snapshot.Users {
		doc, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("encode user %s: %w", user.ID, err)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO users (id, username, email, doc)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, email = EXCLUDED.email, doc = EXCLUDED.doc
`, user.ID, user.Username, user.Email, doc); err != nil {
			return fmt.Errorf("import user %s: %w", user.ID, err)
		}
	}

	for _, video := range snapshot.Videos {
		doc, err := json.Marshal(video)
		if err != nil {
			return fmt.Errorf("encode video %s: %w", video.ID, err)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO videos (id, owner_id, is_published, created_at, doc)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, is_published = EXCLUDED.is_published, created_at = EXCLUDED.created_at, doc = EXCLUDED.doc
`, video.ID, video.OwnerID, video.IsPublished, video.CreatedAt, doc); err != nil {
			return fmt.Errorf("import video %s: %w", video.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot import: %w", err)
	}
	return nil
}
