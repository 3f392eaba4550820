package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup. Statements are idempotent so repeated
// boots against the same database are safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		dark_mode BOOLEAN NOT NULL DEFAULT FALSE,
		email_digest BOOLEAN NOT NULL DEFAULT TRUE,
		digest_threshold BIGINT NOT NULL DEFAULT 100,
		last_digest_sent_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS links (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		original_url TEXT NOT NULL,
		code VARCHAR(20) NOT NULL,
		clicks BIGINT NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		password_hash TEXT,
		is_password_protected BOOLEAN NOT NULL DEFAULT FALSE,
		require_preview BOOLEAN NOT NULL DEFAULT FALSE,
		tags TEXT[] NOT NULL DEFAULT '{}',
		folder TEXT NOT NULL DEFAULT 'default',
		last_notified_clicks BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Code uniqueness is enforced here, not in application code. Concurrent
	// creates with the same code surface as a unique violation.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_links_code ON links (code)`,
	`CREATE INDEX IF NOT EXISTS idx_links_user_created ON links (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_links_user_folder ON links (user_id, folder)`,
	`CREATE TABLE IF NOT EXISTS link_clicks (
		id BIGSERIAL PRIMARY KEY,
		link_id UUID NOT NULL REFERENCES links(id) ON DELETE CASCADE,
		clicked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		referrer TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_link_clicks_link ON link_clicks (link_id, id DESC)`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
