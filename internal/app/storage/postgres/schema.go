package postgres

import (
	"context"
	"database/sql"
)

// EnsureSchema creates the relay tables when they do not exist yet. It is
// idempotent and intended for single-binary deployments; larger installs run
// the same DDL through their migration pipeline.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS relay_users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS relay_requests (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL,
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relay_requests_user ON relay_requests (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_relay_requests_open ON relay_requests (status, expires_at) WHERE status = 'open'`,
		`CREATE TABLE IF NOT EXISTS relay_fulfillments (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL REFERENCES relay_requests (id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			closed_by TEXT,
			closed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relay_fulfillments_request ON relay_fulfillments (request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_relay_fulfillments_user ON relay_fulfillments (user_id)`,
		`CREATE TABLE IF NOT EXISTS relay_messages (
			id TEXT PRIMARY KEY,
			fulfillment_id TEXT NOT NULL REFERENCES relay_fulfillments (id) ON DELETE CASCADE,
			sender_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relay_messages_fulfillment ON relay_messages (fulfillment_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS relay_profiles (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS relay_announcements (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			type TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
