package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema covers only the tables the realtime layer touches.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id              TEXT PRIMARY KEY,
		participants    JSONB       NOT NULL,
		participant_ids TEXT[]      NOT NULL,
		type            TEXT        NOT NULL DEFAULT 'direct',
		name            TEXT        NOT NULL DEFAULT '',
		last_message    JSONB,
		last_message_at TIMESTAMPTZ,
		unread_counts   JSONB       NOT NULL DEFAULT '{}'::jsonb,
		archived        BOOLEAN     NOT NULL DEFAULT false,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS conversations_participant_ids_idx ON conversations USING GIN (participant_ids)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT        NOT NULL,
		sender_id       TEXT        NOT NULL,
		sender_name     TEXT        NOT NULL DEFAULT '',
		sender_role     TEXT        NOT NULL,
		recipient_id    TEXT        NOT NULL,
		content         TEXT        NOT NULL,
		read            BOOLEAN     NOT NULL DEFAULT false,
		read_at         TIMESTAMPTZ,
		deleted         BOOLEAN     NOT NULL DEFAULT false,
		deleted_at      TIMESTAMPTZ,
		attachments     JSONB       NOT NULL DEFAULT '[]'::jsonb,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_created_idx ON messages (conversation_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS notification_log (
		id             TEXT PRIMARY KEY,
		target_user_id TEXT,
		target_role    TEXT,
		type           TEXT        NOT NULL,
		title          TEXT        NOT NULL,
		message        TEXT        NOT NULL DEFAULT '',
		related_id     TEXT        NOT NULL DEFAULT '',
		extra          JSONB,
		read           BOOLEAN     NOT NULL DEFAULT false,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS notification_log_user_idx ON notification_log (target_user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS notification_log_role_idx ON notification_log (target_role, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS location_history (
		id          TEXT PRIMARY KEY,
		driver_id   TEXT             NOT NULL,
		vehicle_id  TEXT             NOT NULL DEFAULT '',
		latitude    DOUBLE PRECISION NOT NULL,
		longitude   DOUBLE PRECISION NOT NULL,
		speed_kmh   DOUBLE PRECISION NOT NULL DEFAULT 0,
		heading     DOUBLE PRECISION NOT NULL DEFAULT 0,
		accuracy_m  DOUBLE PRECISION,
		recorded_at TIMESTAMPTZ      NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS location_history_driver_idx ON location_history (driver_id, recorded_at DESC)`,
}

// EnsureSchema creates missing tables and indexes. Safe to run on every start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
