package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Schema profiles and messages tables, idempotent
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id            TEXT PRIMARY KEY,
	name          TEXT,
	email         TEXT NOT NULL,
	last_online   TIMESTAMPTZ,
	profile_image TEXT,
	gender        TEXT
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	sender_id   TEXT NOT NULL REFERENCES profiles(id),
	receiver_id TEXT NOT NULL REFERENCES profiles(id),
	content     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	seen        BOOLEAN NOT NULL DEFAULT FALSE,
	seen_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (sender_id, receiver_id, created_at);
CREATE INDEX IF NOT EXISTS messages_unseen_idx ON messages (receiver_id, sender_id) WHERE seen = FALSE;
`

// EnsureSchema creates the chat tables when missing
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure chat schema: %w", err)
	}
	return nil
}
