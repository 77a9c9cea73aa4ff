package database

import (
	"context"
	"fmt"
)

// Schema creates the tables the consultation API reads and writes. Every
// statement is idempotent so Migrate can run on each start.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              BIGSERIAL PRIMARY KEY,
		name            TEXT NOT NULL DEFAULT '',
		email           TEXT UNIQUE NOT NULL,
		role            TEXT NOT NULL DEFAULT 'user',
		wallet_balance  DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS astrologers (
		id                  BIGSERIAL PRIMARY KEY,
		user_id             BIGINT NOT NULL REFERENCES users(id),
		name                TEXT NOT NULL DEFAULT '',
		email               TEXT NOT NULL DEFAULT '',
		phone               TEXT NOT NULL DEFAULT '',
		experience          INTEGER NOT NULL DEFAULT 0,
		specialties         TEXT[] NOT NULL DEFAULT '{}',
		languages           TEXT[] NOT NULL DEFAULT '{}',
		bio                 TEXT NOT NULL DEFAULT '',
		status              TEXT NOT NULL DEFAULT 'pending',
		verification_status TEXT NOT NULL DEFAULT 'pending',
		rating              DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_calls         INTEGER NOT NULL DEFAULT 0,
		earnings            DOUBLE PRECISION NOT NULL DEFAULT 0,
		rate                DOUBLE PRECISION NOT NULL DEFAULT 10,
		is_online           BOOLEAN NOT NULL DEFAULT FALSE,
		is_live             BOOLEAN NOT NULL DEFAULT FALSE,
		last_online_time    TIMESTAMPTZ,
		is_boosted          BOOLEAN NOT NULL DEFAULT FALSE,
		followers_count     INTEGER NOT NULL DEFAULT 0,
		application_date    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id             BIGSERIAL PRIMARY KEY,
		user_id        BIGINT NOT NULL REFERENCES users(id),
		astrologer_id  BIGINT NOT NULL REFERENCES astrologers(id),
		start_time     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time       TIMESTAMPTZ,
		duration       BIGINT NOT NULL DEFAULT 0,
		cost           DOUBLE PRECISION NOT NULL DEFAULT 0,
		status         TEXT NOT NULL DEFAULT 'active',
		type           TEXT NOT NULL DEFAULT 'call',
		is_free_trial  BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_status ON sessions (user_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_astrologer_status ON sessions (astrologer_id, status)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id           BIGSERIAL PRIMARY KEY,
		user_id      BIGINT NOT NULL REFERENCES users(id),
		amount       DOUBLE PRECISION NOT NULL,
		type         TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		timestamp    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate applies Schema in order.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
