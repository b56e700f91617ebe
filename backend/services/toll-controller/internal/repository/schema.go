package repository

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS toll_transactions (
		id          BIGSERIAL PRIMARY KEY,
		occurred_at TIMESTAMP NOT NULL,
		card_id     TEXT NOT NULL,
		amount      BIGINT NOT NULL,
		balance     BIGINT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS toll_transactions_occurred_at_idx ON toll_transactions (occurred_at)`,
	`CREATE TABLE IF NOT EXISTS toll_serial_lines (
		id          UUID PRIMARY KEY,
		tag         TEXT NOT NULL,
		raw         TEXT NOT NULL,
		malformed   BOOLEAN NOT NULL,
		received_at TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the mirror tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
