package repository

import (
	"context"

	"calendar-aggregator/core/database"
	"calendar-aggregator/core/logger"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS calendar_accounts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL,
		provider TEXT NOT NULL CHECK (provider IN ('google', 'microsoft')),
		email TEXT NOT NULL,
		display_name TEXT,
		last_error VARCHAR(500),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calendar_accounts_user ON calendar_accounts (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS calendar_account_tokens (
		calendar_account_id UUID PRIMARY KEY REFERENCES calendar_accounts (id) ON DELETE CASCADE,
		access_token_enc TEXT NOT NULL,
		refresh_token_enc TEXT,
		expires_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS workflow_calendar_visibility (
		workflow_id UUID NOT NULL,
		calendar_account_id UUID NOT NULL REFERENCES calendar_accounts (id) ON DELETE CASCADE,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (workflow_id, calendar_account_id)
	)`,
	`CREATE TABLE IF NOT EXISTS workflow_calendar_events_cache (
		user_id UUID NOT NULL,
		workflow_id UUID NOT NULL,
		enabled_account_ids TEXT[] NOT NULL DEFAULT '{}',
		events JSONB NOT NULL DEFAULT '[]',
		provider_cooldowns JSONB NOT NULL DEFAULT '{}',
		provider_backoff JSONB NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, workflow_id)
	)`,
}

// EnsureSchema creates the calendar tables when they are missing.
func EnsureSchema(ctx context.Context, db database.IDatabase) error {
	for _, stmt := range schemaStatements {
		if err := db.ExecContext(ctx, stmt); err != nil {
			logger.Error("CalendarRepository:EnsureSchema:Error", "error", err)
			return err
		}
	}
	logger.Info("CalendarRepository:EnsureSchema:Done", "statements", len(schemaStatements))
	return nil
}
