package sqlite

import (
	"context"
	"fmt"
)

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			login TEXT NOT NULL,
			plain_password TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			email_plain_password TEXT NOT NULL DEFAULT '',
			facebook_id TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			two_fa_token TEXT NOT NULL DEFAULT '',
			gender TEXT NOT NULL DEFAULT '',
			geo TEXT NOT NULL DEFAULT '',
			account_status TEXT NOT NULL DEFAULT '',
			uploaded_at INTEGER,
			last_activity_at INTEGER,
			cookie_json TEXT,
			vision_fingerprint TEXT NOT NULL DEFAULT '',
			vision_profile_id TEXT NOT NULL DEFAULT '',
			profile_state TEXT NOT NULL DEFAULT 'no_profile',
			profile_synced_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (kind, login)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_activity
			ON accounts (kind, account_status, last_activity_at);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value_json TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
