package postgres

import (
	"context"
	"fmt"
)

func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS participants (
			id VARCHAR(64) PRIMARY KEY,
			display_name VARCHAR(64) NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			sender_id VARCHAR(64) NOT NULL,
			receiver_id VARCHAR(64) NOT NULL,
			ciphertext BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			read_at TIMESTAMPTZ,
			CHECK (sender_id <> receiver_id),
			CHECK (is_read = (read_at IS NOT NULL))
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_pair
		ON messages (LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id), id)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_unread
		ON messages (receiver_id)
		WHERE is_read = FALSE`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
