package database

import (
	"fmt"

	"erochat/config"
)

func RunMigrations(cfg *config.Config) error {
	usersSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(24) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		credits INTEGER NOT NULL DEFAULT %d CHECK (credits >= 0),
		is_admin BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Usernames are unique case-insensitively, matching the COLLATE NOCASE
	-- behavior of the original schema.
	CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_idx
		ON users (LOWER(username));
	`, cfg.SignupCredits)

	if _, err := DB.Exec(usersSQL); err != nil {
		return fmt.Errorf("failed to run users migration: %w", err)
	}

	// Migration for users tables created before credit metering existed.
	usersColumnsSQL := fmt.Sprintf(`
	DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name='users' AND column_name='credits') THEN
			ALTER TABLE users ADD COLUMN credits INTEGER NOT NULL DEFAULT %d CHECK (credits >= 0);
		END IF;
		IF NOT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name='users' AND column_name='is_admin') THEN
			ALTER TABLE users ADD COLUMN is_admin BOOLEAN DEFAULT FALSE;
		END IF;
	END $$;
	`, cfg.SignupCredits)

	if _, err := DB.Exec(usersColumnsSQL); err != nil {
		return fmt.Errorf("failed to run users column migration: %w", err)
	}

	// Ensure the reserved admin username actually carries the admin flag.
	_, err := DB.Exec("UPDATE users SET is_admin = TRUE WHERE LOWER(username) = LOWER($1)", cfg.AdminUsername)
	if err != nil {
		return fmt.Errorf("failed to ensure admin user has admin flag: %w", err)
	}

	reservationsSQL := `
	CREATE TABLE IF NOT EXISTS reservations (
		id UUID PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		cost INTEGER NOT NULL,
		kind VARCHAR(20) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS reservations_status_created_idx
		ON reservations (status, created_at);
	`

	if _, err := DB.Exec(reservationsSQL); err != nil {
		return fmt.Errorf("failed to run reservations migration: %w", err)
	}

	return nil
}
