package database

import (
	"fmt"

	"erochat/config"

	"golang.org/x/crypto/bcrypt"
)

// SeedAdminUser creates the bootstrap admin account from environment
// credentials. Skipped when ADMIN_PASSWORD is unset or the account exists.
func SeedAdminUser(cfg *config.Config) error {
	if cfg.AdminPassword == "" {
		return nil
	}

	var count int
	err := DB.QueryRow("SELECT COUNT(*) FROM users WHERE LOWER(username) = LOWER($1)", cfg.AdminUsername).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check for existing admin user: %w", err)
	}

	if count > 0 {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), 12)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = DB.Exec(
		"INSERT INTO users (username, password_hash, credits, is_admin) VALUES ($1, $2, $3, TRUE)",
		cfg.AdminUsername,
		string(hashedPassword),
		cfg.SignupCredits,
	)
	if err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	return nil
}
