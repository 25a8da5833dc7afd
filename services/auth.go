package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"erochat/database"
	"erochat/models"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,24}$`)

const (
	passwordMinLen = 6
	passwordMaxLen = 128
)

const userColumns = "id, username, password_hash, credits, is_admin, created_at, updated_at"

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Credits,
		&user.IsAdmin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ValidateUsername reports whether the username matches the allowed shape:
// 3-24 chars of letters, numbers, underscore or dash.
func ValidateUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// ValidatePassword reports whether the password length is acceptable.
func ValidatePassword(password string) bool {
	return len(password) >= passwordMinLen && len(password) <= passwordMaxLen
}

func AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)

	user, err := scanUser(database.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE LOWER(username) = LOWER($1)",
		username,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invalid credentials")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	return user, nil
}

// RegisterUser creates an account with the default signup credit grant
// (applied by the credits column default).
func RegisterUser(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)

	if !ValidateUsername(username) {
		return nil, fmt.Errorf("%w: username must be 3-24 chars: letters, numbers, _ or -", ErrInvalidInput)
	}
	if !ValidatePassword(password) {
		return nil, fmt.Errorf("%w: password must be between 6 and 128 characters", ErrInvalidInput)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := scanUser(database.DB.QueryRowContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING "+userColumns,
		username, string(hashedPassword),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	return user, nil
}

func GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	user, err := scanUser(database.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1",
		userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return user, nil
}
