package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"erochat/database"
	"erochat/models"
)

// Reserve attempts to debit cost from the user's balance. The check and the
// debit are a single conditional UPDATE, so concurrent reservations against
// the same user can never drive the balance negative, with or without other
// server processes running. Returns true iff the debit applied.
func Reserve(ctx context.Context, userID int64, cost int) (bool, error) {
	if cost < 0 {
		return false, fmt.Errorf("%w: negative reservation cost %d", ErrInvalidInput, cost)
	}
	if cost == 0 {
		return true, nil
	}

	res, err := database.DB.ExecContext(ctx,
		"UPDATE users SET credits = credits - $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND credits >= $1",
		cost, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reserve credits: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read reserve result: %w", err)
	}

	return affected == 1, nil
}

// Refund credits cost back to the user's balance. Only used to reverse a
// prior successful Reserve whose paid-for action failed.
func Refund(ctx context.Context, userID int64, cost int) error {
	if cost < 0 {
		return fmt.Errorf("%w: negative refund cost %d", ErrInvalidInput, cost)
	}
	if cost == 0 {
		return nil
	}

	_, err := database.DB.ExecContext(ctx,
		"UPDATE users SET credits = credits + $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
		cost, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to refund credits: %w", err)
	}

	return nil
}

// GetCredits returns the user's current balance with no side effects.
func GetCredits(ctx context.Context, userID int64) (int, error) {
	var credits int
	err := database.DB.QueryRowContext(ctx,
		"SELECT credits FROM users WHERE id = $1",
		userID,
	).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to read credits: %w", err)
	}

	return credits, nil
}

// SetCredits overwrites the user's balance unconditionally. This is the admin
// correction tool: it bypasses the conditional-reserve semantics entirely.
func SetCredits(ctx context.Context, userID int64, credits int) (*models.User, error) {
	if credits < 0 {
		return nil, fmt.Errorf("%w: credits must be non-negative", ErrInvalidInput)
	}

	user, err := scanUser(database.DB.QueryRowContext(ctx,
		"UPDATE users SET credits = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 RETURNING "+userColumns,
		credits, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to set credits: %w", err)
	}

	return user, nil
}

// ListUsers returns all users ordered by username, case-insensitively.
func ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := database.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY LOWER(username)",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.PasswordHash,
			&user.Credits,
			&user.IsAdmin,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}
