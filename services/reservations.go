package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"erochat/database"
	"erochat/models"

	"github.com/google/uuid"
)

// BeginReservation debits cost from the user and records a pending
// reservation row in the same transaction, so a crash between the debit and
// the upstream call's outcome leaves an auditable row instead of a silently
// lost credit. Returns the reservation id and true iff the debit applied.
func BeginReservation(ctx context.Context, userID int64, cost int, kind string) (string, bool, error) {
	if cost < 0 {
		return "", false, fmt.Errorf("%w: negative reservation cost %d", ErrInvalidInput, cost)
	}
	if cost == 0 {
		return "", true, nil
	}

	tx, err := database.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to begin reservation: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE users SET credits = credits - $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND credits >= $1",
		cost, userID,
	)
	if err != nil {
		return "", false, fmt.Errorf("failed to reserve credits: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to read reserve result: %w", err)
	}
	if affected != 1 {
		return "", false, nil
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO reservations (id, user_id, cost, kind, status) VALUES ($1, $2, $3, $4, $5)",
		id, userID, cost, kind, models.ReservationPending,
	)
	if err != nil {
		return "", false, fmt.Errorf("failed to record reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("failed to commit reservation: %w", err)
	}

	return id, true, nil
}

// CommitReservation marks a pending reservation as committed: the debit
// stands because the paid-for upstream call succeeded.
func CommitReservation(ctx context.Context, reservationID string) error {
	return setReservationStatus(ctx, reservationID, models.ReservationCommitted)
}

// RefundReservation credits the reservation's cost back and marks the row
// refunded, in one transaction. Safe to call only once per reservation; the
// status guard makes a repeat call a no-op.
func RefundReservation(ctx context.Context, reservationID string) error {
	tx, err := database.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin refund: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	var cost int
	err = tx.QueryRowContext(ctx,
		"UPDATE reservations SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND status = $3 RETURNING user_id, cost",
		models.ReservationRefunded, reservationID, models.ReservationPending,
	).Scan(&userID, &cost)
	if errors.Is(err, sql.ErrNoRows) {
		// Already committed or refunded: nothing to reverse.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to settle reservation %s: %w", reservationID, err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE users SET credits = credits + $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
		cost, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to refund credits: %w", err)
	}

	return tx.Commit()
}

func setReservationStatus(ctx context.Context, reservationID, status string) error {
	_, err := database.DB.ExecContext(ctx,
		"UPDATE reservations SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND status = $3",
		status, reservationID, models.ReservationPending,
	)
	if err != nil {
		return fmt.Errorf("failed to update reservation %s: %w", reservationID, err)
	}
	return nil
}

// SweepStaleReservations refunds every reservation left pending longer than
// the grace period. Run at startup and on a timer so a process crash between
// debit and refund cannot leak credits permanently.
func SweepStaleReservations(ctx context.Context, grace time.Duration) (int, error) {
	rows, err := database.DB.QueryContext(ctx,
		"SELECT id FROM reservations WHERE status = $1 AND created_at < CURRENT_TIMESTAMP - $2::interval",
		models.ReservationPending, fmt.Sprintf("%f seconds", grace.Seconds()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale reservations: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to scan reservation id: %w", err)
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate stale reservations: %w", err)
	}

	refunded := 0
	for _, id := range stale {
		if err := RefundReservation(ctx, id); err != nil {
			slog.Error("Failed to refund stale reservation", "reservation_id", id, "error", err)
			continue
		}
		refunded++
	}

	return refunded, nil
}

// StartReservationSweeper runs the stale-reservation sweep on a ticker until
// the context is cancelled.
func StartReservationSweeper(ctx context.Context, interval, grace time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := SweepStaleReservations(ctx, grace)
				if err != nil {
					slog.Error("Reservation sweep failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("Refunded stale reservations", "count", n)
				}
			}
		}
	}()
}
