package models

import "time"

// Reservation is the audit row for the window between debiting credits and
// learning whether the upstream call they paid for succeeded. A row that
// stays pending past the grace period is refunded by the recovery sweep.
type Reservation struct {
	ID        string    `db:"id"`
	UserID    int64     `db:"user_id"`
	Cost      int       `db:"cost"`
	Kind      string    `db:"kind"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

const (
	ReservationKindChat  = "chat"
	ReservationKindImage = "image"
	ReservationKindVideo = "video"
)

const (
	ReservationPending   = "pending"
	ReservationCommitted = "committed"
	ReservationRefunded  = "refunded"
)
