package services

import (
	"context"
	"testing"
	"time"

	"erochat/database"
	"erochat/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	reserveQuery       = "UPDATE users SET credits = credits - $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND credits >= $1"
	refundQuery        = "UPDATE users SET credits = credits + $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2"
	getCreditsQuery    = "SELECT credits FROM users WHERE id = $1"
	setCreditsQuery    = "UPDATE users SET credits = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 RETURNING id, username, password_hash, credits, is_admin, created_at, updated_at"
	insertResQuery     = "INSERT INTO reservations (id, user_id, cost, kind, status) VALUES ($1, $2, $3, $4, $5)"
	settleResQuery     = "UPDATE reservations SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND status = $3"
	refundResQuery     = "UPDATE reservations SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND status = $3 RETURNING user_id, cost"
	userColumnsForTest = "id, username, password_hash, credits, is_admin, created_at, updated_at"
)

func newMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		db.Close()
	})

	return mock
}

func TestReserveDebitsWhenBalanceSuffices(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectExec(reserveQuery).
		WithArgs(2, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := Reserve(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveDeclinesWhenBalanceTooLow(t *testing.T) {
	mock := newMockDB(t)

	// The conditional update matches no row: balance untouched.
	mock.ExpectExec(reserveQuery).
		WithArgs(50, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := Reserve(context.Background(), 7, 50)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveZeroCostIsNoOpSuccess(t *testing.T) {
	mock := newMockDB(t)

	ok, err := Reserve(context.Background(), 7, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	// No SQL at all.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRejectsNegativeCost(t *testing.T) {
	newMockDB(t)

	_, err := Reserve(context.Background(), 7, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRefundCreditsBalance(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectExec(refundQuery).
		WithArgs(2, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, Refund(context.Background(), 7, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundZeroCostIsNoOp(t *testing.T) {
	mock := newMockDB(t)

	require.NoError(t, Refund(context.Background(), 7, 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCredits(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectQuery(getCreditsQuery).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(12))

	credits, err := GetCredits(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 12, credits)
}

func TestGetCreditsUnknownUser(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectQuery(getCreditsQuery).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}))

	_, err := GetCredits(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetCreditsOverwritesUnconditionally(t *testing.T) {
	mock := newMockDB(t)

	now := time.Now()
	mock.ExpectQuery(setCreditsQuery).
		WithArgs(500, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "credits", "is_admin", "created_at", "updated_at"}).
			AddRow(int64(7), "karol", "hash", 500, false, now, now))

	user, err := SetCredits(context.Background(), 7, 500)
	require.NoError(t, err)
	assert.Equal(t, 500, user.Credits)
	assert.Equal(t, "karol", user.Username)
}

func TestSetCreditsRejectsNegative(t *testing.T) {
	newMockDB(t)

	_, err := SetCredits(context.Background(), 7, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSetCreditsUnknownUser(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectQuery(setCreditsQuery).
		WithArgs(0, int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "credits", "is_admin", "created_at", "updated_at"}))

	_, err := SetCredits(context.Background(), 99, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUsersOrderedCaseInsensitively(t *testing.T) {
	mock := newMockDB(t)

	now := time.Now()
	mock.ExpectQuery("SELECT " + userColumnsForTest + " FROM users ORDER BY LOWER(username)").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "credits", "is_admin", "created_at", "updated_at"}).
			AddRow(int64(2), "Alice", "h", 5, false, now, now).
			AddRow(int64(1), "bob", "h", 9, true, now, now))

	users, err := ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)
}

func TestBeginReservationRecordsPendingRow(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(reserveQuery).
		WithArgs(3, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertResQuery).
		WithArgs(sqlmock.AnyArg(), int64(7), 3, models.ReservationKindImage, models.ReservationPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, ok, err := BeginReservation(context.Background(), 7, 3, models.ReservationKindImage)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginReservationInsufficientLeavesStateUntouched(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(reserveQuery).
		WithArgs(3, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	id, ok, err := BeginReservation(context.Background(), 7, 3, models.ReservationKindImage)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundReservationReversesDebitOnce(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(refundResQuery).
		WithArgs(models.ReservationRefunded, "res-1", models.ReservationPending).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "cost"}).AddRow(int64(7), 3))
	mock.ExpectExec(refundQuery).
		WithArgs(3, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, RefundReservation(context.Background(), "res-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundReservationAlreadySettledIsNoOp(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(refundResQuery).
		WithArgs(models.ReservationRefunded, "res-1", models.ReservationPending).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "cost"}))
	mock.ExpectRollback()

	require.NoError(t, RefundReservation(context.Background(), "res-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepStaleReservationsRefundsPendingRows(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectQuery("SELECT id FROM reservations WHERE status = $1 AND created_at < CURRENT_TIMESTAMP - $2::interval").
		WithArgs(models.ReservationPending, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("res-1").AddRow("res-2"))

	for _, id := range []string{"res-1", "res-2"} {
		mock.ExpectBegin()
		mock.ExpectQuery(refundResQuery).
			WithArgs(models.ReservationRefunded, id, models.ReservationPending).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "cost"}).AddRow(int64(7), 3))
		mock.ExpectExec(refundQuery).
			WithArgs(3, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	n, err := SweepStaleReservations(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
