package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingRowColumns = []string{
	"id", "traveler_id", "trip_id", "booking_date", "status", "participant_count",
	"trip_cost", "insurance_type", "insurance_amount", "total_price", "currency",
	"payment_intent_id", "pending_payload", "needs_review", "review_reason",
	"confirmed_at", "cancelled_at", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func bookingRow(id uuid.UUID, status models.BookingStatus, intentID interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(bookingRowColumns).AddRow(
		id.String(), uuid.New().String(), uuid.New().String(), now, string(status), 2,
		200.0, "basic", 20.0, 220.0, "eur",
		intentID, nil, false, nil,
		nil, nil, now, now,
	)
}

func TestBookingRepositoryCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	t.Run("Success", func(t *testing.T) {
		booking := &models.Booking{
			TravelerID:       uuid.New(),
			TripID:           uuid.New(),
			BookingDate:      time.Now(),
			Status:           models.BookingStatusPending,
			ParticipantCount: 2,
			TripCost:         200,
			InsuranceType:    "basic",
			InsuranceAmount:  20,
			TotalPrice:       220,
			Currency:         "eur",
		}

		mock.ExpectExec(`INSERT INTO bookings`).
			WithArgs(sqlmock.AnyArg(), booking.TravelerID, booking.TripID, sqlmock.AnyArg(), "PENDING", 2,
				200.0, "basic", 20.0, 220.0, "eur", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), booking)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, booking.ID)
		assert.False(t, booking.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO bookings`).WillReturnError(fmt.Errorf("database error"))

		err := repo.Create(context.Background(), &models.Booking{Status: models.BookingStatusPending})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert booking")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepositorySetPaymentIntent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	id := uuid.New()

	t.Run("Pending booking", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings\s+SET payment_intent_id`).
			WithArgs(id, "pi_123").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.SetPaymentIntent(context.Background(), id, "pi_123"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("No longer pending", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings\s+SET payment_intent_id`).
			WithArgs(id, "pi_123").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SetPaymentIntent(context.Background(), id, "pi_123")
		assert.True(t, models.IsConflict(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepositoryTransitionStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	id := uuid.New()

	t.Run("Swapped", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings\s+SET status`).
			WithArgs(id, models.BookingStatusPending, models.BookingStatusCancelled).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.TransitionStatus(context.Background(), id, models.BookingStatusPending, models.BookingStatusCancelled)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Lost the race", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings\s+SET status`).
			WithArgs(id, models.BookingStatusPending, models.BookingStatusFailed).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.TransitionStatus(context.Background(), id, models.BookingStatusPending, models.BookingStatusFailed)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Terminal status never moves", func(t *testing.T) {
		ok, err := repo.TransitionStatus(context.Background(), id, models.BookingStatusConfirmed, models.BookingStatusCancelled)
		assert.Error(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryLockForFinalize(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	id := uuid.New()
	lockQuery := regexp.QuoteMeta(`FROM bookings WHERE id = $1 FOR UPDATE NOWAIT`)

	t.Run("Locked", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WithArgs(id).WillReturnRows(bookingRow(id, models.BookingStatusPending, "pi_1"))
		mock.ExpectRollback()

		tx, err := repo.BeginTx(context.Background())
		require.NoError(t, err)
		booking, err := repo.LockForFinalize(context.Background(), tx, id)
		require.NoError(t, err)
		require.NotNil(t, booking)
		assert.Equal(t, id, booking.ID)
		assert.Equal(t, models.BookingStatusPending, booking.Status)
		require.NotNil(t, booking.PaymentIntentID)
		assert.Equal(t, "pi_1", *booking.PaymentIntentID)
		assert.Nil(t, booking.PendingPayload)
		require.NoError(t, tx.Rollback())
	})

	t.Run("Contended", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WithArgs(id).WillReturnError(&pq.Error{Code: pqLockNotAvailable})
		mock.ExpectRollback()

		tx, err := repo.BeginTx(context.Background())
		require.NoError(t, err)
		booking, err := repo.LockForFinalize(context.Background(), tx, id)
		assert.Nil(t, booking)
		assert.ErrorIs(t, err, ErrLockNotAvailable)
		require.NoError(t, tx.Rollback())
	})

	t.Run("Missing", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WithArgs(id).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		tx, err := repo.BeginTx(context.Background())
		require.NoError(t, err)
		booking, err := repo.LockForFinalize(context.Background(), tx, id)
		assert.NoError(t, err)
		assert.Nil(t, booking)
		require.NoError(t, tx.Rollback())
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkConfirmedTx(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	id := uuid.New()
	reason := models.ReviewReasonOverbooked

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings\s+SET status = 'CONFIRMED'`).
		WithArgs(id, true, &reason).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bookings\s+SET status = 'CONFIRMED'`).
		WithArgs(id, false, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := repo.BeginTx(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.MarkConfirmedTx(context.Background(), tx, id, &reason))

	err = repo.MarkConfirmedTx(context.Background(), tx, id, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no longer pending")

	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryQueries(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	t.Run("GetByID not found", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WithArgs(id).WillReturnError(sql.ErrNoRows)

		booking, err := repo.GetByID(context.Background(), id)
		assert.NoError(t, err)
		assert.Nil(t, booking)
	})

	t.Run("GetByPaymentIntentID", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`FROM bookings WHERE payment_intent_id = \$1`).
			WithArgs("pi_42").
			WillReturnRows(bookingRow(id, models.BookingStatusConfirmed, "pi_42"))

		booking, err := repo.GetByPaymentIntentID(context.Background(), "pi_42")
		require.NoError(t, err)
		require.NotNil(t, booking)
		assert.Equal(t, id, booking.ID)
		assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
	})

	t.Run("ListByTraveler", func(t *testing.T) {
		travelerID := uuid.New()
		first, second := uuid.New(), uuid.New()
		now := time.Now()
		rows := sqlmock.NewRows(bookingRowColumns).
			AddRow(first.String(), travelerID.String(), uuid.New().String(), now, "CONFIRMED", 1,
				100.0, "none", 0.0, 100.0, "eur", "pi_a", nil, false, nil, now, nil, now, now).
			AddRow(second.String(), travelerID.String(), uuid.New().String(), now, "PENDING", 3,
				300.0, "full", 105.0, 405.0, "eur", nil, nil, true, "overbooked", nil, nil, now, now)

		mock.ExpectQuery(`ORDER BY created_at DESC, id DESC`).
			WithArgs(travelerID, 20, 0).
			WillReturnRows(rows)

		bookings, err := repo.ListByTraveler(context.Background(), travelerID, 20, 0)
		require.NoError(t, err)
		require.Len(t, bookings, 2)
		assert.Equal(t, first, bookings[0].ID)
		assert.Nil(t, bookings[1].PaymentIntentID)
		require.NotNil(t, bookings[1].ReviewReason)
		assert.Equal(t, "overbooked", *bookings[1].ReviewReason)
	})

	t.Run("ExpireStalePending", func(t *testing.T) {
		expired := uuid.New()
		cutoff := time.Now().Add(-24 * time.Hour)
		mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
			WithArgs(cutoff, 100).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(expired.String()))

		ids, err := repo.ExpireStalePending(context.Background(), cutoff, 100)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{expired}, ids)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
