package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciliationRunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Expires stale bookings", func(t *testing.T) {
		db, mock := newTestDB(t)
		auditor := &recordingAuditor{}
		service := NewBookingReconciliationService(database.NewBookingRepository(db), auditor, 24*time.Hour, time.Hour, quietLogger())
		service.now = func() time.Time { return now }

		first, second := uuid.New(), uuid.New()
		mock.ExpectQuery(`SET status = 'FAILED'`).
			WithArgs(now.Add(-24*time.Hour), reconcileBatchSize).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(first.String()).AddRow(second.String()))

		expired := service.RunOnce(ctx)
		assert.Equal(t, 2, expired)
		assert.Equal(t, 2, auditor.count(models.PaymentEventBookingExpired))

		entry := auditor.find(models.PaymentEventBookingExpired)
		require.NotNil(t, entry)
		assert.Equal(t, first, *entry.BookingID)
		assert.Equal(t, "2026-04-30T12:00:00Z", entry.Details["cutoff"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Nothing to expire", func(t *testing.T) {
		db, mock := newTestDB(t)
		auditor := &recordingAuditor{}
		service := NewBookingReconciliationService(database.NewBookingRepository(db), auditor, time.Hour, time.Hour, quietLogger())

		mock.ExpectQuery(`SET status = 'FAILED'`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		assert.Zero(t, service.RunOnce(ctx))
		assert.Empty(t, auditor.types())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database failure is logged", func(t *testing.T) {
		db, mock := newTestDB(t)
		service := NewBookingReconciliationService(database.NewBookingRepository(db), &recordingAuditor{}, time.Hour, time.Hour, quietLogger())

		mock.ExpectQuery(`SET status = 'FAILED'`).WillReturnError(errors.New("connection refused"))

		assert.Zero(t, service.RunOnce(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReconciliationStartStop(t *testing.T) {
	db, mock := newTestDB(t)
	service := NewBookingReconciliationService(database.NewBookingRepository(db), &recordingAuditor{}, time.Hour, time.Hour, quietLogger())

	mock.ExpectQuery(`SET status = 'FAILED'`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	require.NoError(t, service.Start())
	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 10*time.Millisecond)

	service.Stop()
	service.Stop()
}
