package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// rowScanner is satisfied by *sql.Row, *sql.Rows and their sqlx counterparts
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const bookingColumns = `
	id, traveler_id, trip_id, booking_date, status, participant_count,
	trip_cost, insurance_type, insurance_amount, total_price, currency,
	payment_intent_id, pending_payload, needs_review, review_reason,
	confirmed_at, cancelled_at, created_at, updated_at`

// BookingRepository handles booking database operations
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// BeginTx starts a transaction for multi-table booking operations
func (r *BookingRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

// ============================================================================
// CREATE / UPDATE
// ============================================================================

// Create inserts a new booking. ID and timestamps are assigned here.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	now := time.Now()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	query := `
		INSERT INTO bookings (
			id, traveler_id, trip_id, booking_date, status, participant_count,
			trip_cost, insurance_type, insurance_amount, total_price, currency,
			pending_payload, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`

	_, err := r.db.ExecContext(ctx, query,
		booking.ID, booking.TravelerID, booking.TripID, booking.BookingDate, booking.Status, booking.ParticipantCount,
		booking.TripCost, booking.InsuranceType, booking.InsuranceAmount, booking.TotalPrice, booking.Currency,
		booking.PendingPayload, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// SetPaymentIntent stores the gateway intent id on a booking that is still pending
func (r *BookingRepository) SetPaymentIntent(ctx context.Context, bookingID uuid.UUID, intentID string) error {
	query := `
		UPDATE bookings
		SET payment_intent_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	result, err := r.db.ExecContext(ctx, query, bookingID, intentID)
	if err != nil {
		return fmt.Errorf("failed to set payment intent: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &models.ConflictError{Resource: "booking", Msg: "booking is no longer pending"}
	}
	return nil
}

// TransitionStatus moves a booking from one status to another with a compare-and-swap.
// Returns false when the booking was not in the expected status.
func (r *BookingRepository) TransitionStatus(ctx context.Context, bookingID uuid.UUID, from, to models.BookingStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("invalid booking transition %s -> %s", from, to)
	}

	query := `
		UPDATE bookings
		SET status = $3,
			cancelled_at = CASE WHEN $3 IN ('CANCELLED', 'FAILED') THEN NOW() ELSE cancelled_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, bookingID, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ExpireStalePending fails PENDING bookings created before cutoff.
// Rows locked by an in-flight finalization are skipped and picked up next run.
func (r *BookingRepository) ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		UPDATE bookings
		SET status = 'FAILED', cancelled_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM bookings
			WHERE status = 'PENDING' AND created_at < $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id`

	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to expire pending bookings: %w", err)
	}
	return ids, nil
}

// ============================================================================
// FINALIZATION (transaction scoped)
// ============================================================================

// LockForFinalize takes an exclusive lock on the booking row without waiting.
// Returns ErrLockNotAvailable when another transaction holds it.
func (r *BookingRepository) LockForFinalize(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE NOWAIT`

	booking, err := scanBooking(tx.QueryRowxContext(ctx, query, bookingID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		if IsLockContention(err) {
			return nil, ErrLockNotAvailable
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return booking, nil
}

// MarkConfirmedTx sets a pending booking CONFIRMED inside the finalize transaction
func (r *BookingRepository) MarkConfirmedTx(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID, reviewReason *string) error {
	query := `
		UPDATE bookings
		SET status = 'CONFIRMED', confirmed_at = NOW(), updated_at = NOW(),
			needs_review = $2, review_reason = $3
		WHERE id = $1 AND status = 'PENDING'`

	result, err := tx.ExecContext(ctx, query, bookingID, reviewReason != nil, reviewReason)
	if err != nil {
		return fmt.Errorf("failed to confirm booking: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("booking %s is no longer pending", bookingID)
	}
	return nil
}

// ============================================================================
// QUERIES
// ============================================================================

// GetByID retrieves a booking by ID. Returns nil when absent.
func (r *BookingRepository) GetByID(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.db.QueryRowxContext(ctx, query, bookingID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// GetByPaymentIntentID retrieves the booking a gateway intent was created for
func (r *BookingRepository) GetByPaymentIntentID(ctx context.Context, intentID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_intent_id = $1`

	booking, err := scanBooking(r.db.QueryRowxContext(ctx, query, intentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by payment intent: %w", err)
	}
	return booking, nil
}

// ListByTraveler returns a traveler's bookings, newest first
func (r *BookingRepository) ListByTraveler(ctx context.Context, travelerID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE traveler_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryxContext(ctx, query, travelerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*models.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}

	return bookings, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.TravelerID, &b.TripID, &b.BookingDate, &b.Status, &b.ParticipantCount,
		&b.TripCost, &b.InsuranceType, &b.InsuranceAmount, &b.TotalPrice, &b.Currency,
		&b.PaymentIntentID, &b.PendingPayload, &b.NeedsReview, &b.ReviewReason,
		&b.ConfirmedAt, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
