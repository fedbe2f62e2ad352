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

// PaymentRepository handles payment database operations
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreateTx inserts the payment of a booking inside the finalize transaction.
// payments.booking_id is unique, so a second payment for a booking fails with a unique violation.
func (r *PaymentRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now()
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = payment.CreatedAt
	}

	query := `
		INSERT INTO payments (
			id, booking_id, payment_intent_id, payment_method, status,
			payment_date, amount_paid, amount_insurance, currency, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.ExecContext(ctx, query,
		payment.ID, payment.BookingID, payment.PaymentIntentID, payment.PaymentMethod, payment.Status,
		payment.PaymentDate, payment.AmountPaid, payment.AmountInsurance, payment.Currency, payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// GetByBookingID returns the payment of a booking, or nil when there is none
func (r *PaymentRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	query := `
		SELECT id, booking_id, payment_intent_id, payment_method, status,
			payment_date, amount_paid, amount_insurance, currency, created_at
		FROM payments
		WHERE booking_id = $1`

	var payment models.Payment
	err := r.db.GetContext(ctx, &payment, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}
