package database

import (
	"context"
	"fmt"
	"time"

	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const auditColumns = `
	id, booking_id, payment_intent_id, event_id,
	event_type, event_source,
	expected_amount, received_amount, currency, amounts_match,
	details, raw_body,
	error_message, error_code,
	processing_time_ms, is_duplicate, idempotency_key,
	ip_address, user_agent, client_device, correlation_id,
	requires_review, resolved_at,
	created_at, processed_at`

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log creates a new payment audit entry.
// Payment events must never be dropped silently, so a failed insert is logged at error level.
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (` + auditColumns + `
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, $9, $10,
			$11, $12,
			$13, $14,
			$15, $16, $17,
			$18, $19, $20, $21,
			$22, $23,
			$24, $25
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.BookingID, audit.PaymentIntentID, audit.EventID,
		audit.EventType, audit.EventSource,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.Currency, audit.AmountsMatch,
		audit.Details, audit.RawBody,
		audit.ErrorMessage, audit.ErrorCode,
		audit.ProcessingTimeMs, audit.IsDuplicate, audit.IdempotencyKey,
		audit.IPAddress, audit.UserAgent, audit.ClientDevice, audit.CorrelationID,
		audit.RequiresReview, audit.ResolvedAt,
		audit.CreatedAt, audit.ProcessedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":        audit.EventType,
			"booking_id":        audit.BookingID,
			"payment_intent_id": audit.PaymentIntentID,
		}).Error("CRITICAL: Failed to log payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
	}).Debug("Payment audit logged")

	return nil
}

// GetByBookingID retrieves the audit trail of a booking, oldest first
func (r *PaymentAuditRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*models.PaymentAudit, error) {
	audits := make([]*models.PaymentAudit, 0)
	query := `SELECT ` + auditColumns + ` FROM payment_audits WHERE booking_id = $1 ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &audits, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get audits by booking: %w", err)
	}
	return audits, nil
}

// ListOpenReviews returns unresolved entries on the review queue, oldest first
func (r *PaymentAuditRepository) ListOpenReviews(ctx context.Context, limit int) ([]*models.PaymentAudit, error) {
	audits := make([]*models.PaymentAudit, 0)
	query := `
		SELECT ` + auditColumns + `
		FROM payment_audits
		WHERE requires_review = TRUE AND resolved_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &audits, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list open reviews: %w", err)
	}
	return audits, nil
}

// Resolve closes a review entry. Returns a NotFoundError when no open entry has that id.
func (r *PaymentAuditRepository) Resolve(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE payment_audits
		SET resolved_at = NOW()
		WHERE id = $1 AND requires_review = TRUE AND resolved_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to resolve review: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return &models.NotFoundError{Resource: "review", ID: id.String()}
	}
	return nil
}
