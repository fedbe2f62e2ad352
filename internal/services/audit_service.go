package services

import (
	"context"
	"time"

	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Auditor records payment workflow events
type Auditor interface {
	Record(ctx context.Context, audit *models.PaymentAudit)
}

// RequestMeta carries the caller details attached to audit entries
type RequestMeta struct {
	IPAddress     string
	UserAgent     string
	ClientDevice  string
	CorrelationID string
}

// Apply copies the metadata onto an audit entry
func (m RequestMeta) Apply(audit *models.PaymentAudit) *models.PaymentAudit {
	return audit.SetMetadata(m.IPAddress, m.UserAgent, m.ClientDevice, m.CorrelationID)
}

// AuditService writes payment audits to the payment_audits table.
// A failed write is logged with the full entry and never fails the caller.
type AuditService struct {
	repo   *database.PaymentAuditRepository
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(repo *database.PaymentAuditRepository, logger *logrus.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
	}
}

// Record implements Auditor
func (s *AuditService) Record(ctx context.Context, audit *models.PaymentAudit) {
	// The entry must land even if the request context was cancelled mid-flight
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.repo.Log(writeCtx, audit); err != nil {
		s.logger.WithFields(logrus.Fields{
			"event_type":        audit.EventType,
			"booking_id":        audit.BookingID,
			"payment_intent_id": audit.PaymentIntentID,
			"event_id":          audit.EventID,
			"requires_review":   audit.RequiresReview,
			"error_message":     audit.ErrorMessage,
		}).Error("AUDIT ERROR: payment audit entry lost")
	}
}

// OpenReviews lists unresolved entries on the review queue
func (s *AuditService) OpenReviews(ctx context.Context, limit int) ([]*models.PaymentAudit, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.ListOpenReviews(ctx, limit)
}

// ResolveReview marks a review entry as handled
func (s *AuditService) ResolveReview(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Resolve(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("audit_id", id).Info("Review entry resolved")
	return nil
}

// BookingTrail returns every audit entry recorded for a booking, oldest first
func (s *AuditService) BookingTrail(ctx context.Context, bookingID uuid.UUID) ([]*models.PaymentAudit, error) {
	return s.repo.GetByBookingID(ctx, bookingID)
}
