package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adventuretogether/booking-backend/internal/cache"
	"github.com/adventuretogether/booking-backend/internal/config"
	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/adventuretogether/booking-backend/internal/events"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/adventuretogether/booking-backend/pkg/validator"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PaymentSucceeded is a verified payment_intent.succeeded notification
type PaymentSucceeded struct {
	EventID       string
	IntentID      string
	Amount        int64 // minor units
	Currency      string
	PaymentMethod string
	Metadata      map[string]string
}

// FinalizeOutcome tells the webhook handler what happened to a delivery
type FinalizeOutcome string

const (
	FinalizeConfirmed        FinalizeOutcome = "confirmed"
	FinalizeAlreadyConfirmed FinalizeOutcome = "already_confirmed"
	FinalizeDiscarded        FinalizeOutcome = "discarded"
)

// FinalizeResult is returned for every delivery that did not fail
type FinalizeResult struct {
	Outcome      FinalizeOutcome `json:"outcome"`
	BookingID    uuid.UUID       `json:"booking_id,omitempty"`
	NeedsReview  bool            `json:"needs_review,omitempty"`
	ReviewReason string          `json:"review_reason,omitempty"`
}

// errLockBusy means the distributed finalize lock is held elsewhere
var errLockBusy = errors.New("finalize lock is held")

// confirmation is what a committed finalize transaction leaves for the post-commit steps
type confirmation struct {
	booking        *models.Booking
	trip           *models.Trip
	payment        *models.Payment
	overbooked     bool
	capacityBefore int
	amountsMatch   bool
}

// BookingFinalizerService turns a successful payment into a confirmed booking
type BookingFinalizerService struct {
	bookings     *database.BookingRepository
	participants *database.ParticipantRepository
	payments     *database.PaymentRepository
	trips        *database.TripRepository
	travelers    *database.TravelerRepository
	serializer   *BookingSerializer
	locker       cache.Locker
	auditor      Auditor
	publisher    events.Publisher
	logger       *logrus.Logger

	maxAttempts   int
	backoff       time.Duration
	lockTTL       time.Duration
	notifyTimeout time.Duration
	now           func() time.Time
}

// NewBookingFinalizerService creates a new BookingFinalizerService
func NewBookingFinalizerService(
	bookings *database.BookingRepository,
	participants *database.ParticipantRepository,
	payments *database.PaymentRepository,
	trips *database.TripRepository,
	travelers *database.TravelerRepository,
	serializer *BookingSerializer,
	locker cache.Locker,
	auditor Auditor,
	publisher events.Publisher,
	cfg config.BookingConfig,
	lockTTL time.Duration,
	logger *logrus.Logger,
) *BookingFinalizerService {
	maxAttempts := cfg.FinalizeMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &BookingFinalizerService{
		bookings:      bookings,
		participants:  participants,
		payments:      payments,
		trips:         trips,
		travelers:     travelers,
		serializer:    serializer,
		locker:        locker,
		auditor:       auditor,
		publisher:     publisher,
		logger:        logger,
		maxAttempts:   maxAttempts,
		backoff:       cfg.FinalizeBackoff,
		lockTTL:       lockTTL,
		notifyTimeout: 10 * time.Second,
		now:           time.Now,
	}
}

// Finalize confirms the booking paid for by ev. Repeated deliveries of the same
// payment leave exactly one participant set, one payment and one capacity decrement.
//
// Errors: *models.IntegrityError when the payload can't be trusted, models.ErrContention
// when the booking stayed locked through every retry. Both should be answered so the
// gateway re-delivers.
func (s *BookingFinalizerService) Finalize(ctx context.Context, ev PaymentSucceeded) (*FinalizeResult, error) {
	start := time.Now()
	log := s.logger.WithFields(logrus.Fields{
		"event_id":          ev.EventID,
		"payment_intent_id": ev.IntentID,
	})

	booking, err := findBookingForIntent(ctx, s.bookings, ev.IntentID, ev.Metadata)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return s.notFound(ctx, ev, start), nil
	}

	log = log.WithField("booking_id", booking.ID)

	for attempt := 1; ; attempt++ {
		result, done, err := s.attempt(ctx, booking.ID, ev, start)
		if err == nil {
			if done != nil {
				s.afterCommit(ctx, ev, done, start)
			}
			return result, nil
		}

		if !errors.Is(err, errLockBusy) && !database.IsLockContention(err) {
			return nil, err
		}
		if attempt >= s.maxAttempts {
			log.WithField("attempts", attempt).Warn("Booking still locked, giving up for this delivery")
			return nil, fmt.Errorf("%w: booking %s", models.ErrContention, booking.ID)
		}

		log.WithField("attempt", attempt).Debug("Booking locked, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
}

// findBookingForIntent finds the booking by intent id, then by the booking reference in metadata.
// The fallback covers a crash between creating the intent and storing its id.
func findBookingForIntent(ctx context.Context, bookings *database.BookingRepository, intentID string, metadata map[string]string) (*models.Booking, error) {
	if intentID != "" {
		booking, err := bookings.GetByPaymentIntentID(ctx, intentID)
		if err != nil || booking != nil {
			return booking, err
		}
	}

	ref, ok := metadata[MetadataBookingID]
	if !ok {
		return nil, nil
	}
	bookingID, err := uuid.Parse(ref)
	if err != nil {
		return nil, nil
	}
	return bookings.GetByID(ctx, bookingID)
}

// attempt runs one locked finalize transaction. A non-nil confirmation means it committed.
func (s *BookingFinalizerService) attempt(ctx context.Context, bookingID uuid.UUID, ev PaymentSucceeded, start time.Time) (*FinalizeResult, *confirmation, error) {
	token, acquired, err := s.locker.Acquire(ctx, bookingID, s.lockTTL)
	if err != nil {
		// The row lock below still serializes finalization when redis is unavailable
		s.logger.WithError(err).WithField("booking_id", bookingID).Warn("Finalize lock unavailable, relying on row lock")
	} else if !acquired {
		return nil, nil, errLockBusy
	} else {
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), bookingID, token); err != nil {
				s.logger.WithError(err).WithField("booking_id", bookingID).Warn("Failed to release finalize lock")
			}
		}()
	}

	tx, err := s.bookings.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	booking, err := s.bookings.LockForFinalize(ctx, tx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil {
		return s.notFound(ctx, ev, start), nil, nil
	}

	switch booking.Status {
	case models.BookingStatusConfirmed:
		return s.duplicate(ctx, booking, ev, start), nil, nil
	case models.BookingStatusFailed, models.BookingStatusCancelled:
		s.logger.WithFields(logrus.Fields{
			"booking_id":        booking.ID,
			"status":            booking.Status,
			"payment_intent_id": ev.IntentID,
		}).Warn("Payment succeeded for a booking that is no longer pending")
		audit := models.NewPaymentAudit(models.PaymentEventBookingNotPending, models.PaymentSourceStripeWebhook).
			SetBooking(booking.ID).
			SetPaymentIntent(ev.IntentID).
			SetEventID(ev.EventID).
			SetDetails(map[string]interface{}{"status": string(booking.Status)}).
			SetProcessingTime(start).
			MarkForReview()
		audit.SetAmounts(booking.TotalPrice, FromMinorUnits(ev.Amount), ev.Currency)
		s.auditor.Record(ctx, audit)
		return &FinalizeResult{Outcome: FinalizeDiscarded, BookingID: booking.ID}, nil, nil
	}

	payload, err := s.resolvePayload(booking, ev.Metadata)
	if err != nil {
		return nil, nil, s.integrityFailure(ctx, booking, ev, err, start)
	}

	participants, err := participantsFromPayload(booking.ID, payload)
	if err != nil {
		return nil, nil, s.integrityFailure(ctx, booking, ev, err, start)
	}
	if err := s.participants.CreateBatchTx(ctx, tx, participants); err != nil {
		return nil, nil, err
	}

	currency := ev.Currency
	if currency == "" {
		currency = booking.Currency
	}
	payment := &models.Payment{
		BookingID:       booking.ID,
		PaymentIntentID: ev.IntentID,
		Status:          models.PaymentStatusPaid,
		PaymentDate:     s.now(),
		AmountPaid:      FromMinorUnits(ev.Amount),
		AmountInsurance: payload.InsuranceAmount,
		Currency:        currency,
	}
	if ev.PaymentMethod != "" {
		payment.PaymentMethod = &ev.PaymentMethod
	}
	if err := s.payments.CreateTx(ctx, tx, payment); err != nil {
		if database.IsUniqueViolation(err) {
			return s.duplicate(ctx, booking, ev, start), nil, nil
		}
		return nil, nil, err
	}

	trip, err := s.trips.LockForUpdateTx(ctx, tx, booking.TripID)
	if err != nil {
		return nil, nil, err
	}
	if trip == nil {
		return nil, nil, fmt.Errorf("trip %s of booking %s not found", booking.TripID, booking.ID)
	}

	done := &confirmation{
		booking:        booking,
		trip:           trip,
		payment:        payment,
		capacityBefore: trip.RemainingCapacity,
		amountsMatch:   models.AmountsEqual(booking.TotalPrice, payment.AmountPaid),
	}

	// The money is already taken, so an over-booked trip is confirmed anyway and flagged
	trip.RemainingCapacity -= booking.ParticipantCount
	if trip.RemainingCapacity < 0 {
		trip.RemainingCapacity = 0
		done.overbooked = true
	}
	trip.State = trip.NextState()
	if err := s.trips.UpdateCapacityTx(ctx, tx, trip); err != nil {
		return nil, nil, err
	}

	var reviewReason *string
	switch {
	case done.overbooked:
		reason := models.ReviewReasonOverbooked
		reviewReason = &reason
	case !done.amountsMatch:
		reason := models.ReviewReasonAmountMismatch
		reviewReason = &reason
	}
	if err := s.bookings.MarkConfirmedTx(ctx, tx, booking.ID, reviewReason); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		if database.IsUniqueViolation(err) {
			return s.duplicate(ctx, booking, ev, start), nil, nil
		}
		return nil, nil, fmt.Errorf("failed to commit finalization: %w", err)
	}
	committed = true

	now := s.now()
	booking.Status = models.BookingStatusConfirmed
	booking.ConfirmedAt = &now
	booking.PaymentIntentID = &ev.IntentID
	booking.NeedsReview = reviewReason != nil
	booking.ReviewReason = reviewReason

	result := &FinalizeResult{
		Outcome:     FinalizeConfirmed,
		BookingID:   booking.ID,
		NeedsReview: booking.NeedsReview,
	}
	if reviewReason != nil {
		result.ReviewReason = *reviewReason
	}
	return result, done, nil
}

// notFound records a payment nobody can match to a booking. Money was taken, so it goes to review.
func (s *BookingFinalizerService) notFound(ctx context.Context, ev PaymentSucceeded, start time.Time) *FinalizeResult {
	s.logger.WithFields(logrus.Fields{
		"event_id":          ev.EventID,
		"payment_intent_id": ev.IntentID,
	}).Warn("Payment succeeded for an unknown booking")

	audit := models.NewPaymentAudit(models.PaymentEventBookingNotFound, models.PaymentSourceStripeWebhook).
		SetPaymentIntent(ev.IntentID).
		SetEventID(ev.EventID).
		SetDetails(metadataDetails(ev.Metadata)).
		SetProcessingTime(start).
		MarkForReview()
	audit.SetAmounts(0, FromMinorUnits(ev.Amount), ev.Currency)
	s.auditor.Record(ctx, audit)

	return &FinalizeResult{Outcome: FinalizeDiscarded}
}

// duplicate records a repeated delivery for an already confirmed booking
func (s *BookingFinalizerService) duplicate(ctx context.Context, booking *models.Booking, ev PaymentSucceeded, start time.Time) *FinalizeResult {
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"event_id":   ev.EventID,
	}).Info("Duplicate payment delivery for confirmed booking")

	audit := models.NewPaymentAudit(models.PaymentEventDuplicateDelivery, models.PaymentSourceStripeWebhook).
		SetBooking(booking.ID).
		SetPaymentIntent(ev.IntentID).
		SetEventID(ev.EventID).
		SetProcessingTime(start).
		MarkAsDuplicate()
	s.auditor.Record(ctx, audit)

	return &FinalizeResult{Outcome: FinalizeAlreadyConfirmed, BookingID: booking.ID}
}

// resolvePayload decodes the payload from metadata, or from the booking row when
// metadata only carries a reference. The payload must describe this booking.
func (s *BookingFinalizerService) resolvePayload(booking *models.Booking, metadata map[string]string) (*models.BookingPayload, error) {
	var payload *models.BookingPayload
	if PayloadStoredOnRow(metadata) {
		if booking.PendingPayload == nil {
			return nil, &models.DeserializationError{Msg: "payload reference points to a booking without a stored payload"}
		}
		if err := checkPayload(booking.PendingPayload); err != nil {
			return nil, &models.DeserializationError{Msg: "stored payload failed validation", Err: err}
		}
		payload = booking.PendingPayload
	} else {
		decoded, err := s.serializer.Deserialize(metadata)
		if err != nil {
			return nil, err
		}
		payload = decoded
	}

	if payload.BookingID != booking.ID {
		return nil, fmt.Errorf("payload booking %s does not match booking %s", payload.BookingID, booking.ID)
	}
	if len(payload.Participants) != booking.ParticipantCount {
		return nil, fmt.Errorf("payload has %d participants, booking has %d", len(payload.Participants), booking.ParticipantCount)
	}
	return payload, nil
}

// integrityFailure records an untrustworthy payload for manual review.
// The raw metadata is kept so the event can be replayed once fixed.
func (s *BookingFinalizerService) integrityFailure(ctx context.Context, booking *models.Booking, ev PaymentSucceeded, cause error, start time.Time) error {
	s.logger.WithError(cause).WithFields(logrus.Fields{
		"booking_id":        booking.ID,
		"payment_intent_id": ev.IntentID,
		"event_id":          ev.EventID,
	}).Error("Booking payload failed integrity checks")

	audit := models.NewPaymentAudit(models.PaymentEventIntegrityFailure, models.PaymentSourceStripeWebhook).
		SetBooking(booking.ID).
		SetPaymentIntent(ev.IntentID).
		SetEventID(ev.EventID).
		SetDetails(metadataDetails(ev.Metadata)).
		SetError(cause.Error(), "integrity_failure").
		SetProcessingTime(start).
		MarkForReview()
	audit.SetAmounts(booking.TotalPrice, FromMinorUnits(ev.Amount), ev.Currency)
	s.auditor.Record(ctx, audit)

	return &models.IntegrityError{BookingID: booking.ID, Msg: "booking payload rejected", Err: cause}
}

// afterCommit writes the review and confirmation audits and publishes the confirmation
func (s *BookingFinalizerService) afterCommit(ctx context.Context, ev PaymentSucceeded, done *confirmation, start time.Time) {
	booking := done.booking
	log := s.logger.WithFields(logrus.Fields{
		"booking_id":        booking.ID,
		"payment_intent_id": ev.IntentID,
		"event_id":          ev.EventID,
	})

	if done.overbooked {
		log.WithFields(logrus.Fields{
			"trip_id":         done.trip.ID,
			"capacity_before": done.capacityBefore,
			"participants":    booking.ParticipantCount,
		}).Warn("Trip over-booked by a paid booking")
		audit := models.NewPaymentAudit(models.PaymentEventOverbookingDetected, models.PaymentSourceSystem).
			SetBooking(booking.ID).
			SetPaymentIntent(ev.IntentID).
			SetEventID(ev.EventID).
			SetDetails(map[string]interface{}{
				"trip_id":         done.trip.ID.String(),
				"capacity_before": done.capacityBefore,
				"participants":    booking.ParticipantCount,
			}).
			MarkForReview()
		s.auditor.Record(ctx, audit)
	}

	if !done.amountsMatch {
		log.WithFields(logrus.Fields{
			"expected": booking.TotalPrice,
			"received": done.payment.AmountPaid,
		}).Warn("Captured amount differs from booking total")
		audit := models.NewPaymentAudit(models.PaymentEventAmountMismatch, models.PaymentSourceStripeWebhook).
			SetBooking(booking.ID).
			SetPaymentIntent(ev.IntentID).
			SetEventID(ev.EventID).
			MarkForReview()
		audit.SetAmounts(booking.TotalPrice, done.payment.AmountPaid, done.payment.Currency)
		s.auditor.Record(ctx, audit)
	}

	audit := models.NewPaymentAudit(models.PaymentEventBookingConfirmed, models.PaymentSourceStripeWebhook).
		SetBooking(booking.ID).
		SetPaymentIntent(ev.IntentID).
		SetEventID(ev.EventID).
		SetProcessingTime(start)
	audit.SetAmounts(booking.TotalPrice, done.payment.AmountPaid, done.payment.Currency)
	s.auditor.Record(ctx, audit)

	log.WithFields(logrus.Fields{
		"trip_id":      done.trip.ID,
		"participants": booking.ParticipantCount,
		"amount_paid":  done.payment.AmountPaid,
		"needs_review": booking.NeedsReview,
	}).Info("Booking confirmed")

	event := events.BookingConfirmedEvent{
		Type:         events.EventTypeBookingConfirmed,
		BookingID:    booking.ID,
		TravelerID:   booking.TravelerID,
		TripID:       done.trip.ID,
		TripTitle:    done.trip.Title,
		Participants: booking.ParticipantCount,
		AmountPaid:   done.payment.AmountPaid,
		Currency:     done.payment.Currency,
		ConfirmedAt:  *booking.ConfirmedAt,
		NeedsReview:  booking.NeedsReview,
	}
	if traveler, err := s.travelers.GetByID(ctx, booking.TravelerID); err != nil {
		log.WithError(err).Warn("Failed to load traveler for notification")
	} else if traveler != nil {
		event.TravelerEmail = traveler.Email
	}

	go s.notify(event)
}

func (s *BookingFinalizerService) notify(event events.BookingConfirmedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
	defer cancel()

	if err := s.publisher.BookingConfirmed(ctx, event); err != nil {
		s.logger.WithError(err).WithField("booking_id", event.BookingID).Error("Failed to publish booking confirmation")
	}
}

func metadataDetails(metadata map[string]string) map[string]interface{} {
	details := make(map[string]interface{}, len(metadata))
	for key, value := range metadata {
		details[key] = value
	}
	return details
}

// participantsFromPayload materializes the participant rows carried in payload
func participantsFromPayload(bookingID uuid.UUID, payload *models.BookingPayload) ([]models.Participant, error) {
	participants := make([]models.Participant, 0, len(payload.Participants))
	for i, p := range payload.Participants {
		dob, err := time.Parse(validator.DateLayout, p.DateOfBirth)
		if err != nil {
			return nil, &models.DeserializationError{
				Msg: fmt.Sprintf("participant %d has an invalid date of birth", i),
				Err: err,
			}
		}
		participants = append(participants, models.Participant{
			BookingID:   bookingID,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			DateOfBirth: dob,
		})
	}
	return participants, nil
}
