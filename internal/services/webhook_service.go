package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
)

// Gateway event types the workflow reacts to
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventPaymentIntentCanceled  = "payment_intent.canceled"
)

// WebhookOutcome is reported back to the gateway in the 200 response body
type WebhookOutcome string

const (
	WebhookProcessed WebhookOutcome = "processed"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookDiscarded WebhookOutcome = "discarded"
	WebhookIgnored   WebhookOutcome = "ignored"
)

// WebhookResult describes how a verified event was handled
type WebhookResult struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Outcome   WebhookOutcome  `json:"outcome"`
	Finalize  *FinalizeResult `json:"finalize,omitempty"`
}

// WebhookService dispatches verified gateway events by type
type WebhookService struct {
	finalizer *BookingFinalizerService
	bookings  *database.BookingRepository
	auditor   Auditor
	logger    *logrus.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(
	finalizer *BookingFinalizerService,
	bookings *database.BookingRepository,
	auditor Auditor,
	logger *logrus.Logger,
) *WebhookService {
	return &WebhookService{
		finalizer: finalizer,
		bookings:  bookings,
		auditor:   auditor,
		logger:    logger,
	}
}

// HandleEvent handles one verified event.
// Only payment_intent.succeeded changes bookings into CONFIRMED; a failed payment leaves the
// booking PENDING because the traveler may retry on the same intent; a canceled intent
// cancels the booking. Every other type is acknowledged and ignored.
func (s *WebhookService) HandleEvent(ctx context.Context, event *stripe.Event, meta RequestMeta) (*WebhookResult, error) {
	start := time.Now()
	eventType := string(event.Type)
	result := &WebhookResult{EventID: event.ID, EventType: eventType}

	received := models.NewPaymentAudit(models.PaymentEventWebhookReceived, models.PaymentSourceStripeWebhook).
		SetEventID(event.ID).
		SetDetails(map[string]interface{}{"type": eventType, "livemode": event.Livemode})
	if event.Data != nil {
		received.SetRawBody(string(event.Data.Raw))
	}
	s.auditor.Record(ctx, meta.Apply(received))

	log := s.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": eventType,
	})

	switch eventType {
	case EventPaymentIntentSucceeded, EventPaymentIntentFailed, EventPaymentIntentCanceled:
	default:
		log.Debug("Ignoring webhook event type")
		result.Outcome = WebhookIgnored
		return result, nil
	}

	intent, err := decodePaymentIntent(event)
	if err != nil {
		log.WithError(err).Error("Webhook event carries an unreadable payment intent")
		audit := models.NewPaymentAudit(models.PaymentEventIntegrityFailure, models.PaymentSourceStripeWebhook).
			SetEventID(event.ID).
			SetError(err.Error(), "invalid_event_data").
			SetProcessingTime(start).
			MarkForReview()
		if event.Data != nil {
			audit.SetRawBody(string(event.Data.Raw))
		}
		s.auditor.Record(ctx, audit)
		return nil, err
	}

	switch eventType {
	case EventPaymentIntentSucceeded:
		finalized, err := s.finalizer.Finalize(ctx, paymentSucceeded(event.ID, intent))
		if err != nil {
			return nil, err
		}
		result.Finalize = finalized
		switch finalized.Outcome {
		case FinalizeAlreadyConfirmed:
			result.Outcome = WebhookDuplicate
		case FinalizeDiscarded:
			result.Outcome = WebhookDiscarded
		default:
			result.Outcome = WebhookProcessed
		}

	case EventPaymentIntentFailed:
		if err := s.paymentFailed(ctx, event.ID, intent, start); err != nil {
			return nil, err
		}
		result.Outcome = WebhookProcessed

	case EventPaymentIntentCanceled:
		outcome, err := s.intentCanceled(ctx, event.ID, intent, start)
		if err != nil {
			return nil, err
		}
		result.Outcome = outcome
	}

	log.WithField("outcome", result.Outcome).Info("Webhook event handled")
	return result, nil
}

// paymentFailed only records the failure. The booking stays PENDING until the intent
// succeeds, is canceled, or the booking expires.
func (s *WebhookService) paymentFailed(ctx context.Context, eventID string, intent *stripe.PaymentIntent, start time.Time) error {
	booking, err := findBookingForIntent(ctx, s.bookings, intent.ID, intent.Metadata)
	if err != nil {
		return err
	}

	audit := models.NewPaymentAudit(models.PaymentEventPaymentFailed, models.PaymentSourceStripeWebhook).
		SetPaymentIntent(intent.ID).
		SetEventID(eventID).
		SetProcessingTime(start)
	if booking != nil {
		audit.SetBooking(booking.ID)
	}
	if intent.LastPaymentError != nil {
		audit.SetError(intent.LastPaymentError.Msg, string(intent.LastPaymentError.Code))
	}
	s.auditor.Record(ctx, audit)

	s.logger.WithFields(logrus.Fields{
		"payment_intent_id": intent.ID,
		"booking_found":     booking != nil,
	}).Info("Payment attempt failed, booking left pending")
	return nil
}

// intentCanceled cancels the booking if it is still pending
func (s *WebhookService) intentCanceled(ctx context.Context, eventID string, intent *stripe.PaymentIntent, start time.Time) (WebhookOutcome, error) {
	booking, err := findBookingForIntent(ctx, s.bookings, intent.ID, intent.Metadata)
	if err != nil {
		return "", err
	}
	if booking == nil {
		s.logger.WithField("payment_intent_id", intent.ID).Warn("Canceled intent has no booking")
		return WebhookDiscarded, nil
	}

	swapped, err := s.bookings.TransitionStatus(ctx, booking.ID, models.BookingStatusPending, models.BookingStatusCancelled)
	if err != nil {
		return "", err
	}
	if !swapped {
		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"status":     booking.Status,
		}).Info("Canceled intent for a booking that is no longer pending, nothing to do")
		return WebhookDiscarded, nil
	}

	audit := models.NewPaymentAudit(models.PaymentEventIntentCanceled, models.PaymentSourceStripeWebhook).
		SetBooking(booking.ID).
		SetPaymentIntent(intent.ID).
		SetEventID(eventID).
		SetDetails(map[string]interface{}{"cancellation_reason": string(intent.CancellationReason)}).
		SetProcessingTime(start)
	s.auditor.Record(ctx, audit)

	return WebhookProcessed, nil
}

func decodePaymentIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, &models.DeserializationError{Msg: "event has no data object"}
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, &models.DeserializationError{Msg: "event data is not a payment intent", Err: err}
	}
	if intent.ID == "" {
		return nil, &models.DeserializationError{Msg: "payment intent has no id"}
	}
	return &intent, nil
}

func paymentSucceeded(eventID string, intent *stripe.PaymentIntent) PaymentSucceeded {
	amount := intent.AmountReceived
	if amount == 0 {
		amount = intent.Amount
	}
	ev := PaymentSucceeded{
		EventID:  eventID,
		IntentID: intent.ID,
		Amount:   amount,
		Currency: string(intent.Currency),
		Metadata: intent.Metadata,
	}
	if intent.PaymentMethod != nil {
		ev.PaymentMethod = intent.PaymentMethod.ID
		if intent.PaymentMethod.Type != "" {
			ev.PaymentMethod = string(intent.PaymentMethod.Type)
		}
	}
	return ev
}
