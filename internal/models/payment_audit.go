package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventIntentCreated        PaymentEventType = "intent_created"
	PaymentEventIntentCreationFailed PaymentEventType = "intent_creation_failed"
	PaymentEventWebhookReceived      PaymentEventType = "webhook_received"
	PaymentEventBookingConfirmed     PaymentEventType = "booking_confirmed"
	PaymentEventDuplicateDelivery    PaymentEventType = "duplicate_delivery"
	PaymentEventBookingNotFound      PaymentEventType = "booking_not_found"
	PaymentEventBookingNotPending    PaymentEventType = "booking_not_pending"
	PaymentEventIntegrityFailure     PaymentEventType = "integrity_failure"
	PaymentEventOverbookingDetected  PaymentEventType = "overbooking_detected"
	PaymentEventAmountMismatch       PaymentEventType = "amount_mismatch"
	PaymentEventPaymentFailed        PaymentEventType = "payment_failed"
	PaymentEventIntentCanceled       PaymentEventType = "intent_canceled"
	PaymentEventBookingExpired       PaymentEventType = "booking_expired"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend       PaymentEventSource = "backend"
	PaymentSourceStripeWebhook PaymentEventSource = "stripe_webhook"
	PaymentSourceStripeAPI     PaymentEventSource = "stripe_api"
	PaymentSourceSystem        PaymentEventSource = "system"
)

// PaymentAudit is an immutable audit entry for a payment event or workflow decision.
// Entries with RequiresReview set form the operator review queue until resolved.
type PaymentAudit struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	BookingID       *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	PaymentIntentID *string    `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	EventID         *string    `json:"event_id,omitempty" db:"event_id"`

	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	// Amount tracking
	ExpectedAmount *float64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *float64 `json:"received_amount,omitempty" db:"received_amount"`
	Currency       *string  `json:"currency,omitempty" db:"currency"`
	AmountsMatch   *bool    `json:"amounts_match,omitempty" db:"amounts_match"`

	Details JSONB   `json:"details,omitempty" db:"details"`
	RawBody *string `json:"raw_body,omitempty" db:"raw_body"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
	ErrorCode    *string `json:"error_code,omitempty" db:"error_code"`

	ProcessingTimeMs *int    `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	IsDuplicate      bool    `json:"is_duplicate" db:"is_duplicate"`
	IdempotencyKey   *string `json:"idempotency_key,omitempty" db:"idempotency_key"`

	// Request metadata
	IPAddress     *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string `json:"user_agent,omitempty" db:"user_agent"`
	ClientDevice  *string `json:"client_device,omitempty" db:"client_device"`
	CorrelationID *string `json:"correlation_id,omitempty" db:"correlation_id"`

	RequiresReview bool       `json:"requires_review" db:"requires_review"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetBooking sets the booking the event belongs to
func (pa *PaymentAudit) SetBooking(bookingID uuid.UUID) *PaymentAudit {
	pa.BookingID = &bookingID
	return pa
}

// SetPaymentIntent sets the gateway payment intent id
func (pa *PaymentAudit) SetPaymentIntent(intentID string) *PaymentAudit {
	if intentID != "" {
		pa.PaymentIntentID = &intentID
	}
	return pa
}

// SetEventID sets the gateway event id and uses it as the idempotency key
func (pa *PaymentAudit) SetEventID(eventID string) *PaymentAudit {
	if eventID != "" {
		pa.EventID = &eventID
		key := eventID + "-" + string(pa.EventType)
		pa.IdempotencyKey = &key
	}
	return pa
}

// SetAmounts sets and compares amounts - returns whether they match
func (pa *PaymentAudit) SetAmounts(expected, received float64, currency string) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	pa.Currency = &currency

	match := AmountsEqual(expected, received)
	pa.AmountsMatch = &match
	return match
}

// SetDetails attaches structured context to the entry
func (pa *PaymentAudit) SetDetails(details map[string]interface{}) *PaymentAudit {
	pa.Details = JSONB(details)
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string, code string) *PaymentAudit {
	pa.ErrorMessage = &message
	if code != "" {
		pa.ErrorCode = &code
	}
	return pa
}

// SetRawBody stores the raw payload so the event can be replayed later
func (pa *PaymentAudit) SetRawBody(body string) *PaymentAudit {
	pa.RawBody = &body
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(ip, userAgent, clientDevice, correlationID string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if clientDevice != "" {
		pa.ClientDevice = &clientDevice
	}
	if correlationID != "" {
		pa.CorrelationID = &correlationID
	}
	return pa
}

// SetProcessingTime calculates and sets processing time
func (pa *PaymentAudit) SetProcessingTime(startTime time.Time) *PaymentAudit {
	durationMs := int(time.Since(startTime).Milliseconds())
	pa.ProcessingTimeMs = &durationMs
	now := time.Now()
	pa.ProcessedAt = &now
	return pa
}

// MarkAsDuplicate marks this event as a duplicate delivery
func (pa *PaymentAudit) MarkAsDuplicate() *PaymentAudit {
	pa.IsDuplicate = true
	return pa
}

// MarkForReview puts the entry on the operator review queue
func (pa *PaymentAudit) MarkForReview() *PaymentAudit {
	pa.RequiresReview = true
	return pa
}

// AmountsEqual compares two money amounts to the cent
func AmountsEqual(a, b float64) bool {
	const tolerance = 0.01
	return abs(a-b) < tolerance
}

// abs returns absolute value of float64
func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
