package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the status of a captured payment
type PaymentStatus string

const (
	PaymentStatusPaid PaymentStatus = "PAID"
)

// Payment records the money captured for a confirmed booking.
// Exactly one exists per confirmed booking.
type Payment struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	BookingID       uuid.UUID     `json:"booking_id" db:"booking_id"`
	PaymentIntentID string        `json:"payment_intent_id" db:"payment_intent_id"`
	PaymentMethod   *string       `json:"payment_method,omitempty" db:"payment_method"`
	Status          PaymentStatus `json:"status" db:"status"`
	PaymentDate     time.Time     `json:"payment_date" db:"payment_date"`
	AmountPaid      float64       `json:"amount_paid" db:"amount_paid"`
	AmountInsurance float64       `json:"amount_insurance" db:"amount_insurance"`
	Currency        string        `json:"currency" db:"currency"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}
