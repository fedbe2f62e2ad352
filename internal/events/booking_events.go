package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventTypeBookingConfirmed is published once per booking after the finalize transaction commits
const EventTypeBookingConfirmed = "booking.confirmed"

// BookingConfirmedEvent is the message downstream consumers (email, analytics) receive
type BookingConfirmedEvent struct {
	Type          string    `json:"type"`
	BookingID     uuid.UUID `json:"booking_id"`
	TravelerID    uuid.UUID `json:"traveler_id"`
	TravelerEmail string    `json:"traveler_email,omitempty"`
	TripID        uuid.UUID `json:"trip_id"`
	TripTitle     string    `json:"trip_title,omitempty"`
	Participants  int       `json:"participants"`
	AmountPaid    float64   `json:"amount_paid"`
	Currency      string    `json:"currency"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
	NeedsReview   bool      `json:"needs_review"`
}

// Publisher delivers booking events to other processes
type Publisher interface {
	BookingConfirmed(ctx context.Context, event BookingConfirmedEvent) error
	Close() error
}
