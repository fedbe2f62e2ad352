package models

import (
	"time"

	"github.com/google/uuid"
)

// TripState is the booking-facing lifecycle of a trip
type TripState string

const (
	TripStateToBeConfirmed   TripState = "TO_BE_CONFIRMED"
	TripStateConfirmedOpen   TripState = "CONFIRMED_OPEN"
	TripStateConfirmedClosed TripState = "CONFIRMED_CLOSED"
	TripStateExpiredClosed   TripState = "EXPIRED_CLOSED"
	TripStateCancelled       TripState = "CANCELLED"
)

// Trip holds the columns of the trip catalog this workflow reads or mutates
type Trip struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	Title               string     `json:"title" db:"title"`
	PricePerParticipant float64    `json:"price_per_participant" db:"price_per_participant"`
	Currency            string     `json:"currency" db:"currency"`
	MaxParticipants     int        `json:"max_participants" db:"max_participants"`
	MinParticipants     int        `json:"min_participants" db:"min_participants"`
	RemainingCapacity   int        `json:"remaining_capacity" db:"remaining_capacity"`
	State               TripState  `json:"state" db:"state"`
	BookingsCloseAt     *time.Time `json:"bookings_close_at,omitempty" db:"bookings_close_at"`
}

// CanAcceptBooking reports whether new bookings may be prepared at time now
func (t *Trip) CanAcceptBooking(now time.Time) bool {
	if t.State != TripStateToBeConfirmed && t.State != TripStateConfirmedOpen {
		return false
	}
	if t.BookingsCloseAt != nil && now.After(*t.BookingsCloseAt) {
		return false
	}
	return true
}

// BookedParticipants is the number of seats already taken
func (t *Trip) BookedParticipants() int {
	booked := t.MaxParticipants - t.RemainingCapacity
	if booked < 0 {
		return 0
	}
	return booked
}

// NextState returns the state the trip should move to given its current capacity.
// Only forward transitions driven by bookings are handled here; expiry and cancellation
// belong to the trip catalog.
func (t *Trip) NextState() TripState {
	switch t.State {
	case TripStateToBeConfirmed:
		if t.RemainingCapacity <= 0 {
			return TripStateConfirmedClosed
		}
		if t.BookedParticipants() >= t.MinParticipants {
			return TripStateConfirmedOpen
		}
	case TripStateConfirmedOpen:
		if t.RemainingCapacity <= 0 {
			return TripStateConfirmedClosed
		}
	}
	return t.State
}
