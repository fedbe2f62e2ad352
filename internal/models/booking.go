package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/adventuretogether/booking-backend/pkg/validator"
	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusFailed    BookingStatus = "FAILED"
)

// MaxNameLength bounds participant first and last names
const MaxNameLength = 100

// ReviewReasonOverbooked marks a booking confirmed after the trip ran out of capacity
const ReviewReasonOverbooked = "overbooked"

// ReviewReasonAmountMismatch marks a booking whose captured amount differs from its price
const ReviewReasonAmountMismatch = "amount_mismatch"

// IsTerminal reports whether no further transitions are allowed
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCancelled || s == BookingStatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Only PENDING bookings can move, and only into a terminal state.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s != BookingStatusPending {
		return false
	}
	return next.IsTerminal()
}

// Booking represents a traveler's reservation for a trip
type Booking struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	TravelerID       uuid.UUID     `json:"traveler_id" db:"traveler_id"`
	TripID           uuid.UUID     `json:"trip_id" db:"trip_id"`
	BookingDate      time.Time     `json:"booking_date" db:"booking_date"`
	Status           BookingStatus `json:"status" db:"status"`
	ParticipantCount int           `json:"participant_count" db:"participant_count"`

	// Pricing snapshot taken at preparation time
	TripCost        float64 `json:"trip_cost" db:"trip_cost"`
	InsuranceType   string  `json:"insurance_type" db:"insurance_type"`
	InsuranceAmount float64 `json:"insurance_amount" db:"insurance_amount"`
	TotalPrice      float64 `json:"total_price" db:"total_price"`
	Currency        string  `json:"currency" db:"currency"`

	PaymentIntentID *string         `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	PendingPayload  *BookingPayload `json:"-" db:"pending_payload"`

	NeedsReview  bool    `json:"needs_review" db:"needs_review"`
	ReviewReason *string `json:"review_reason,omitempty" db:"review_reason"`

	ConfirmedAt *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`

	// Loaded explicitly by the query service, never by the repository scan
	Participants []Participant `json:"participants,omitempty" db:"-"`
	Payment      *Payment      `json:"payment,omitempty" db:"-"`
}

// ============================================================================
// REQUEST/RESPONSE DTOs
// ============================================================================

// ParticipantRequest is one traveler companion in a prepare request
type ParticipantRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
}

// PrepareBookingRequest is the body of POST /bookings/prepare
type PrepareBookingRequest struct {
	TripID        uuid.UUID            `json:"trip_id"`
	Participants  []ParticipantRequest `json:"participants"`
	InsuranceType string               `json:"insurance_type,omitempty"`
}

// Validate checks the request shape and normalizes names.
// Returns a *ValidationError carrying every field failure, or nil.
func (r *PrepareBookingRequest) Validate(now time.Time) error {
	var errs validator.FieldErrors

	if r.TripID == uuid.Nil {
		errs.AddError("trip_id", validator.ErrEmptyValue)
	}

	if len(r.Participants) == 0 {
		errs.Add("participants", "must contain at least one participant")
	}

	for i := range r.Participants {
		p := &r.Participants[i]
		prefix := fmt.Sprintf("participants[%d]", i)

		if name, err := validator.Name(p.FirstName, MaxNameLength); err != nil {
			errs.AddError(prefix+".first_name", err)
		} else {
			p.FirstName = name
		}

		if name, err := validator.Name(p.LastName, MaxNameLength); err != nil {
			errs.AddError(prefix+".last_name", err)
		} else {
			p.LastName = name
		}

		if _, err := validator.PastDate(p.DateOfBirth, now); err != nil {
			errs.AddError(prefix+".date_of_birth", err)
		} else {
			p.DateOfBirth = strings.TrimSpace(p.DateOfBirth)
		}
	}

	r.InsuranceType = strings.ToLower(strings.TrimSpace(r.InsuranceType))

	if errs.HasErrors() {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// PrepareBookingResponse is returned once the payment intent exists
type PrepareBookingResponse struct {
	BookingID       uuid.UUID     `json:"booking_id"`
	PaymentIntentID string        `json:"payment_intent_id"`
	ClientSecret    string        `json:"client_secret"`
	Status          BookingStatus `json:"status"`
	TripCost        float64       `json:"trip_cost"`
	InsuranceType   string        `json:"insurance_type"`
	InsuranceAmount float64       `json:"insurance_amount"`
	TotalPrice      float64       `json:"total_price"`
	Currency        string        `json:"currency"`
}

// BookingListResponse wraps a page of a traveler's bookings
type BookingListResponse struct {
	Bookings []*Booking `json:"bookings"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}
