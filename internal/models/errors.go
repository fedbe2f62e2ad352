package models

import (
	"errors"
	"fmt"

	"github.com/adventuretogether/booking-backend/pkg/validator"
	"github.com/google/uuid"
)

// ErrContention is returned when a booking stays locked by a concurrent
// finalization after all retries. Callers should let the gateway re-deliver.
var ErrContention = errors.New("booking is locked by a concurrent finalization")

// NotFoundError is returned when a referenced entity does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ValidationError carries every field that failed validation
type ValidationError struct {
	Fields validator.FieldErrors
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + e.Fields.Error()
}

// UserNotEligibleError is returned when a traveler may not book
type UserNotEligibleError struct {
	UserID uuid.UUID
	Reason string
}

func (e *UserNotEligibleError) Error() string {
	return fmt.Sprintf("traveler %s is not eligible to book: %s", e.UserID, e.Reason)
}

// TripCapacityExceededError is returned when a trip has fewer free spots than requested
type TripCapacityExceededError struct {
	TripID    uuid.UUID
	Requested int
	Remaining int
}

func (e *TripCapacityExceededError) Error() string {
	return fmt.Sprintf("trip %s has %d spots left, %d requested", e.TripID, e.Remaining, e.Requested)
}

// TripNotBookableError is returned when the trip state does not accept bookings
type TripNotBookableError struct {
	TripID uuid.UUID
	State  TripState
}

func (e *TripNotBookableError) Error() string {
	return fmt.Sprintf("trip %s does not accept bookings in state %s", e.TripID, e.State)
}

// ConflictError is returned when an operation does not fit the current state
type ConflictError struct {
	Resource string
	Msg      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
}

// GatewayError wraps a failed call to the payment gateway
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// SerializationError is returned when a booking payload cannot be encoded
type SerializationError struct {
	Msg string
	Err error
}

func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("booking serialization failed: %s: %v", e.Msg, e.Err)
	}
	return "booking serialization failed: " + e.Msg
}

func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError is returned when an embedded payload is corrupt or
// does not match the expected schema. It is never retryable on its own.
type DeserializationError struct {
	Msg string
	Err error
}

func (e *DeserializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("booking deserialization failed: %s: %v", e.Msg, e.Err)
	}
	return "booking deserialization failed: " + e.Msg
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// IntegrityError marks a webhook event that cannot be applied as delivered.
// The event has been recorded for operator review.
type IntegrityError struct {
	BookingID uuid.UUID
	Msg       string
	Err       error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data integrity failure for booking %s: %s: %v", e.BookingID, e.Msg, e.Err)
	}
	return fmt.Sprintf("data integrity failure for booking %s: %s", e.BookingID, e.Msg)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// ============================================================================
// MATCHERS
// ============================================================================

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsUserNotEligible(err error) bool {
	var target *UserNotEligibleError
	return errors.As(err, &target)
}

func IsCapacityExceeded(err error) bool {
	var target *TripCapacityExceededError
	return errors.As(err, &target)
}

// IsConflict matches every error that maps to a state conflict
func IsConflict(err error) bool {
	var conflict *ConflictError
	var notBookable *TripNotBookableError
	return errors.As(err, &conflict) || errors.As(err, &notBookable) || IsCapacityExceeded(err)
}

func IsGateway(err error) bool {
	var target *GatewayError
	return errors.As(err, &target)
}

// IsIntegrity matches payload encoding and data integrity failures
func IsIntegrity(err error) bool {
	var ser *SerializationError
	var de *DeserializationError
	var ie *IntegrityError
	return errors.As(err, &ser) || errors.As(err, &de) || errors.As(err, &ie)
}
