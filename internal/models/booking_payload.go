package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// BookingPayload is everything the finalizer needs to materialize a booking.
// It travels through the payment gateway's metadata and comes back with the webhook.
type BookingPayload struct {
	BookingID       uuid.UUID         `json:"booking_id"`
	TripID          uuid.UUID         `json:"trip_id"`
	TravelerID      uuid.UUID         `json:"traveler_id"`
	BookingDate     string            `json:"booking_date"`
	Participants    []ParticipantData `json:"participants"`
	InsuranceType   string            `json:"insurance_type"`
	InsuranceAmount float64           `json:"insurance_amount"`
	TripCost        float64           `json:"trip_cost"`
	TotalPrice      float64           `json:"total_price"`
	Currency        string            `json:"currency"`
}

// ParticipantData is a participant as carried in the payload
type ParticipantData struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
}

// Value implements driver.Valuer so the payload can be stored as JSONB
func (p BookingPayload) Value() (driver.Value, error) {
	bytes, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements sql.Scanner
func (p *BookingPayload) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("unsupported type for booking payload: %T", value)
	}
}

// NewBookingPayload builds the payload for a freshly prepared booking
func NewBookingPayload(booking *Booking, participants []ParticipantRequest) *BookingPayload {
	data := make([]ParticipantData, 0, len(participants))
	for _, p := range participants {
		data = append(data, ParticipantData{
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			DateOfBirth: p.DateOfBirth,
		})
	}

	return &BookingPayload{
		BookingID:       booking.ID,
		TripID:          booking.TripID,
		TravelerID:      booking.TravelerID,
		BookingDate:     booking.BookingDate.Format("2006-01-02"),
		Participants:    data,
		InsuranceType:   booking.InsuranceType,
		InsuranceAmount: booking.InsuranceAmount,
		TripCost:        booking.TripCost,
		TotalPrice:      booking.TotalPrice,
		Currency:        booking.Currency,
	}
}
