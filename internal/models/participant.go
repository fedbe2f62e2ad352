package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a person travelling under a confirmed booking
type Participant struct {
	ID          uuid.UUID `json:"id" db:"id"`
	BookingID   uuid.UUID `json:"booking_id" db:"booking_id"`
	FirstName   string    `json:"first_name" db:"first_name"`
	LastName    string    `json:"last_name" db:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth" db:"date_of_birth"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// FullName returns "First Last"
func (p Participant) FullName() string {
	return p.FirstName + " " + p.LastName
}
