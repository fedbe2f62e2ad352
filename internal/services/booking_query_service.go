package services

import (
	"context"

	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// BookingQueryService reads bookings for travelers and operators
type BookingQueryService struct {
	bookings     *database.BookingRepository
	participants *database.ParticipantRepository
	payments     *database.PaymentRepository
}

// NewBookingQueryService creates a new BookingQueryService
func NewBookingQueryService(
	bookings *database.BookingRepository,
	participants *database.ParticipantRepository,
	payments *database.PaymentRepository,
) *BookingQueryService {
	return &BookingQueryService{
		bookings:     bookings,
		participants: participants,
		payments:     payments,
	}
}

// GetBookingByID returns the booking with its participants and payment
func (s *BookingQueryService) GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, &models.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}

	participants, err := s.participants.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	booking.Participants = participants

	payment, err := s.payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	booking.Payment = payment

	return booking, nil
}

// GetBookingsByTravelerID returns a page of the traveler's bookings, newest first.
// Participants and payment are not loaded for list results.
func (s *BookingQueryService) GetBookingsByTravelerID(ctx context.Context, travelerID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	limit, offset = NormalizePage(limit, offset)
	return s.bookings.ListByTraveler(ctx, travelerID, limit, offset)
}

// NormalizePage clamps paging parameters to sane bounds
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
