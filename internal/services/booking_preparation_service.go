package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BookingPreparationService validates a booking request, records it as PENDING
// and opens the payment intent the client completes
type BookingPreparationService struct {
	bookings        *database.BookingRepository
	trips           *database.TripRepository
	travelers       *database.TravelerRepository
	pricing         *PricingService
	serializer      *BookingSerializer
	gateway         PaymentGateway
	auditor         Auditor
	defaultCurrency string
	logger          *logrus.Logger
	now             func() time.Time
}

// NewBookingPreparationService creates a new BookingPreparationService
func NewBookingPreparationService(
	bookings *database.BookingRepository,
	trips *database.TripRepository,
	travelers *database.TravelerRepository,
	pricing *PricingService,
	serializer *BookingSerializer,
	gateway PaymentGateway,
	auditor Auditor,
	defaultCurrency string,
	logger *logrus.Logger,
) *BookingPreparationService {
	return &BookingPreparationService{
		bookings:        bookings,
		trips:           trips,
		travelers:       travelers,
		pricing:         pricing,
		serializer:      serializer,
		gateway:         gateway,
		auditor:         auditor,
		defaultCurrency: defaultCurrency,
		logger:          logger,
		now:             time.Now,
	}
}

// StartBookingAndPayment runs the preparation flow:
// validate -> eligibility -> trip checks -> price -> insert PENDING -> create intent -> store intent id.
// No booking row exists when any check before the insert fails.
func (s *BookingPreparationService) StartBookingAndPayment(
	ctx context.Context,
	travelerID uuid.UUID,
	req *models.PrepareBookingRequest,
	meta RequestMeta,
) (*models.PrepareBookingResponse, error) {
	now := s.now()

	if err := req.Validate(now); err != nil {
		return nil, err
	}
	if err := s.pricing.ValidatePlan(req.InsuranceType); err != nil {
		return nil, err
	}

	traveler, err := s.travelers.GetByID(ctx, travelerID)
	if err != nil {
		return nil, err
	}
	if traveler == nil {
		return nil, &models.NotFoundError{Resource: "traveler", ID: travelerID.String()}
	}
	if !traveler.Active {
		return nil, &models.UserNotEligibleError{UserID: travelerID, Reason: "account is not active"}
	}

	trip, err := s.trips.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, &models.NotFoundError{Resource: "trip", ID: req.TripID.String()}
	}
	if !trip.CanAcceptBooking(now) {
		return nil, &models.TripNotBookableError{TripID: trip.ID, State: trip.State}
	}

	participantCount := len(req.Participants)
	if trip.RemainingCapacity < participantCount {
		return nil, &models.TripCapacityExceededError{
			TripID:    trip.ID,
			Requested: participantCount,
			Remaining: trip.RemainingCapacity,
		}
	}

	quote, err := s.pricing.Quote(trip.PricePerParticipant, participantCount, req.InsuranceType)
	if err != nil {
		return nil, err
	}

	currency := strings.ToLower(trip.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}

	booking := &models.Booking{
		ID:               uuid.New(),
		TravelerID:       travelerID,
		TripID:           trip.ID,
		BookingDate:      now,
		Status:           models.BookingStatusPending,
		ParticipantCount: participantCount,
		TripCost:         quote.TripCost,
		InsuranceType:    quote.InsuranceType,
		InsuranceAmount:  quote.InsuranceAmount,
		TotalPrice:       quote.TotalPrice,
		Currency:         currency,
	}

	payload := models.NewBookingPayload(booking, req.Participants)
	metadata, err := s.serializer.Serialize(payload)
	if errors.Is(err, ErrPayloadTooLarge) {
		s.logger.WithFields(logrus.Fields{
			"booking_id":   booking.ID,
			"participants": participantCount,
		}).Info("Booking payload too large for metadata, storing it on the booking row")
		booking.PendingPayload = payload
		metadata = RowReferenceMetadata(booking.ID)
	} else if err != nil {
		return nil, err
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, CreateIntentRequest{
		BookingID:      booking.ID,
		Amount:         ToMinorUnits(booking.TotalPrice),
		Currency:       currency,
		Description:    fmt.Sprintf("%s (%d participants)", trip.Title, participantCount),
		Metadata:       metadata,
		IdempotencyKey: IdempotencyKeyForBooking(booking.ID),
	})
	if err != nil {
		audit := models.NewPaymentAudit(models.PaymentEventIntentCreationFailed, models.PaymentSourceStripeAPI).
			SetBooking(booking.ID).
			SetError(err.Error(), "gateway_error")
		audit.SetAmounts(booking.TotalPrice, 0, currency)
		s.auditor.Record(ctx, meta.Apply(audit))

		var gatewayErr *models.GatewayError
		if errors.As(err, &gatewayErr) {
			return nil, gatewayErr
		}
		return nil, &models.GatewayError{Op: "create payment intent", Err: err}
	}

	if err := s.bookings.SetPaymentIntent(ctx, booking.ID, intent.ID); err != nil {
		return nil, err
	}

	audit := models.NewPaymentAudit(models.PaymentEventIntentCreated, models.PaymentSourceStripeAPI).
		SetBooking(booking.ID).
		SetPaymentIntent(intent.ID).
		SetDetails(map[string]interface{}{
			"trip_id":         trip.ID.String(),
			"participants":    participantCount,
			"insurance_type":  quote.InsuranceType,
			"payload_on_row":  booking.PendingPayload != nil,
			"idempotency_key": IdempotencyKeyForBooking(booking.ID),
		})
	audit.SetAmounts(booking.TotalPrice, booking.TotalPrice, currency)
	s.auditor.Record(ctx, meta.Apply(audit))

	s.logger.WithFields(logrus.Fields{
		"booking_id":        booking.ID,
		"traveler_id":       travelerID,
		"trip_id":           trip.ID,
		"payment_intent_id": intent.ID,
		"total_price":       booking.TotalPrice,
	}).Info("Booking prepared")

	return &models.PrepareBookingResponse{
		BookingID:       booking.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Status:          booking.Status,
		TripCost:        booking.TripCost,
		InsuranceType:   booking.InsuranceType,
		InsuranceAmount: booking.InsuranceAmount,
		TotalPrice:      booking.TotalPrice,
		Currency:        currency,
	}, nil
}
