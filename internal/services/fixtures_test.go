package services

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/adventuretogether/booking-backend/internal/cache"
	"github.com/adventuretogether/booking-backend/internal/config"
	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/adventuretogether/booking-backend/internal/events"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

// recordingAuditor keeps audit entries in memory
type recordingAuditor struct {
	mu      sync.Mutex
	entries []*models.PaymentAudit
}

func (a *recordingAuditor) Record(_ context.Context, audit *models.PaymentAudit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, audit)
}

func (a *recordingAuditor) types() []models.PaymentEventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.PaymentEventType, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.EventType)
	}
	return out
}

func (a *recordingAuditor) find(eventType models.PaymentEventType) *models.PaymentAudit {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries {
		if e.EventType == eventType {
			return e
		}
	}
	return nil
}

func (a *recordingAuditor) count(eventType models.PaymentEventType) int {
	n := 0
	for _, t := range a.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

// fakeGateway records intent requests and answers with a fixed intent
type fakeGateway struct {
	mu       sync.Mutex
	requests []CreateIntentRequest
	err      error
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, req CreateIntentRequest) (*PaymentIntentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &PaymentIntentResult{
		ID:           "pi_test_1",
		ClientSecret: "pi_test_1_secret_xyz",
		Status:       "requires_payment_method",
	}, nil
}

// fakePublisher hands published events to a channel
type fakePublisher struct {
	published chan events.BookingConfirmedEvent
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(chan events.BookingConfirmedEvent, 10)}
}

func (p *fakePublisher) BookingConfirmed(_ context.Context, event events.BookingConfirmedEvent) error {
	p.published <- event
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) wait(t *testing.T) events.BookingConfirmedEvent {
	t.Helper()
	select {
	case event := <-p.published:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("booking confirmation was not published")
		return events.BookingConfirmedEvent{}
	}
}

// fixture is a trip with capacity 10 at 100 per participant and a PENDING booking
// for two participants with basic insurance (200 + 20 = 220)
type fixture struct {
	traveler *models.Traveler
	trip     *models.Trip
	booking  *models.Booking
	payload  *models.BookingPayload
	intentID string
}

func newFixture() *fixture {
	travelerID := uuid.New()
	tripID := uuid.New()
	bookingID := uuid.New()
	intentID := "pi_test_1"
	now := time.Now()

	f := &fixture{
		traveler: &models.Traveler{
			ID:        travelerID,
			Email:     "ada@example.com",
			FirstName: "Ada",
			LastName:  "Lovelace",
			Active:    true,
			CreatedAt: now,
		},
		trip: &models.Trip{
			ID:                  tripID,
			Title:               "Patagonia Trek",
			PricePerParticipant: 100,
			Currency:            "eur",
			MaxParticipants:     10,
			MinParticipants:     2,
			RemainingCapacity:   10,
			State:               models.TripStateToBeConfirmed,
		},
		booking: &models.Booking{
			ID:               bookingID,
			TravelerID:       travelerID,
			TripID:           tripID,
			BookingDate:      now,
			Status:           models.BookingStatusPending,
			ParticipantCount: 2,
			TripCost:         200,
			InsuranceType:    "basic",
			InsuranceAmount:  20,
			TotalPrice:       220,
			Currency:         "eur",
			PaymentIntentID:  &intentID,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
		intentID: intentID,
	}

	f.payload = &models.BookingPayload{
		BookingID:   bookingID,
		TripID:      tripID,
		TravelerID:  travelerID,
		BookingDate: now.Format("2006-01-02"),
		Participants: []models.ParticipantData{
			{FirstName: "Ada", LastName: "Lovelace", DateOfBirth: "1990-12-10"},
			{FirstName: "Alan", LastName: "Turing", DateOfBirth: "1985-06-23"},
		},
		InsuranceType:   "basic",
		InsuranceAmount: 20,
		TripCost:        200,
		TotalPrice:      220,
		Currency:        "eur",
	}
	return f
}

var bookingColumnNames = []string{
	"id", "traveler_id", "trip_id", "booking_date", "status", "participant_count",
	"trip_cost", "insurance_type", "insurance_amount", "total_price", "currency",
	"payment_intent_id", "pending_payload", "needs_review", "review_reason",
	"confirmed_at", "cancelled_at", "created_at", "updated_at",
}

func bookingRows(b *models.Booking) *sqlmock.Rows {
	var intentID, payload, reviewReason interface{}
	if b.PaymentIntentID != nil {
		intentID = *b.PaymentIntentID
	}
	if b.PendingPayload != nil {
		data, _ := json.Marshal(b.PendingPayload)
		payload = data
	}
	if b.ReviewReason != nil {
		reviewReason = *b.ReviewReason
	}
	var confirmedAt interface{}
	if b.ConfirmedAt != nil {
		confirmedAt = *b.ConfirmedAt
	}

	return sqlmock.NewRows(bookingColumnNames).AddRow(
		b.ID.String(), b.TravelerID.String(), b.TripID.String(), b.BookingDate, string(b.Status), b.ParticipantCount,
		b.TripCost, b.InsuranceType, b.InsuranceAmount, b.TotalPrice, b.Currency,
		intentID, payload, b.NeedsReview, reviewReason,
		confirmedAt, nil, b.CreatedAt, b.UpdatedAt,
	)
}

func withStatus(b *models.Booking, status models.BookingStatus) *models.Booking {
	copied := *b
	copied.Status = status
	return &copied
}

func tripRows(trip *models.Trip) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "price_per_participant", "currency", "max_participants",
		"min_participants", "remaining_capacity", "state", "bookings_close_at",
	}).AddRow(
		trip.ID.String(), trip.Title, trip.PricePerParticipant, trip.Currency, trip.MaxParticipants,
		trip.MinParticipants, trip.RemainingCapacity, string(trip.State), nil,
	)
}

func travelerRows(traveler *models.Traveler) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "active", "created_at"}).
		AddRow(traveler.ID.String(), traveler.Email, traveler.FirstName, traveler.LastName, traveler.Active, traveler.CreatedAt)
}

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		PendingTTL:          24 * time.Hour,
		FinalizeMaxAttempts: 3,
		FinalizeBackoff:     time.Millisecond,
		MetadataValueLimit:  500,
		MaxMetadataChunks:   40,
	}
}

func newTestFinalizer(db *sqlx.DB, auditor Auditor, publisher events.Publisher, locker cache.Locker) *BookingFinalizerService {
	cfg := testBookingConfig()
	return NewBookingFinalizerService(
		database.NewBookingRepository(db),
		database.NewParticipantRepository(db),
		database.NewPaymentRepository(db),
		database.NewTripRepository(db),
		database.NewTravelerRepository(db),
		NewBookingSerializer(cfg.MetadataValueLimit, cfg.MaxMetadataChunks),
		locker,
		auditor,
		publisher,
		cfg,
		time.Minute,
		quietLogger(),
	)
}

func newTestPreparation(db *sqlx.DB, gateway PaymentGateway, auditor Auditor, serializer *BookingSerializer) *BookingPreparationService {
	return NewBookingPreparationService(
		database.NewBookingRepository(db),
		database.NewTripRepository(db),
		database.NewTravelerRepository(db),
		NewPricingService(config.DefaultInsurancePlans()),
		serializer,
		gateway,
		auditor,
		"eur",
		quietLogger(),
	)
}
