package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/phpdave11/gofpdf"
)

// Receipt is a rendered payment receipt
type Receipt struct {
	Filename string
	Content  []byte
}

// ReceiptService renders PDF receipts for confirmed bookings
type ReceiptService struct {
	query *BookingQueryService
	trips *database.TripRepository
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(query *BookingQueryService, trips *database.TripRepository) *ReceiptService {
	return &ReceiptService{query: query, trips: trips}
}

// Render builds the receipt of a booking. Only CONFIRMED bookings have one.
func (s *ReceiptService) Render(ctx context.Context, bookingID uuid.UUID) (*Receipt, error) {
	booking, err := s.query.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusConfirmed || booking.Payment == nil {
		return nil, &models.ConflictError{Resource: "booking", Msg: "receipt is only available for confirmed bookings"}
	}

	trip, err := s.trips.GetByID(ctx, booking.TripID)
	if err != nil {
		return nil, err
	}
	tripTitle := booking.TripID.String()
	if trip != nil {
		tripTitle = trip.Title
	}

	content, err := buildReceiptPDF(booking, tripTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}

	return &Receipt{
		Filename: fmt.Sprintf("receipt-%s.pdf", booking.ID),
		Content:  content,
	}, nil
}

func buildReceiptPDF(booking *models.Booking, tripTitle string) ([]byte, error) {
	payment := booking.Payment
	currency := strings.ToUpper(payment.Currency)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Payment receipt", false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "PAYMENT RECEIPT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, "Booking      : "+booking.ID.String())
	pdf.Ln(7)
	pdf.Cell(0, 7, "Trip         : "+tr(tripTitle))
	pdf.Ln(7)
	pdf.Cell(0, 7, "Payment date : "+payment.PaymentDate.Format("2006-01-02 15:04"))
	pdf.Ln(7)
	pdf.Cell(0, 7, "Reference    : "+payment.PaymentIntentID)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Participants")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	for i, p := range booking.Participants {
		line := fmt.Sprintf("%d) %s (born %s)", i+1, p.FullName(), p.DateOfBirth.Format("2006-01-02"))
		pdf.Cell(0, 6, tr(line))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Amounts")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Trip cost    : %.2f %s", booking.TripCost, currency))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Insurance    : %.2f %s (%s)", payment.AmountInsurance, currency, booking.InsuranceType))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Total paid   : %.2f %s", payment.AmountPaid, currency))
	pdf.Ln(12)

	if booking.NeedsReview {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, 6, "This booking is being reviewed by our team. We will contact you if anything changes.", "", "", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
