package handlers

import (
	"net/http"
	"strconv"

	"github.com/adventuretogether/booking-backend/internal/middleware"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/adventuretogether/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BookingHandler handles traveler booking endpoints
type BookingHandler struct {
	preparation *services.BookingPreparationService
	query       *services.BookingQueryService
	receipts    *services.ReceiptService
	logger      *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(
	preparation *services.BookingPreparationService,
	query *services.BookingQueryService,
	receipts *services.ReceiptService,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		preparation: preparation,
		query:       query,
		receipts:    receipts,
		logger:      logger,
	}
}

// ============================================================================
// PREPARE - POST /api/v1/bookings/prepare
// ============================================================================

// Prepare validates the request, records a PENDING booking and returns the payment intent secret
func (h *BookingHandler) Prepare(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.PrepareBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "invalid request: " + err.Error(),
			"code":       "invalid_request",
			"request_id": middleware.GetRequestID(c),
		})
		return
	}

	response, err := h.preparation.StartBookingAndPayment(c.Request.Context(), userCtx.UserID, &req, requestMeta(c))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ============================================================================
// LIST - GET /api/v1/bookings
// ============================================================================

// List returns the caller's bookings, newest first
func (h *BookingHandler) List(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	limit, offset = services.NormalizePage(limit, offset)

	bookings, err := h.query.GetBookingsByTravelerID(c.Request.Context(), userCtx.UserID, limit, offset)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.BookingListResponse{
		Bookings: bookings,
		Limit:    limit,
		Offset:   offset,
	})
}

// ============================================================================
// GET - GET /api/v1/bookings/:id
// ============================================================================

// Get returns one booking with its participants and payment
func (h *BookingHandler) Get(c *gin.Context) {
	booking, ok := h.loadOwnedBooking(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// RECEIPT - GET /api/v1/bookings/:id/receipt
// ============================================================================

// Receipt streams the PDF receipt of a confirmed booking
func (h *BookingHandler) Receipt(c *gin.Context) {
	booking, ok := h.loadOwnedBooking(c)
	if !ok {
		return
	}

	receipt, err := h.receipts.Render(c.Request.Context(), booking.ID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+receipt.Filename+`"`)
	c.Data(http.StatusOK, "application/pdf", receipt.Content)
}

// loadOwnedBooking loads the booking in the path and checks the caller may see it.
// Admins can see every booking.
func (h *BookingHandler) loadOwnedBooking(c *gin.Context) (*models.Booking, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return nil, false
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "invalid booking id",
			"code":       "invalid_request",
			"request_id": middleware.GetRequestID(c),
		})
		return nil, false
	}

	booking, err := h.query.GetBookingByID(c.Request.Context(), bookingID)
	if err != nil {
		RespondError(c, h.logger, err)
		return nil, false
	}

	// Someone else's booking looks exactly like a missing one
	if booking.TravelerID != userCtx.UserID && !userCtx.HasRole(middleware.RoleAdmin) {
		h.logger.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"user_id":    userCtx.UserID,
		}).Warn("Booking access denied")
		RespondError(c, h.logger, &models.NotFoundError{Resource: "booking", ID: bookingID.String()})
		return nil, false
	}

	return booking, true
}
