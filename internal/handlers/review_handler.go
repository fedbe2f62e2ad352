package handlers

import (
	"net/http"
	"strconv"

	"github.com/adventuretogether/booking-backend/internal/middleware"
	"github.com/adventuretogether/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReviewHandler exposes the payment review queue to operators
type ReviewHandler struct {
	audits *services.AuditService
	logger *logrus.Logger
}

// NewReviewHandler creates a new ReviewHandler
func NewReviewHandler(audits *services.AuditService, logger *logrus.Logger) *ReviewHandler {
	return &ReviewHandler{audits: audits, logger: logger}
}

// List returns unresolved entries flagged for review, oldest first.
// GET /api/v1/admin/reviews
func (h *ReviewHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	reviews, err := h.audits.OpenReviews(c.Request.Context(), limit)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reviews": reviews,
		"count":   len(reviews),
	})
}

// Resolve closes one review entry.
// POST /api/v1/admin/reviews/:id/resolve
func (h *ReviewHandler) Resolve(c *gin.Context) {
	reviewID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "invalid review id",
			"code":       "invalid_request",
			"request_id": middleware.GetRequestID(c),
		})
		return
	}

	if err := h.audits.ResolveReview(c.Request.Context(), reviewID); err != nil {
		RespondError(c, h.logger, err)
		return
	}

	userCtx, _ := middleware.GetUserContext(c)
	h.logger.WithFields(logrus.Fields{
		"review_id":   reviewID,
		"resolved_by": userCtx.UserID,
	}).Info("Payment review resolved")

	c.JSON(http.StatusOK, gin.H{"id": reviewID, "resolved": true})
}
