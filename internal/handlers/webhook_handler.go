package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/adventuretogether/booking-backend/internal/middleware"
	"github.com/adventuretogether/booking-backend/internal/services"
	"github.com/adventuretogether/booking-backend/pkg/webhook"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// maxWebhookBody bounds the body read before the signature is checked
const maxWebhookBody = 64 << 10

// WebhookHandler receives gateway notifications
type WebhookHandler struct {
	verifier *webhook.Verifier
	service  *services.WebhookService
	logger   *logrus.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(
	verifier *webhook.Verifier,
	service *services.WebhookService,
	logger *logrus.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		service:  service,
		logger:   logger,
	}
}

// ============================================================================
// STRIPE WEBHOOK - POST /stripe/webhook
// ============================================================================

// HandleStripe verifies the signature over the raw body and dispatches the event.
// A 2xx tells the gateway to stop retrying, so only handled or safely ignorable
// events get one. Unverified requests never reach persistence.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	meta := requestMeta(c)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	if len(payload) > maxWebhookBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":      "payload too large",
			"code":       "payload_too_large",
			"request_id": meta.CorrelationID,
		})
		return
	}

	event, err := h.verifier.Verify(payload, c.GetHeader(webhook.SignatureHeader))
	if err != nil {
		code := "signature_invalid"
		if errors.Is(err, webhook.ErrInvalidPayload) {
			code = "invalid_payload"
		}
		h.logger.WithError(err).WithFields(logrus.Fields{
			"ip":         meta.IPAddress,
			"request_id": meta.CorrelationID,
			"code":       code,
			"body_bytes": len(payload),
		}).Warn("Webhook signature rejected")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "invalid webhook signature",
			"code":       code,
			"request_id": middleware.GetRequestID(c),
		})
		return
	}

	result, err := h.service.HandleEvent(c.Request.Context(), event, meta)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
