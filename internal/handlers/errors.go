package handlers

import (
	"errors"
	"net/http"

	"github.com/adventuretogether/booking-backend/internal/middleware"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/adventuretogether/booking-backend/internal/services"
	"github.com/adventuretogether/booking-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RespondError writes err as {"error", "code", "request_id"} with the status its type maps to.
// Server-side failures are logged; their details never reach the client.
func RespondError(c *gin.Context, logger *logrus.Logger, err error) {
	status, code := classifyError(err)

	body := gin.H{
		"error":      err.Error(),
		"code":       code,
		"request_id": middleware.GetRequestID(c),
	}

	var valErr *models.ValidationError
	if errors.As(err, &valErr) {
		body["fields"] = valErr.Fields
	}

	if status >= http.StatusInternalServerError {
		entry := logger.WithError(err).WithFields(logrus.Fields{
			"path":       c.Request.URL.Path,
			"request_id": middleware.GetRequestID(c),
			"status":     status,
		})
		if status == http.StatusServiceUnavailable {
			entry.Warn("Request failed with a transient error")
		} else {
			entry.Error("Request failed")
		}
		if status == http.StatusInternalServerError && code == "internal_error" {
			body["error"] = "internal server error"
		}
	}

	c.AbortWithStatusJSON(status, body)
}

func classifyError(err error) (int, string) {
	switch {
	case models.IsValidation(err):
		return http.StatusBadRequest, "validation_failed"
	case models.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case models.IsUserNotEligible(err):
		return http.StatusForbidden, "user_not_eligible"
	case models.IsCapacityExceeded(err):
		return http.StatusConflict, "capacity_exceeded"
	case models.IsConflict(err):
		return http.StatusConflict, "conflict"
	case models.IsGateway(err):
		return http.StatusBadGateway, "payment_gateway_error"
	case models.IsIntegrity(err):
		return http.StatusInternalServerError, "integrity_failure"
	case errors.Is(err, models.ErrContention):
		return http.StatusServiceUnavailable, "contention"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// requestMeta collects the caller details recorded on audit entries
func requestMeta(c *gin.Context) services.RequestMeta {
	userAgent := utils.GetUserAgent(c)
	return services.RequestMeta{
		IPAddress:     utils.GetRealIP(c),
		UserAgent:     userAgent,
		ClientDevice:  utils.ClientDevice(userAgent),
		CorrelationID: middleware.GetRequestID(c),
	}
}
