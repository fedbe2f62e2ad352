package handlers

import (
	"net/http"
	"time"

	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/gin-gonic/gin"
)

// HealthCheck pings the database
func HealthCheck(db database.DB, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
