package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/api/middleware"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
	"gorm.io/gorm"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

// NewHealthHandler creates a new health handler. loc is the calendar
// timezone the scheduler buckets days in.
func NewHealthHandler(db *gorm.DB, loc *time.Location) *HealthHandler {
	return &HealthHandler{db: db, loc: loc, now: time.Now}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Database handles GET /health/db and reports the round-trip latency.
func (h *HealthHandler) Database(c *gin.Context) {
	took, err := repository.Ping(c.Request.Context(), h.db)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Database ping failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"latency_ms": took.Milliseconds(),
	})
}

// Time handles GET /health/time: the application clock next to the
// database clock, for spotting timezone drift between the two.
func (h *HealthHandler) Time(c *gin.Context) {
	now := h.now()
	app := gin.H{
		"timezone": h.loc.String(),
		"now":      now.In(h.loc).Format(time.RFC3339),
		"utc":      now.UTC().Format(time.RFC3339),
	}

	clock, err := repository.DatabaseClock(c.Request.Context(), h.db)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Database clock failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"app":    app,
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"app":      app,
		"database": clock,
	})
}
