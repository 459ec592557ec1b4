package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/api/middleware"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	attemptsPerUnit = 20
)

// UnitHandler exposes sync units and watermarks read-only.
type UnitHandler struct {
	store     *repository.Store
	namespace string
}

// NewUnitHandler creates a handler scoped to namespace.
func NewUnitHandler(store *repository.Store, namespace string) *UnitHandler {
	return &UnitHandler{store: store, namespace: namespace}
}

// UnitListResponse is the page returned by ListUnits.
type UnitListResponse struct {
	Units  []domain.SyncUnit          `json:"units"`
	Total  int64                      `json:"total"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
	States map[domain.UnitState]int64 `json:"states"`
}

// ListUnits handles GET /api/v1/units?state=&limit=&offset=.
func (h *UnitHandler) ListUnits(c *gin.Context) {
	limit, offset := page(c)

	state := domain.UnitState(c.Query("state"))
	if state != "" && !state.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown state " + string(state)})
		return
	}

	ctx := c.Request.Context()
	units, total, err := h.store.Units.List(ctx, repository.UnitFilter{
		Namespace: h.namespace,
		State:     state,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.fail(c, "Failed to list units", err)
		return
	}
	states, err := h.store.Units.CountByState(ctx, h.namespace)
	if err != nil {
		h.fail(c, "Failed to count units", err)
		return
	}
	if units == nil {
		units = []domain.SyncUnit{}
	}

	c.JSON(http.StatusOK, UnitListResponse{
		Units:  units,
		Total:  total,
		Limit:  limit,
		Offset: offset,
		States: states,
	})
}

// GetUnit handles GET /api/v1/units/:id with the unit's latest attempts.
func (h *UnitHandler) GetUnit(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid unit id"})
		return
	}

	ctx := c.Request.Context()
	unit, err := h.store.Units.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unit not found"})
		return
	}
	if err != nil {
		h.fail(c, "Failed to load unit", err)
		return
	}

	attempts, err := h.store.Attempts.ListByUnit(ctx, id, attemptsPerUnit)
	if err != nil {
		h.fail(c, "Failed to load attempts", err)
		return
	}
	if attempts == nil {
		attempts = []domain.FetchAttempt{}
	}

	c.JSON(http.StatusOK, gin.H{
		"unit":     unit,
		"attempts": attempts,
	})
}

// ListWatermarks handles GET /api/v1/watermarks?limit=.
func (h *UnitHandler) ListWatermarks(c *gin.Context) {
	limit, _ := page(c)

	marks, err := h.store.Watermarks.List(c.Request.Context(), h.namespace, limit)
	if err != nil {
		h.fail(c, "Failed to list watermarks", err)
		return
	}
	if marks == nil {
		marks = []domain.SyncWatermark{}
	}
	c.JSON(http.StatusOK, gin.H{"watermarks": marks})
}

func (h *UnitHandler) fail(c *gin.Context, msg string, err error) {
	middleware.GetLogger(c).WithError(err).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func page(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
