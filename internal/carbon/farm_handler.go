package carbon

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/sequestration-backend/internal/auth"
)

// FarmHandler handles HTTP requests for the farm registry
type FarmHandler struct {
	service *FarmService
	logger  *zap.Logger
}

// NewFarmHandler creates a new farm handler
func NewFarmHandler(service *FarmService, logger *zap.Logger) *FarmHandler {
	return &FarmHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers farm routes. The group must run the auth middleware.
func (h *FarmHandler) RegisterRoutes(router *gin.RouterGroup) {
	farms := router.Group("/farms")
	{
		farms.GET("", h.listFarms)
		farms.POST("", h.createFarm)
		farms.GET("/:farm_id", h.getFarm)
		farms.PUT("/:farm_id", h.updateFarm)
		farms.DELETE("/:farm_id", h.deleteFarm)
	}
}

// listFarms handles GET /api/v1/farms?skip&limit&active_only
func (h *FarmHandler) listFarms(c *gin.Context) {
	companyID, ok := auth.CompanyID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "company not resolved"})
		return
	}

	filter := FarmFilter{ActiveOnly: true}
	var err error
	if v := c.Query("skip"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil || filter.Offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "skip must be a non-negative integer"})
			return
		}
	}
	if v := c.Query("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 1 || filter.Limit > maxFarmPageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
	}
	if v := c.Query("active_only"); v != "" {
		if filter.ActiveOnly, err = strconv.ParseBool(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "active_only must be a boolean"})
			return
		}
	}

	farms, err := h.service.List(c.Request.Context(), companyID, filter)
	if err != nil {
		h.writeError(c, err, "Failed to list farms", uuid.Nil)
		return
	}
	c.JSON(http.StatusOK, farms)
}

// createFarm handles POST /api/v1/farms
func (h *FarmHandler) createFarm(c *gin.Context) {
	companyID, ok := auth.CompanyID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "company not resolved"})
		return
	}

	var req CreateFarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	farm, err := h.service.Create(c.Request.Context(), companyID, req)
	if err != nil {
		h.writeError(c, err, "Failed to create farm", uuid.Nil)
		return
	}
	c.JSON(http.StatusCreated, farm)
}

// getFarm handles GET /api/v1/farms/:farm_id
func (h *FarmHandler) getFarm(c *gin.Context) {
	farmID, companyID, ok := h.farmParams(c)
	if !ok {
		return
	}

	farm, err := h.service.Get(c.Request.Context(), companyID, farmID)
	if err != nil {
		h.writeError(c, err, "Failed to get farm", farmID)
		return
	}
	c.JSON(http.StatusOK, farm)
}

// updateFarm handles PUT /api/v1/farms/:farm_id
func (h *FarmHandler) updateFarm(c *gin.Context) {
	farmID, companyID, ok := h.farmParams(c)
	if !ok {
		return
	}

	var req UpdateFarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	farm, err := h.service.Update(c.Request.Context(), companyID, farmID, req)
	if err != nil {
		h.writeError(c, err, "Failed to update farm", farmID)
		return
	}
	c.JSON(http.StatusOK, farm)
}

// deleteFarm handles DELETE /api/v1/farms/:farm_id
func (h *FarmHandler) deleteFarm(c *gin.Context) {
	farmID, companyID, ok := h.farmParams(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), companyID, farmID); err != nil {
		h.writeError(c, err, "Failed to delete farm", farmID)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FarmHandler) farmParams(c *gin.Context) (farmID, companyID uuid.UUID, ok bool) {
	farmID, err := uuid.Parse(c.Param("farm_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid farm ID"})
		return farmID, companyID, false
	}

	companyID, ok = auth.CompanyID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "company not resolved"})
	}
	return farmID, companyID, ok
}

func (h *FarmHandler) writeError(c *gin.Context, err error, msg string, farmID uuid.UUID) {
	switch {
	case errors.Is(err, ErrFarmNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidFarm):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.String("farm_id", farmID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
