package carbon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/sequestration-backend/internal/auth"
	"carbon-scribe/sequestration-backend/internal/reports/export"
	"carbon-scribe/sequestration-backend/internal/sequestration"
)

// Handler handles HTTP requests for carbon estimation
type Handler struct {
	service   *Service
	ingestion *Ingestion
	logger    *zap.Logger
}

// NewHandler creates a new carbon handler
func NewHandler(service *Service, ingestion *Ingestion, logger *zap.Logger) *Handler {
	return &Handler{
		service:   service,
		ingestion: ingestion,
		logger:    logger,
	}
}

// RegisterRoutes registers carbon routes. The group must run the auth middleware.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	carbon := router.Group("/carbon")
	{
		carbon.POST("/calculate", h.calculate)
		carbon.GET("/catalog", h.getCatalog)
		carbon.GET("/:farm_id", h.getHistory)
		carbon.GET("/:farm_id/latest", h.getLatest)
		carbon.GET("/:farm_id/export", h.exportReport)
		carbon.GET("/:farm_id/exports/:export_id", h.getStoredExport)
		carbon.DELETE("/:farm_id/exports/:export_id", h.deleteStoredExport)
		carbon.POST("/:farm_id/measurements", h.ingestMeasurements)
	}
}

// calculate handles POST /api/v1/carbon/calculate
func (h *Handler) calculate(c *gin.Context) {
	var req CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	companyID, ok := auth.CompanyID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "company not resolved"})
		return
	}

	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.Calculate(c.Request.Context(), CalculateInput{
		CompanyID: companyID,
		FarmID:    req.FarmID,
		Start:     start,
		End:       end,
		Trigger:   TriggerAPI,
	})
	if err != nil {
		h.writeError(c, err, "Failed to calculate carbon", req.FarmID)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// getCatalog handles GET /api/v1/carbon/catalog
func (h *Handler) getCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Catalog())
}

// getHistory handles GET /api/v1/carbon/:farm_id
func (h *Handler) getHistory(c *gin.Context) {
	farmID, companyID, start, end, ok := h.farmRangeParams(c)
	if !ok {
		return
	}

	resp, err := h.service.History(c.Request.Context(), companyID, farmID, start, end)
	if err != nil {
		h.writeError(c, err, "Failed to load carbon history", farmID)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// getLatest handles GET /api/v1/carbon/:farm_id/latest
func (h *Handler) getLatest(c *gin.Context) {
	farmID, companyID, start, end, ok := h.farmRangeParams(c)
	if !ok {
		return
	}

	resp, err := h.service.GetLatest(c.Request.Context(), companyID, farmID, start, end)
	if err != nil {
		h.writeError(c, err, "Failed to get carbon estimate", farmID)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// exportReport handles GET /api/v1/carbon/:farm_id/export
func (h *Handler) exportReport(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", "csv"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	farmID, companyID, start, end, ok := h.farmRangeParams(c)
	if !ok {
		return
	}

	result, err := h.service.Export(c.Request.Context(), ExportInput{
		CompanyID: companyID,
		FarmID:    farmID,
		Start:     start,
		End:       end,
		Format:    format,
	})
	if err != nil {
		h.writeError(c, err, "Failed to export carbon report", farmID)
		return
	}

	if result.Ref != nil {
		c.Header("X-Report-ID", result.Ref.String())
	}
	if result.URL != "" {
		c.Header("X-Report-URL", result.URL)
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Artifact.Filename))
	c.Data(http.StatusOK, result.Artifact.ContentType, result.Artifact.Data)
}

// ingestMeasurements handles POST /api/v1/carbon/:farm_id/measurements
func (h *Handler) ingestMeasurements(c *gin.Context) {
	farmID, err := uuid.Parse(c.Param("farm_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid farm ID"})
		return
	}

	companyID, ok := auth.CompanyID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "company not resolved"})
		return
	}

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.ingestion.Ingest(c.Request.Context(), companyID, farmID, req)
	if errors.Is(err, ErrNoValidObservations) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "result": result})
		return
	}
	if err != nil {
		h.writeError(c, err, "Failed to ingest measurements", farmID)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// getStoredExport handles GET /api/v1/carbon/:farm_id/exports/:export_id
func (h *Handler) getStoredExport(c *gin.Context) {
	farmID, companyID, ref, ok := h.exportParams(c)
	if !ok {
		return
	}

	artifact, err := h.service.StoredExport(c.Request.Context(), companyID, farmID, ref)
	if err != nil {
		h.writeError(c, err, "Failed to fetch stored export", farmID)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

// deleteStoredExport handles DELETE /api/v1/carbon/:farm_id/exports/:export_id
func (h *Handler) deleteStoredExport(c *gin.Context) {
	farmID, companyID, ref, ok := h.exportParams(c)
	if !ok {
		return
	}

	if err := h.service.DeleteExport(c.Request.Context(), companyID, farmID, ref); err != nil {
		h.writeError(c, err, "Failed to delete stored export", farmID)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) exportParams(c *gin.Context) (farmID, companyID uuid.UUID, ref ExportRef, ok bool) {
	farmID, err := uuid.Parse(c.Param("farm_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid farm ID"})
		return farmID, companyID, ref, false
	}
	if ref, err = ParseExportRef(c.Param("export_id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return farmID, companyID, ref, false
	}

	companyID, ok = auth.CompanyID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "company not resolved"})
	}
	return farmID, companyID, ref, ok
}

// farmRangeParams reads the farm ID, the caller's company and the
// start_date/end_date query. The range defaults to the trailing year.
func (h *Handler) farmRangeParams(c *gin.Context) (farmID, companyID uuid.UUID, start, end time.Time, ok bool) {
	farmID, err := uuid.Parse(c.Param("farm_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid farm ID"})
		return
	}

	companyID, ok = auth.CompanyID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "company not resolved"})
		return
	}

	end = time.Now().UTC().Truncate(24 * time.Hour)
	if v := c.Query("end_date"); v != "" {
		if end, err = parseDate("end_date", v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return farmID, companyID, start, end, false
		}
	}
	start = end.AddDate(-1, 0, 0)
	if v := c.Query("start_date"); v != "" {
		if start, err = parseDate("start_date", v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return farmID, companyID, start, end, false
		}
	}

	return farmID, companyID, start, end, true
}

func (h *Handler) writeError(c *gin.Context, err error, msg string, farmID uuid.UUID) {
	var calcErr *sequestration.CalculationError
	switch {
	case errors.Is(err, ErrFarmNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNoIndexData):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrExportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrStorageDisabled):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &calcErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   calcErr.Message,
			"field":   calcErr.Field,
			"details": calcErr.Details,
		})
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Error(msg, zap.String("farm_id", farmID.String()), zap.Error(err))
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "estimation timed out"})
	case sequestration.IsInternalError(err):
		h.logger.Error(msg, zap.String("farm_id", farmID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal estimation failure"})
	default:
		h.logger.Error(msg, zap.String("farm_id", farmID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be formatted as YYYY-MM-DD", field)
	}
	return t, nil
}
