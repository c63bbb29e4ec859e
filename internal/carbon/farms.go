package carbon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ErrInvalidFarm is returned when farm fields fail validation
var ErrInvalidFarm = errors.New("invalid farm")

const (
	defaultFarmPageSize = 10
	maxFarmPageSize     = 100
)

// FarmService manages the farm registry for a company
type FarmService struct {
	repo   Repository
	cache  *ReportCache
	logger *zap.Logger
}

// NewFarmService creates a new farm service
func NewFarmService(repo Repository, cache *ReportCache, logger *zap.Logger) *FarmService {
	return &FarmService{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// List returns a page of the company's farms. A non-positive limit uses
// the default page size and limits above the maximum are capped.
func (s *FarmService) List(ctx context.Context, companyID uuid.UUID, filter FarmFilter) ([]Farm, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultFarmPageSize
	}
	if filter.Limit > maxFarmPageSize {
		filter.Limit = maxFarmPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListFarms(ctx, companyID, filter)
}

// Get returns one farm, active or not
func (s *FarmService) Get(ctx context.Context, companyID, farmID uuid.UUID) (*Farm, error) {
	return s.repo.FindFarm(ctx, companyID, farmID)
}

// Create registers a new active farm for the company
func (s *FarmService) Create(ctx context.Context, companyID uuid.UUID, req CreateFarmRequest) (*Farm, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidFarm)
	}
	if err := validateArea(req.AreaHa); err != nil {
		return nil, err
	}
	geometry, err := validateGeometry(req.Geometry)
	if err != nil {
		return nil, err
	}

	farm := &Farm{
		CompanyID:   companyID,
		Name:        name,
		Description: req.Description,
		AreaHa:      req.AreaHa,
		IsActive:    true,
		Geometry:    geometry,
	}
	if err := s.repo.CreateFarm(ctx, farm); err != nil {
		return nil, err
	}

	s.logger.Info("Farm created",
		zap.String("farm_id", farm.ID.String()),
		zap.String("company_id", companyID.String()),
		zap.Float64("area_ha", farm.AreaHa))
	return farm, nil
}

// Update applies the fields present in req. Cached reports are dropped
// when the area or active state changes.
func (s *FarmService) Update(ctx context.Context, companyID, farmID uuid.UUID, req UpdateFarmRequest) (*Farm, error) {
	farm, err := s.repo.FindFarm(ctx, companyID, farmID)
	if err != nil {
		return nil, err
	}

	invalidate := false
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidFarm)
		}
		farm.Name = name
	}
	if req.Description != nil {
		farm.Description = *req.Description
	}
	if req.AreaHa != nil {
		if err := validateArea(*req.AreaHa); err != nil {
			return nil, err
		}
		invalidate = invalidate || farm.AreaHa != *req.AreaHa
		farm.AreaHa = *req.AreaHa
	}
	if len(req.Geometry) > 0 {
		geometry, err := validateGeometry(req.Geometry)
		if err != nil {
			return nil, err
		}
		farm.Geometry = geometry
	}
	if req.IsActive != nil {
		invalidate = invalidate || farm.IsActive != *req.IsActive
		farm.IsActive = *req.IsActive
	}

	if err := s.repo.UpdateFarm(ctx, farm); err != nil {
		return nil, err
	}
	if invalidate && s.cache != nil {
		s.cache.InvalidateFarm(farm.ID)
	}

	s.logger.Info("Farm updated",
		zap.String("farm_id", farm.ID.String()),
		zap.Bool("is_active", farm.IsActive))
	return farm, nil
}

// Delete deactivates the farm, keeping its measurements
func (s *FarmService) Delete(ctx context.Context, companyID, farmID uuid.UUID) error {
	if err := s.repo.DeleteFarm(ctx, companyID, farmID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateFarm(farmID)
	}
	s.logger.Info("Farm deactivated", zap.String("farm_id", farmID.String()))
	return nil
}

func validateArea(area float64) error {
	if !(area > 0) || math.IsInf(area, 0) {
		return fmt.Errorf("%w: area_ha must be positive", ErrInvalidFarm)
	}
	return nil
}

// validateGeometry accepts an empty value or a JSON object with a GeoJSON type
func validateGeometry(raw json.RawMessage) (datatypes.JSON, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var geom struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &geom); err != nil {
		return nil, fmt.Errorf("%w: geometry must be a GeoJSON object", ErrInvalidFarm)
	}
	if geom.Type == "" {
		return nil, fmt.Errorf("%w: geometry type is required", ErrInvalidFarm)
	}
	return datatypes.JSON(raw), nil
}
