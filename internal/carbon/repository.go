package carbon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines data access for farms and their measurements
type Repository interface {
	GetFarm(ctx context.Context, companyID, farmID uuid.UUID) (*Farm, error)
	FindFarm(ctx context.Context, companyID, farmID uuid.UUID) (*Farm, error)
	ListFarms(ctx context.Context, companyID uuid.UUID, filter FarmFilter) ([]Farm, error)
	CreateFarm(ctx context.Context, farm *Farm) error
	UpdateFarm(ctx context.Context, farm *Farm) error
	DeleteFarm(ctx context.Context, companyID, farmID uuid.UUID) error
	ListActiveFarms(ctx context.Context) ([]Farm, error)
	ListMeasurements(ctx context.Context, farmID uuid.UUID, measurementType MeasurementType, start, end time.Time) ([]Measurement, error)
	LatestMeasurement(ctx context.Context, farmID uuid.UUID, measurementType MeasurementType, before time.Time) (*Measurement, error)
	UpsertMeasurements(ctx context.Context, measurements []Measurement) (int, error)
	AutoMigrate(ctx context.Context) error
}

// GormRepository implements Repository on PostgreSQL via GORM
type GormRepository struct {
	db *gorm.DB
}

// NewRepository creates a new carbon repository
func NewRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate creates or updates the farm and measurement tables
func (r *GormRepository) AutoMigrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&Farm{}, &Measurement{}); err != nil {
		return fmt.Errorf("failed to migrate carbon tables: %w", err)
	}
	return nil
}

// GetFarm returns the farm if it belongs to companyID and is active.
// Inactive farms are reported as ErrFarmNotFound.
func (r *GormRepository) GetFarm(ctx context.Context, companyID, farmID uuid.UUID) (*Farm, error) {
	return r.firstFarm(r.db.WithContext(ctx).
		Where("id = ? AND company_id = ? AND is_active = ?", farmID, companyID, true))
}

// FindFarm returns the farm if it belongs to companyID, active or not
func (r *GormRepository) FindFarm(ctx context.Context, companyID, farmID uuid.UUID) (*Farm, error) {
	return r.firstFarm(r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", farmID, companyID))
}

func (r *GormRepository) firstFarm(query *gorm.DB) (*Farm, error) {
	var farm Farm
	if err := query.First(&farm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFarmNotFound
		}
		return nil, fmt.Errorf("failed to get farm: %w", err)
	}
	return &farm, nil
}

// ListFarms returns the company's farms, newest first
func (r *GormRepository) ListFarms(ctx context.Context, companyID uuid.UUID, filter FarmFilter) ([]Farm, error) {
	query := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var farms []Farm
	if err := query.Order("created_at DESC").Find(&farms).Error; err != nil {
		return nil, fmt.Errorf("failed to list farms: %w", err)
	}
	return farms, nil
}

// CreateFarm inserts a new farm
func (r *GormRepository) CreateFarm(ctx context.Context, farm *Farm) error {
	if err := r.db.WithContext(ctx).Create(farm).Error; err != nil {
		return fmt.Errorf("failed to create farm: %w", err)
	}
	return nil
}

// UpdateFarm writes the editable farm fields, including zero values
func (r *GormRepository) UpdateFarm(ctx context.Context, farm *Farm) error {
	result := r.db.WithContext(ctx).
		Model(farm).
		Where("company_id = ?", farm.CompanyID).
		Select("name", "description", "area_ha", "geometry", "is_active").
		Updates(farm)
	if result.Error != nil {
		return fmt.Errorf("failed to update farm: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrFarmNotFound
	}
	return nil
}

// DeleteFarm deactivates the farm. Its measurements are kept.
func (r *GormRepository) DeleteFarm(ctx context.Context, companyID, farmID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&Farm{}).
		Where("id = ? AND company_id = ?", farmID, companyID).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to delete farm: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrFarmNotFound
	}
	return nil
}

// ListActiveFarms returns every active farm across companies
func (r *GormRepository) ListActiveFarms(ctx context.Context) ([]Farm, error) {
	var farms []Farm
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&farms).Error; err != nil {
		return nil, fmt.Errorf("failed to list active farms: %w", err)
	}
	return farms, nil
}

// ListMeasurements returns measurements of one type within [start, end], oldest first
func (r *GormRepository) ListMeasurements(ctx context.Context, farmID uuid.UUID, measurementType MeasurementType, start, end time.Time) ([]Measurement, error) {
	var measurements []Measurement
	if err := r.db.WithContext(ctx).
		Where("farm_id = ? AND measurement_type = ?", farmID, measurementType).
		Where("measurement_date BETWEEN ? AND ?", start, end).
		Order("measurement_date ASC").
		Find(&measurements).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s measurements: %w", measurementType, err)
	}
	return measurements, nil
}

// LatestMeasurement returns the most recent measurement on or before the given date.
// It returns nil without error when none exists.
func (r *GormRepository) LatestMeasurement(ctx context.Context, farmID uuid.UUID, measurementType MeasurementType, before time.Time) (*Measurement, error) {
	var measurement Measurement
	err := r.db.WithContext(ctx).
		Where("farm_id = ? AND measurement_type = ? AND measurement_date <= ?", farmID, measurementType, before).
		Order("measurement_date DESC").
		First(&measurement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest %s measurement: %w", measurementType, err)
	}
	return &measurement, nil
}

// UpsertMeasurements inserts measurements, skipping any that already
// exist for the same farm, type and date. It returns the number inserted.
func (r *GormRepository) UpsertMeasurements(ctx context.Context, measurements []Measurement) (int, error) {
	if len(measurements) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "farm_id"}, {Name: "measurement_type"}, {Name: "measurement_date"}},
			DoNothing: true,
		}).
		Create(&measurements)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to store carbon measurements: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}
