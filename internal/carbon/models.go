package carbon

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"carbon-scribe/sequestration-backend/internal/sequestration"
)

// MeasurementType identifies what a stored measurement holds
type MeasurementType string

const (
	MeasurementNDVI   MeasurementType = "ndvi"
	MeasurementCarbon MeasurementType = "carbon"
	MeasurementLULC   MeasurementType = "lulc"
)

// Farm is a land parcel owned by a company. Deleting a farm clears
// IsActive so its measurement history is kept.
type Farm struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description,omitempty"`
	AreaHa      float64        `gorm:"not null" json:"area_ha"`
	IsActive    bool           `gorm:"not null;default:true;index" json:"is_active"`
	Geometry    datatypes.JSON `json:"geometry,omitempty"` // GeoJSON, not interpreted here
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// FarmFilter narrows ListFarms
type FarmFilter struct {
	ActiveOnly bool
	Offset     int
	Limit      int
}

// CreateFarmRequest is the body of POST /farms
type CreateFarmRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	AreaHa      float64         `json:"area_ha" binding:"required,gt=0"`
	Geometry    json.RawMessage `json:"geometry,omitempty"`
}

// UpdateFarmRequest is the body of PUT /farms/:farm_id. Absent fields are left unchanged.
type UpdateFarmRequest struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	AreaHa      *float64        `json:"area_ha,omitempty"`
	Geometry    json.RawMessage `json:"geometry,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

// BeforeCreate hook for UUID generation
func (f *Farm) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// Measurement is a dated observation or derived value for a farm.
// NDVI rows carry the index in Value and its std-dev in StdDev; carbon rows
// carry total CO2 in Value and its std-dev in StdDev; LULC rows carry the
// classification in Meta.
type Measurement struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	FarmID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_measurement_farm_type_date" json:"farm_id"`
	MeasurementType MeasurementType `gorm:"type:varchar(32);not null;uniqueIndex:idx_measurement_farm_type_date" json:"measurement_type"`
	MeasurementDate time.Time       `gorm:"type:date;not null;uniqueIndex:idx_measurement_farm_type_date" json:"measurement_date"`
	Value           float64         `gorm:"not null" json:"value"`
	StdDev          *float64        `json:"std_dev,omitempty"`
	Meta            datatypes.JSON  `json:"meta,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// BeforeCreate hook for UUID generation
func (m *Measurement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// CarbonMeta is the JSON payload stored on carbon measurements
type CarbonMeta struct {
	NDVI              float64 `json:"ndvi"`
	AGBTonnesHa       float64 `json:"agb_tonnes_ha"`
	AGBTotalTonnes    float64 `json:"agb_total_tonnes"`
	CarbonTonnesHa    float64 `json:"carbon_tonnes_ha"`
	CarbonTotalTonnes float64 `json:"carbon_total_tonnes"`
	CO2TonnesHa       float64 `json:"co2_tonnes_ha"`
	AGBStdDevTonnesHa float64 `json:"agb_std_dev_tonnes_ha"`
	ConfidenceScore   float64 `json:"confidence_score"`
	CILower           float64 `json:"ci_lower"`
	CIUpper           float64 `json:"ci_upper"`
	LandUseClass      string  `json:"land_use_class"`
	ModelVersion      string  `json:"model_version"`
	MonteCarloSeed    uint64  `json:"monte_carlo_seed"`
}

// CalculateRequest is the body of POST /carbon/calculate
type CalculateRequest struct {
	FarmID    uuid.UUID `json:"farm_id" binding:"required"`
	StartDate string    `json:"start_date" binding:"required"`
	EndDate   string    `json:"end_date" binding:"required"`
}

// CalculationResponse is returned after an estimate has been computed and stored
type CalculationResponse struct {
	FarmID       uuid.UUID                      `json:"farm_id"`
	FarmName     string                         `json:"farm_name"`
	AreaHa       float64                        `json:"area_ha"`
	Report       *sequestration.AggregateReport `json:"report"`
	StoredPoints int                            `json:"stored_points"`
	CalculatedAt time.Time                      `json:"calculated_at"`
}

// HistoryPoint is a stored carbon measurement as returned by the history endpoint
type HistoryPoint struct {
	Date            string   `json:"date"`
	CO2TotalTonnes  float64  `json:"co2_total_tonnes"`
	StdDev          *float64 `json:"std_dev,omitempty"`
	NDVI            float64  `json:"ndvi"`
	CarbonTotal     float64  `json:"carbon_total_tonnes"`
	ConfidenceScore float64  `json:"confidence_score"`
	LandUseClass    string   `json:"land_use_class"`
}

// HistoryResponse lists stored carbon measurements for a farm
type HistoryResponse struct {
	FarmID    uuid.UUID      `json:"farm_id"`
	FarmName  string         `json:"farm_name"`
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Points    []HistoryPoint `json:"data_points"`
}

// CatalogEntry describes one land-cover class and its coefficients
type CatalogEntry struct {
	ID         int                                `json:"id"`
	Class      string                             `json:"class"`
	Parameters sequestration.AllometricParameters `json:"parameters"`
}

// CatalogResponse is returned by GET /carbon/catalog
type CatalogResponse struct {
	Default sequestration.AllometricParameters `json:"default"`
	Classes []CatalogEntry                     `json:"classes"`
}
