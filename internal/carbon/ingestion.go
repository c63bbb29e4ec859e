package carbon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"carbon-scribe/sequestration-backend/internal/sequestration"
)

// ErrNoValidObservations is returned when every submitted observation was rejected
var ErrNoValidObservations = errors.New("no valid observations to ingest")

// ObservationPayload is one vegetation index reading for a farm. NDVI may be
// given directly or derived from red and near-infrared reflectance bands.
type ObservationPayload struct {
	Date       string             `json:"date"`
	NDVI       *float64           `json:"ndvi,omitempty"`
	NDVIStd    *float64           `json:"ndvi_std,omitempty"`
	Bands      map[string]float64 `json:"bands,omitempty"`
	CloudCover float64            `json:"cloud_cover"`
	Source     string             `json:"source"`
}

// LandCoverPayload is a dated land-cover classification
type LandCoverPayload struct {
	Date string `json:"date"`
	sequestration.LandCoverSummary
}

// IngestRequest is the body of POST /carbon/:farm_id/measurements
type IngestRequest struct {
	Observations []ObservationPayload `json:"observations"`
	LandCover    *LandCoverPayload    `json:"land_cover,omitempty"`
}

// RejectedObservation explains why an observation was not stored
type RejectedObservation struct {
	Index  int    `json:"index"`
	Date   string `json:"date,omitempty"`
	Reason string `json:"reason"`
}

// IngestResult summarises an ingestion batch
type IngestResult struct {
	Accepted       int                   `json:"accepted"`
	Stored         int                   `json:"stored"`
	LandCoverSaved bool                  `json:"land_cover_saved"`
	Rejected       []RejectedObservation `json:"rejected,omitempty"`
}

type observationMeta struct {
	Source     string  `json:"source,omitempty"`
	CloudCover float64 `json:"cloud_cover"`
	FromBands  bool    `json:"from_bands,omitempty"`
}

// Ingestion validates and stores NDVI and land-cover measurements
type Ingestion struct {
	repo          Repository
	cache         *ReportCache
	catalog       *sequestration.Catalog
	maxCloudCover float64
	logger        *zap.Logger
}

// NewIngestion creates an ingestion service. Observations cloudier than
// maxCloudCover percent are rejected.
func NewIngestion(repo Repository, cache *ReportCache, catalog *sequestration.Catalog, maxCloudCover float64, logger *zap.Logger) *Ingestion {
	return &Ingestion{
		repo:          repo,
		cache:         cache,
		catalog:       catalog,
		maxCloudCover: maxCloudCover,
		logger:        logger,
	}
}

// Ingest stores the valid observations of req for the farm. Invalid ones are
// reported back rather than failing the batch. Existing dates are kept.
func (i *Ingestion) Ingest(ctx context.Context, companyID, farmID uuid.UUID, req IngestRequest) (*IngestResult, error) {
	farm, err := i.repo.GetFarm(ctx, companyID, farmID)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{}
	measurements := make([]Measurement, 0, len(req.Observations)+1)

	for idx, obs := range req.Observations {
		m, err := i.observationMeasurement(farm.ID, obs)
		if err != nil {
			result.Rejected = append(result.Rejected, RejectedObservation{Index: idx, Date: obs.Date, Reason: err.Error()})
			continue
		}
		measurements = append(measurements, *m)
	}
	result.Accepted = len(measurements)

	if req.LandCover != nil {
		m, err := i.landCoverMeasurement(farm.ID, req.LandCover)
		if err != nil {
			return result, fmt.Errorf("%w: land cover: %s", ErrNoValidObservations, err)
		}
		measurements = append(measurements, *m)
		result.LandCoverSaved = true
	}

	if len(measurements) == 0 {
		return result, ErrNoValidObservations
	}

	stored, err := i.repo.UpsertMeasurements(ctx, measurements)
	if err != nil {
		return nil, err
	}
	result.Stored = stored

	if stored > 0 && i.cache != nil {
		i.cache.InvalidateFarm(farm.ID)
	}

	i.logger.Info("Measurements ingested",
		zap.String("farm_id", farm.ID.String()),
		zap.Int("accepted", result.Accepted),
		zap.Int("stored", stored),
		zap.Int("rejected", len(result.Rejected)),
		zap.Bool("land_cover", result.LandCoverSaved))

	return result, nil
}

func (i *Ingestion) observationMeasurement(farmID uuid.UUID, obs ObservationPayload) (*Measurement, error) {
	date, err := time.Parse(dateLayout, obs.Date)
	if err != nil {
		return nil, errors.New("date must be formatted as YYYY-MM-DD")
	}
	if obs.CloudCover < 0 || obs.CloudCover > 100 {
		return nil, errors.New("cloud cover must be between 0 and 100")
	}
	if i.maxCloudCover > 0 && obs.CloudCover > i.maxCloudCover {
		return nil, fmt.Errorf("cloud cover %.1f%% exceeds %.1f%%", obs.CloudCover, i.maxCloudCover)
	}

	var ndvi float64
	fromBands := false
	switch {
	case obs.NDVI != nil:
		ndvi = *obs.NDVI
	case len(obs.Bands) > 0:
		if ndvi, err = ndviFromBands(obs.Bands); err != nil {
			return nil, err
		}
		fromBands = true
	default:
		return nil, errors.New("ndvi or red/nir bands are required")
	}
	if math.IsNaN(ndvi) || ndvi < -1 || ndvi > 1 {
		return nil, fmt.Errorf("ndvi %v outside [-1, 1]", ndvi)
	}
	if obs.NDVIStd != nil && (*obs.NDVIStd < 0 || math.IsNaN(*obs.NDVIStd)) {
		return nil, errors.New("ndvi_std must be non-negative")
	}

	meta, err := json.Marshal(observationMeta{Source: obs.Source, CloudCover: obs.CloudCover, FromBands: fromBands})
	if err != nil {
		return nil, fmt.Errorf("failed to encode observation metadata: %w", err)
	}

	return &Measurement{
		FarmID:          farmID,
		MeasurementType: MeasurementNDVI,
		MeasurementDate: date,
		Value:           ndvi,
		StdDev:          obs.NDVIStd,
		Meta:            datatypes.JSON(meta),
	}, nil
}

func (i *Ingestion) landCoverMeasurement(farmID uuid.UUID, lc *LandCoverPayload) (*Measurement, error) {
	date, err := time.Parse(dateLayout, lc.Date)
	if err != nil {
		return nil, errors.New("date must be formatted as YYYY-MM-DD")
	}

	class, err := sequestration.ValidateLandCover(&lc.LandCoverSummary, i.catalog)
	if err != nil {
		return nil, err
	}

	meta, err := json.Marshal(lc.LandCoverSummary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode land cover: %w", err)
	}

	return &Measurement{
		FarmID:          farmID,
		MeasurementType: MeasurementLULC,
		MeasurementDate: date,
		Value:           float64(class.ID()),
		Meta:            datatypes.JSON(meta),
	}, nil
}

// ndviFromBands computes (NIR - Red) / (NIR + Red). Sentinel-2 band names
// B8 and B4 are accepted alongside nir and red.
func ndviFromBands(bands map[string]float64) (float64, error) {
	nir, ok := bandValue(bands, "nir", "B8")
	if !ok {
		return 0, errors.New("nir band is required")
	}
	red, ok := bandValue(bands, "red", "B4")
	if !ok {
		return 0, errors.New("red band is required")
	}
	if nir < 0 || red < 0 {
		return 0, errors.New("band reflectance must be non-negative")
	}
	if nir+red == 0 {
		return 0, errors.New("nir and red bands are both zero")
	}
	return (nir - red) / (nir + red), nil
}

func bandValue(bands map[string]float64, names ...string) (float64, bool) {
	for _, name := range names {
		if v, ok := bands[name]; ok {
			return v, true
		}
	}
	return 0, false
}
