package carbon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"carbon-scribe/sequestration-backend/internal/reports/export"
	"carbon-scribe/sequestration-backend/internal/sequestration"
	"carbon-scribe/sequestration-backend/pkg/storage"
)

const dateLayout = sequestration.DateLayout

// Trigger values recorded on estimate events
const (
	TriggerAPI       = "api"
	TriggerScheduler = "scheduler"
)

var (
	ErrFarmNotFound = errors.New("farm not found")
	ErrNoIndexData  = errors.New("no NDVI measurements in the requested range")
	ErrInvalidRange = errors.New("invalid date range")

	ErrExportNotFound  = errors.New("export not found")
	ErrStorageDisabled = errors.New("report storage is not configured")
)

// Estimator runs the sequestration model. *sequestration.Engine satisfies it.
type Estimator interface {
	Estimate(ctx context.Context, req sequestration.EstimateRequest) (*sequestration.AggregateReport, error)
	Catalog() *sequestration.Catalog
}

// ServiceConfig holds the service's tunables
type ServiceConfig struct {
	Timeout       time.Duration
	MaxRangeYears int
	Bucket        string
	Prefix        string
	PresignTTL    time.Duration
}

// Service provides carbon estimation on top of stored farm measurements
type Service struct {
	repo     Repository
	engine   Estimator
	cache    *ReportCache
	notifier Notifier
	store    storage.S3Client // nil disables export upload
	config   ServiceConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new carbon service
func NewService(
	repo Repository,
	engine Estimator,
	cache *ReportCache,
	notifier Notifier,
	store storage.S3Client,
	config ServiceConfig,
	logger *zap.Logger,
) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if config.MaxRangeYears <= 0 {
		config.MaxRangeYears = 5
	}
	return &Service{
		repo:     repo,
		engine:   engine,
		cache:    cache,
		notifier: notifier,
		store:    store,
		config:   config,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CalculateInput identifies a farm and date range to estimate
type CalculateInput struct {
	CompanyID uuid.UUID
	FarmID    uuid.UUID
	Start     time.Time
	End       time.Time
	Trigger   string
}

// Calculate estimates carbon for the farm over [Start, End], stores each
// point as a carbon measurement and caches the response.
func (s *Service) Calculate(ctx context.Context, in CalculateInput) (*CalculationResponse, error) {
	if err := s.validateRange(in.Start, in.End); err != nil {
		return nil, err
	}

	farm, err := s.repo.GetFarm(ctx, in.CompanyID, in.FarmID)
	if err != nil {
		return nil, err
	}

	ndvi, err := s.repo.ListMeasurements(ctx, farm.ID, MeasurementNDVI, in.Start, in.End)
	if err != nil {
		return nil, err
	}
	if len(ndvi) == 0 {
		return nil, ErrNoIndexData
	}

	series := make([]sequestration.IndexMeasurement, len(ndvi))
	for i, m := range ndvi {
		series[i] = sequestration.IndexMeasurement{
			Date:        m.MeasurementDate,
			Value:       m.Value,
			Uncertainty: m.StdDev,
		}
	}

	estimateCtx := ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		estimateCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	report, err := s.engine.Estimate(estimateCtx, sequestration.EstimateRequest{
		Series:    series,
		AreaHa:    farm.AreaHa,
		StartDate: in.Start,
		EndDate:   in.End,
		LandCover: s.landCover(ctx, farm.ID, in.End),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate carbon for farm %s: %w", farm.ID, err)
	}

	measurements, err := carbonMeasurements(farm.ID, report)
	if err != nil {
		return nil, err
	}
	stored, err := s.repo.UpsertMeasurements(ctx, measurements)
	if err != nil {
		return nil, err
	}

	resp := &CalculationResponse{
		FarmID:       farm.ID,
		FarmName:     farm.Name,
		AreaHa:       farm.AreaHa,
		Report:       report,
		StoredPoints: stored,
		CalculatedAt: s.now(),
	}

	if s.cache != nil {
		s.cache.InvalidateFarm(farm.ID)
		s.cache.Set(farm.ID, in.Start, in.End, resp)
	}

	s.notify(ctx, farm, resp, in.Trigger)

	s.logger.Info("Carbon estimate calculated",
		zap.String("farm_id", farm.ID.String()),
		zap.String("trigger", in.Trigger),
		zap.Int("points", len(report.Points)),
		zap.Int("stored", stored),
		zap.Float64("total_co2_tonnes", report.Stats.TotalCO2),
		zap.String("land_use_class", report.Metadata.ResolvedClassLabel()))

	return resp, nil
}

// GetLatest returns the cached estimate for the range, calculating it on a miss
func (s *Service) GetLatest(ctx context.Context, companyID, farmID uuid.UUID, start, end time.Time) (*CalculationResponse, error) {
	if err := s.validateRange(start, end); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetFarm(ctx, companyID, farmID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if resp, ok := s.cache.Get(farmID, start, end); ok {
			return resp, nil
		}
	}

	return s.Calculate(ctx, CalculateInput{
		CompanyID: companyID,
		FarmID:    farmID,
		Start:     start,
		End:       end,
		Trigger:   TriggerAPI,
	})
}

// History returns stored carbon measurements for the farm within [start, end]
func (s *Service) History(ctx context.Context, companyID, farmID uuid.UUID, start, end time.Time) (*HistoryResponse, error) {
	if err := s.validateRange(start, end); err != nil {
		return nil, err
	}

	farm, err := s.repo.GetFarm(ctx, companyID, farmID)
	if err != nil {
		return nil, err
	}

	measurements, err := s.repo.ListMeasurements(ctx, farm.ID, MeasurementCarbon, start, end)
	if err != nil {
		return nil, err
	}

	points := make([]HistoryPoint, 0, len(measurements))
	for _, m := range measurements {
		point := HistoryPoint{
			Date:           m.MeasurementDate.Format(dateLayout),
			CO2TotalTonnes: m.Value,
			StdDev:         m.StdDev,
		}
		var meta CarbonMeta
		if len(m.Meta) > 0 {
			if err := json.Unmarshal(m.Meta, &meta); err != nil {
				s.logger.Warn("Skipping unreadable carbon metadata",
					zap.String("measurement_id", m.ID.String()),
					zap.Error(err))
			} else {
				point.NDVI = meta.NDVI
				point.CarbonTotal = meta.CarbonTotalTonnes
				point.ConfidenceScore = meta.ConfidenceScore
				point.LandUseClass = meta.LandUseClass
			}
		}
		points = append(points, point)
	}

	return &HistoryResponse{
		FarmID:    farm.ID,
		FarmName:  farm.Name,
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		Points:    points,
	}, nil
}

// ExportInput selects the report to export
type ExportInput struct {
	CompanyID uuid.UUID
	FarmID    uuid.UUID
	Start     time.Time
	End       time.Time
	Format    export.Format
}

// ExportRef identifies a stored export, written as "<id>.<format>"
type ExportRef struct {
	ID     uuid.UUID
	Format export.Format
}

func (r ExportRef) String() string {
	return r.ID.String() + "." + string(r.Format)
}

// ParseExportRef parses the "<id>.<format>" form returned by Export
func ParseExportRef(s string) (ExportRef, error) {
	idPart, ext, ok := strings.Cut(s, ".")
	if !ok || ext == "" {
		return ExportRef{}, fmt.Errorf("export reference %q has no format", s)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return ExportRef{}, fmt.Errorf("invalid export ID: %w", err)
	}
	format, err := export.ParseFormat(ext)
	if err != nil {
		return ExportRef{}, err
	}
	return ExportRef{ID: id, Format: format}, nil
}

// ExportResult is a rendered report and, when storage is configured, a
// reference and presigned link to the uploaded copy
type ExportResult struct {
	Artifact *export.Artifact
	Ref      *ExportRef
	URL      string
	Key      string
}

// Export renders the estimate for the range and uploads it to object storage
func (s *Service) Export(ctx context.Context, in ExportInput) (*ExportResult, error) {
	resp, err := s.GetLatest(ctx, in.CompanyID, in.FarmID, in.Start, in.End)
	if err != nil {
		return nil, err
	}

	artifact, err := export.Render(export.Document{
		FarmName:    resp.FarmName,
		AreaHa:      resp.AreaHa,
		Report:      resp.Report,
		GeneratedAt: s.now(),
	}, in.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s export: %w", in.Format, err)
	}

	result := &ExportResult{Artifact: artifact}
	if s.store == nil || s.config.Bucket == "" {
		return result, nil
	}

	ref := ExportRef{ID: uuid.New(), Format: in.Format}
	key := s.exportKey(in.FarmID, ref)
	if err := s.store.Upload(ctx, s.config.Bucket, key, artifact.ContentType, bytes.NewReader(artifact.Data)); err != nil {
		// The download itself still succeeds without the stored copy
		s.logger.Warn("Failed to upload export",
			zap.String("farm_id", in.FarmID.String()),
			zap.String("key", key),
			zap.Error(err))
		return result, nil
	}
	result.Key = key
	result.Ref = &ref

	url, err := s.store.GetPresignedURL(ctx, s.config.Bucket, key, s.config.PresignTTL)
	if err != nil {
		s.logger.Warn("Failed to presign export", zap.String("key", key), zap.Error(err))
		return result, nil
	}
	result.URL = url

	return result, nil
}

// StoredExport downloads a previously uploaded export. Exports of
// deactivated farms stay readable.
func (s *Service) StoredExport(ctx context.Context, companyID, farmID uuid.UUID, ref ExportRef) (*export.Artifact, error) {
	if s.store == nil || s.config.Bucket == "" {
		return nil, ErrStorageDisabled
	}
	if _, err := s.repo.FindFarm(ctx, companyID, farmID); err != nil {
		return nil, err
	}

	rc, err := s.store.Download(ctx, s.config.Bucket, s.exportKey(farmID, ref))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrExportNotFound
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read export %s: %w", ref, err)
	}

	return &export.Artifact{
		Data:        data,
		ContentType: ref.Format.ContentType(),
		Extension:   string(ref.Format),
		Filename:    "carbon_report_" + ref.String(),
	}, nil
}

// DeleteExport removes a stored export
func (s *Service) DeleteExport(ctx context.Context, companyID, farmID uuid.UUID, ref ExportRef) error {
	if s.store == nil || s.config.Bucket == "" {
		return ErrStorageDisabled
	}
	if _, err := s.repo.FindFarm(ctx, companyID, farmID); err != nil {
		return err
	}

	key := s.exportKey(farmID, ref)
	if err := s.store.Delete(ctx, s.config.Bucket, key); err != nil {
		return err
	}
	s.logger.Info("Export deleted", zap.String("farm_id", farmID.String()), zap.String("key", key))
	return nil
}

func (s *Service) exportKey(farmID uuid.UUID, ref ExportRef) string {
	return path.Join(s.config.Prefix, farmID.String(), ref.String())
}

// Catalog lists the land-cover classes and their allometric parameters
func (s *Service) Catalog() *CatalogResponse {
	catalog := s.engine.Catalog()
	classes := catalog.Classes()

	resp := &CatalogResponse{
		Default: catalog.Default(),
		Classes: make([]CatalogEntry, 0, len(classes)),
	}
	for _, class := range classes {
		params, _ := catalog.Lookup(class)
		resp.Classes = append(resp.Classes, CatalogEntry{
			ID:         class.ID(),
			Class:      string(class),
			Parameters: params,
		})
	}
	return resp
}

// CacheStats exposes report cache usage
func (s *Service) CacheStats() CacheStats {
	if s.cache == nil {
		return CacheStats{}
	}
	return s.cache.Stats()
}

func (s *Service) validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidRange)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start date must be before end date", ErrInvalidRange)
	}
	if end.After(start.AddDate(s.config.MaxRangeYears, 0, 0)) {
		return fmt.Errorf("%w: range exceeds %d years", ErrInvalidRange, s.config.MaxRangeYears)
	}
	return nil
}

// landCover decodes the latest classification on or before end. Anything
// unreadable is dropped so the engine falls back to default parameters.
func (s *Service) landCover(ctx context.Context, farmID uuid.UUID, end time.Time) *sequestration.LandCoverSummary {
	m, err := s.repo.LatestMeasurement(ctx, farmID, MeasurementLULC, end)
	if err != nil {
		s.logger.Warn("Failed to load land cover", zap.String("farm_id", farmID.String()), zap.Error(err))
		return nil
	}
	if m == nil || len(m.Meta) == 0 {
		return nil
	}

	var summary sequestration.LandCoverSummary
	if err := json.Unmarshal(m.Meta, &summary); err != nil {
		s.logger.Warn("Failed to decode land cover",
			zap.String("farm_id", farmID.String()),
			zap.String("measurement_id", m.ID.String()),
			zap.Error(err))
		return nil
	}
	return &summary
}

func (s *Service) notify(ctx context.Context, farm *Farm, resp *CalculationResponse, trigger string) {
	report := resp.Report
	event := EstimateCompletedEvent{
		FarmID:         farm.ID,
		CompanyID:      farm.CompanyID,
		StartDate:      report.StartDate.Format(dateLayout),
		EndDate:        report.EndDate.Format(dateLayout),
		TotalCO2Tonnes: report.Stats.TotalCO2,
		MeanConfidence: report.Stats.MeanConfidenceScore,
		LandUseClass:   report.Metadata.ResolvedClassLabel(),
		StoredPoints:   resp.StoredPoints,
		Trigger:        trigger,
		CompletedAt:    resp.CalculatedAt,
	}
	if err := s.notifier.EstimateCompleted(ctx, event); err != nil {
		s.logger.Warn("Failed to publish estimate event",
			zap.String("farm_id", farm.ID.String()),
			zap.Error(err))
	}
}

func carbonMeasurements(farmID uuid.UUID, report *sequestration.AggregateReport) ([]Measurement, error) {
	measurements := make([]Measurement, len(report.Points))
	for i, pt := range report.Points {
		meta, err := json.Marshal(CarbonMeta{
			NDVI:              pt.IndexValue,
			AGBTonnesHa:       pt.BiomassPerHa,
			AGBTotalTonnes:    pt.BiomassTotal,
			CarbonTonnesHa:    pt.CarbonPerHa,
			CarbonTotalTonnes: pt.CarbonTotal,
			CO2TonnesHa:       pt.CO2PerHa,
			AGBStdDevTonnesHa: pt.StdDev,
			ConfidenceScore:   pt.ConfidenceScore,
			CILower:           pt.IntervalLower,
			CIUpper:           pt.IntervalUpper,
			LandUseClass:      report.Metadata.ResolvedClassLabel(),
			ModelVersion:      report.Metadata.ModelVersion,
			MonteCarloSeed:    report.Metadata.Seed,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode carbon metadata: %w", err)
		}

		// Value is total CO2, so the spread is scaled into the same units
		std := pt.StdDev * report.Metadata.CarbonFraction * report.Metadata.CO2ConversionFactor * report.AreaHa
		measurements[i] = Measurement{
			FarmID:          farmID,
			MeasurementType: MeasurementCarbon,
			MeasurementDate: pt.Date,
			Value:           pt.CO2Total,
			StdDev:          &std,
			Meta:            datatypes.JSON(meta),
		}
	}
	return measurements, nil
}
