package carbon

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"carbon-scribe/sequestration-backend/internal/sequestration"
	"carbon-scribe/sequestration-backend/pkg/storage"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetFarm(ctx context.Context, companyID, farmID uuid.UUID) (*Farm, error) {
	args := m.Called(ctx, companyID, farmID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Farm), args.Error(1)
}

func (m *MockRepository) FindFarm(ctx context.Context, companyID, farmID uuid.UUID) (*Farm, error) {
	args := m.Called(ctx, companyID, farmID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Farm), args.Error(1)
}

func (m *MockRepository) ListFarms(ctx context.Context, companyID uuid.UUID, filter FarmFilter) ([]Farm, error) {
	args := m.Called(ctx, companyID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Farm), args.Error(1)
}

func (m *MockRepository) CreateFarm(ctx context.Context, farm *Farm) error {
	args := m.Called(ctx, farm)
	return args.Error(0)
}

func (m *MockRepository) UpdateFarm(ctx context.Context, farm *Farm) error {
	args := m.Called(ctx, farm)
	return args.Error(0)
}

func (m *MockRepository) DeleteFarm(ctx context.Context, companyID, farmID uuid.UUID) error {
	args := m.Called(ctx, companyID, farmID)
	return args.Error(0)
}

func (m *MockRepository) ListActiveFarms(ctx context.Context) ([]Farm, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Farm), args.Error(1)
}

func (m *MockRepository) ListMeasurements(ctx context.Context, farmID uuid.UUID, measurementType MeasurementType, start, end time.Time) ([]Measurement, error) {
	args := m.Called(ctx, farmID, measurementType, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Measurement), args.Error(1)
}

func (m *MockRepository) LatestMeasurement(ctx context.Context, farmID uuid.UUID, measurementType MeasurementType, before time.Time) (*Measurement, error) {
	args := m.Called(ctx, farmID, measurementType, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Measurement), args.Error(1)
}

func (m *MockRepository) UpsertMeasurements(ctx context.Context, measurements []Measurement) (int, error) {
	args := m.Called(ctx, measurements)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) AutoMigrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockNotifier records published events
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) EstimateCompleted(ctx context.Context, event EstimateCompletedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

var (
	testStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
)

func testFarm() *Farm {
	return &Farm{
		ID:        uuid.New(),
		CompanyID: uuid.New(),
		Name:      "North Ridge Farm",
		AreaHa:    120.5,
		IsActive:  true,
	}
}

func ndviSeries(farmID uuid.UUID, values ...float64) []Measurement {
	out := make([]Measurement, len(values))
	for i, v := range values {
		out[i] = Measurement{
			ID:              uuid.New(),
			FarmID:          farmID,
			MeasurementType: MeasurementNDVI,
			MeasurementDate: testStart.AddDate(0, 2*i, 14),
			Value:           v,
		}
	}
	return out
}

func lulcMeasurement(t *testing.T, farmID uuid.UUID, summary any) *Measurement {
	t.Helper()
	raw, err := json.Marshal(summary)
	require.NoError(t, err)
	return &Measurement{
		ID:              uuid.New(),
		FarmID:          farmID,
		MeasurementType: MeasurementLULC,
		MeasurementDate: testStart,
		Meta:            datatypes.JSON(raw),
	}
}

type testDeps struct {
	repo      *MockRepository
	notifier  *MockNotifier
	store     *storage.MemoryClient
	cache     *ReportCache
	service   *Service
	ingestion *Ingestion
	farms     *FarmService
}

func newTestService(t *testing.T) *testDeps {
	t.Helper()

	engine, err := sequestration.NewEngine(
		sequestration.WithIterations(500),
		sequestration.WithSeed(7),
	)
	require.NoError(t, err)

	deps := &testDeps{
		repo:     new(MockRepository),
		notifier: new(MockNotifier),
		store:    storage.NewMemoryClient(),
		cache:    NewReportCache(time.Minute),
	}
	t.Cleanup(deps.cache.Stop)

	deps.service = NewService(deps.repo, engine, deps.cache, deps.notifier, deps.store, ServiceConfig{
		Timeout:       10 * time.Second,
		MaxRangeYears: 5,
		Bucket:        "reports",
		Prefix:        "reports/carbon",
		PresignTTL:    15 * time.Minute,
	}, zap.NewNop())
	deps.ingestion = NewIngestion(deps.repo, deps.cache, engine.Catalog(), 60, zap.NewNop())
	deps.farms = NewFarmService(deps.repo, deps.cache, zap.NewNop())
	return deps
}

// expectCalculation wires the repository calls made by a successful Calculate
func (d *testDeps) expectCalculation(farm *Farm, series []Measurement, lulc *Measurement) {
	d.repo.On("GetFarm", mock.Anything, farm.CompanyID, farm.ID).Return(farm, nil)
	d.repo.On("ListMeasurements", mock.Anything, farm.ID, MeasurementNDVI, mock.Anything, mock.Anything).Return(series, nil)
	if lulc == nil {
		d.repo.On("LatestMeasurement", mock.Anything, farm.ID, MeasurementLULC, mock.Anything).Return(nil, nil)
	} else {
		d.repo.On("LatestMeasurement", mock.Anything, farm.ID, MeasurementLULC, mock.Anything).Return(lulc, nil)
	}
	d.repo.On("UpsertMeasurements", mock.Anything, mock.Anything).Return(len(series), nil)
	d.notifier.On("EstimateCompleted", mock.Anything, mock.Anything).Return(nil)
}
