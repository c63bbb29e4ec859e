package carbon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"carbon-scribe/sequestration-backend/internal/sequestration"
)

func ptr(v float64) *float64 { return &v }

func TestIngestStoresValidObservations(t *testing.T) {
	d := newTestService(t)
	farm := testFarm()
	d.repo.On("GetFarm", mock.Anything, farm.CompanyID, farm.ID).Return(farm, nil)

	var stored []Measurement
	d.repo.On("UpsertMeasurements", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).([]Measurement) }).
		Return(2, nil)

	result, err := d.ingestion.Ingest(context.Background(), farm.CompanyID, farm.ID, IngestRequest{
		Observations: []ObservationPayload{
			{Date: "2023-03-15", NDVI: ptr(0.52), NDVIStd: ptr(0.03), CloudCover: 12, Source: "sentinel-2"},
			{Date: "2023-04-15", Bands: map[string]float64{"B8": 0.4, "B4": 0.1}, CloudCover: 5},
			{Date: "2023-05-15", NDVI: ptr(0.6), CloudCover: 85},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Accepted)
	assert.Equal(t, 2, result.Stored)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, 2, result.Rejected[0].Index)
	assert.Contains(t, result.Rejected[0].Reason, "cloud cover")

	require.Len(t, stored, 2)
	assert.Equal(t, MeasurementNDVI, stored[0].MeasurementType)
	assert.Equal(t, 0.52, stored[0].Value)
	require.NotNil(t, stored[0].StdDev)
	assert.Equal(t, 0.03, *stored[0].StdDev)
	assert.InDelta(t, 0.6, stored[1].Value, 1e-9)

	var meta observationMeta
	require.NoError(t, json.Unmarshal(stored[1].Meta, &meta))
	assert.True(t, meta.FromBands)
}

func TestIngestInvalidatesCachedReports(t *testing.T) {
	d := newTestService(t)
	farm := testFarm()
	d.expectCalculation(farm, ndviSeries(farm.ID, 0.5), nil)

	_, err := d.service.GetLatest(context.Background(), farm.CompanyID, farm.ID, testStart, testEnd)
	require.NoError(t, err)
	require.Equal(t, 1, d.cache.Stats().Size)

	_, err = d.ingestion.Ingest(context.Background(), farm.CompanyID, farm.ID, IngestRequest{
		Observations: []ObservationPayload{{Date: "2023-06-01", NDVI: ptr(0.55)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, d.cache.Stats().Size)
}

func TestIngestLandCover(t *testing.T) {
	d := newTestService(t)
	farm := testFarm()
	d.repo.On("GetFarm", mock.Anything, farm.CompanyID, farm.ID).Return(farm, nil)

	var stored []Measurement
	d.repo.On("UpsertMeasurements", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).([]Measurement) }).
		Return(1, nil)

	result, err := d.ingestion.Ingest(context.Background(), farm.CompanyID, farm.ID, IngestRequest{
		LandCover: &LandCoverPayload{
			Date: "2023-01-01",
			LandCoverSummary: sequestration.LandCoverSummary{
				DominantClass: "Crops",
				TotalAreaHa:   120.5,
				Classes: []sequestration.LandCoverShare{
					{ID: 4, Name: "Crops", AreaHa: 100, Percentage: 83},
				},
			},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.LandCoverSaved)

	require.Len(t, stored, 1)
	assert.Equal(t, MeasurementLULC, stored[0].MeasurementType)
	assert.Equal(t, 4.0, stored[0].Value)

	var summary sequestration.LandCoverSummary
	require.NoError(t, json.Unmarshal(stored[0].Meta, &summary))
	assert.Equal(t, "Crops", summary.DominantClass)
}

func TestIngestRejectsEverything(t *testing.T) {
	d := newTestService(t)
	farm := testFarm()
	d.repo.On("GetFarm", mock.Anything, farm.CompanyID, farm.ID).Return(farm, nil)

	tests := []struct {
		name   string
		obs    ObservationPayload
		reason string
	}{
		{"bad date", ObservationPayload{Date: "15/03/2023", NDVI: ptr(0.5)}, "YYYY-MM-DD"},
		{"cloud cover range", ObservationPayload{Date: "2023-03-15", NDVI: ptr(0.5), CloudCover: 120}, "between 0 and 100"},
		{"no index", ObservationPayload{Date: "2023-03-15"}, "required"},
		{"ndvi range", ObservationPayload{Date: "2023-03-15", NDVI: ptr(1.4)}, "outside"},
		{"negative std", ObservationPayload{Date: "2023-03-15", NDVI: ptr(0.5), NDVIStd: ptr(-0.1)}, "non-negative"},
		{"missing red", ObservationPayload{Date: "2023-03-15", Bands: map[string]float64{"nir": 0.3}}, "red band"},
		{"zero bands", ObservationPayload{Date: "2023-03-15", Bands: map[string]float64{"nir": 0, "red": 0}}, "both zero"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := d.ingestion.Ingest(context.Background(), farm.CompanyID, farm.ID, IngestRequest{
				Observations: []ObservationPayload{tt.obs},
			})
			require.ErrorIs(t, err, ErrNoValidObservations)
			require.Len(t, result.Rejected, 1)
			assert.Contains(t, result.Rejected[0].Reason, tt.reason)
		})
	}
	d.repo.AssertNotCalled(t, "UpsertMeasurements", mock.Anything, mock.Anything)
}

func TestIngestUnknownLandCoverClass(t *testing.T) {
	d := newTestService(t)
	farm := testFarm()
	d.repo.On("GetFarm", mock.Anything, farm.CompanyID, farm.ID).Return(farm, nil)

	_, err := d.ingestion.Ingest(context.Background(), farm.CompanyID, farm.ID, IngestRequest{
		LandCover: &LandCoverPayload{
			Date:             "2023-01-01",
			LandCoverSummary: sequestration.LandCoverSummary{DominantClass: "Mangrove"},
		},
	})
	require.ErrorIs(t, err, ErrNoValidObservations)
	assert.Contains(t, err.Error(), "Mangrove")
}

func TestIngestUnknownFarm(t *testing.T) {
	d := newTestService(t)
	companyID, farmID := uuid.New(), uuid.New()
	d.repo.On("GetFarm", mock.Anything, companyID, farmID).Return(nil, ErrFarmNotFound)

	_, err := d.ingestion.Ingest(context.Background(), companyID, farmID, IngestRequest{
		Observations: []ObservationPayload{{Date: "2023-03-15", NDVI: ptr(0.5)}},
	})
	assert.True(t, errors.Is(err, ErrFarmNotFound))
}

func TestHandlerIngestMeasurements(t *testing.T) {
	d := newTestService(t)
	farm := testFarm()
	d.repo.On("GetFarm", mock.Anything, farm.CompanyID, farm.ID).Return(farm, nil)
	d.repo.On("UpsertMeasurements", mock.Anything, mock.Anything).Return(1, nil)
	router := newTestRouter(d, farm.CompanyID)
	target := "/api/v1/carbon/" + farm.ID.String() + "/measurements"

	w := doRequest(router, http.MethodPost, target, gin.H{
		"observations": []gin.H{{"date": "2023-03-15", "ndvi": 0.5, "cloud_cover": 10}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result IngestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Stored)

	w = doRequest(router, http.MethodPost, target, gin.H{
		"observations": []gin.H{{"date": "2023-03-15"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
