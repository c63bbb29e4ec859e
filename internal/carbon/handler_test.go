package carbon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/sequestration-backend/internal/auth"
)

func newTestRouter(d *testDeps, companyID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	api := router.Group("/api/v1", func(c *gin.Context) {
		if companyID != uuid.Nil {
			c.Set(auth.ContextCompanyID, companyID)
		}
		c.Next()
	})
	NewHandler(d.service, d.ingestion, zap.NewNop()).RegisterRoutes(api)
	NewFarmHandler(d.farms, zap.NewNop()).RegisterRoutes(api)
	return router
}

func doRequest(router *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlerCalculate(t *testing.T) {
	d := newTestService(t)
	farm := testFarm()
	d.expectCalculation(farm, ndviSeries(farm.ID, 0.45, 0.58), nil)
	router := newTestRouter(d, farm.CompanyID)

	w := doRequest(router, http.MethodPost, "/api/v1/carbon/calculate", gin.H{
		"farm_id":    farm.ID,
		"start_date": "2023-01-01",
		"end_date":   "2023-12-31",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp CalculationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, farm.ID, resp.FarmID)
	assert.Len(t, resp.Report.Points, 2)
	assert.Equal(t, 2, resp.StoredPoints)
}

func TestHandlerCalculateErrors(t *testing.T) {
	d := newTestService(t)
	farm := testFarm()
	d.repo.On("GetFarm", mock.Anything, farm.CompanyID, farm.ID).Return(farm, nil)
	d.repo.On("ListMeasurements", mock.Anything, farm.ID, MeasurementNDVI, mock.Anything, mock.Anything).
		Return(ndviSeries(farm.ID, 0.4, 1.2, -1.5), nil)
	d.repo.On("LatestMeasurement", mock.Anything, farm.ID, MeasurementLULC, mock.Anything).Return(nil, nil)
	missing := uuid.New()
	d.repo.On("GetFarm", mock.Anything, farm.CompanyID, missing).Return(nil, ErrFarmNotFound)
	router := newTestRouter(d, farm.CompanyID)

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{"missing fields", gin.H{"farm_id": farm.ID}, http.StatusBadRequest},
		{"bad date", gin.H{"farm_id": farm.ID, "start_date": "01/01/2023", "end_date": "2023-12-31"}, http.StatusBadRequest},
		{"inverted range", gin.H{"farm_id": farm.ID, "start_date": "2023-12-31", "end_date": "2023-01-01"}, http.StatusBadRequest},
		{"unknown farm", gin.H{"farm_id": missing, "start_date": "2023-01-01", "end_date": "2023-12-31"}, http.StatusNotFound},
		{"index out of range", gin.H{"farm_id": farm.ID, "start_date": "2023-01-01", "end_date": "2023-12-31"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPost, "/api/v1/carbon/calculate", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}

	t.Run("details list every offending index", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/carbon/calculate", gin.H{
			"farm_id": farm.ID, "start_date": "2023-01-01", "end_date": "2023-12-31",
		})
		var body struct {
			Error   string   `json:"error"`
			Field   string   `json:"field"`
			Details []string `json:"details"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "index out of range", body.Error)
		assert.Len(t, body.Details, 2)
	})
}

func TestHandlerRequiresCompany(t *testing.T) {
	d := newTestService(t)
	router := newTestRouter(d, uuid.Nil)

	w := doRequest(router, http.MethodGet, "/api/v1/carbon/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlerInvalidFarmID(t *testing.T) {
	d := newTestService(t)
	router := newTestRouter(d, uuid.New())

	w := doRequest(router, http.MethodGet, "/api/v1/carbon/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerCatalog(t *testing.T) {
	d := newTestService(t)
	router := newTestRouter(d, uuid.New())

	w := doRequest(router, http.MethodGet, "/api/v1/carbon/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp CatalogResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Classes, len(d.service.Catalog().Classes))
}

func TestHandlerHistory(t *testing.T) {
	d := newTestService(t)
	farm := testFarm()
	d.repo.On("GetFarm", mock.Anything, farm.CompanyID, farm.ID).Return(farm, nil)
	d.repo.On("ListMeasurements", mock.Anything, farm.ID, MeasurementCarbon, testStart, testEnd).Return([]Measurement{
		{ID: uuid.New(), FarmID: farm.ID, MeasurementType: MeasurementCarbon, MeasurementDate: testStart.AddDate(0, 0, 14), Value: 950},
	}, nil)
	router := newTestRouter(d, farm.CompanyID)

	w := doRequest(router, http.MethodGet, "/api/v1/carbon/"+farm.ID.String()+"?start_date=2023-01-01&end_date=2023-12-31", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Points, 1)
	assert.Equal(t, "2023-01-15", resp.Points[0].Date)
	assert.Equal(t, 950.0, resp.Points[0].CO2TotalTonnes)
}

func TestHandlerLatest(t *testing.T) {
	d := newTestService(t)
	farm := testFarm()
	d.expectCalculation(farm, ndviSeries(farm.ID, 0.5), nil)
	router := newTestRouter(d, farm.CompanyID)

	target := "/api/v1/carbon/" + farm.ID.String() + "/latest?start_date=2023-01-01&end_date=2023-12-31"
	require.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, target, nil).Code)
	require.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, target, nil).Code)
	d.repo.AssertNumberOfCalls(t, "UpsertMeasurements", 1)
}

func TestHandlerExport(t *testing.T) {
	d := newTestService(t)
	farm := testFarm()
	d.expectCalculation(farm, ndviSeries(farm.ID, 0.45, 0.58), nil)
	router := newTestRouter(d, farm.CompanyID)

	w := doRequest(router, http.MethodGet,
		"/api/v1/carbon/"+farm.ID.String()+"/export?format=csv&start_date=2023-01-01&end_date=2023-12-31", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "carbon_report_north_ridge_farm_2023-01-01_2023-12-31.csv")
	assert.True(t, strings.HasPrefix(w.Header().Get("X-Report-URL"), "memory://reports/reports/carbon/"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "date,ndvi,"))
	assert.NotEmpty(t, w.Header().Get("X-Report-ID"))
}

func TestHandlerStoredExport(t *testing.T) {
	d := newTestService(t)
	farm := testFarm()
	d.expectCalculation(farm, ndviSeries(farm.ID, 0.45, 0.58), nil)
	d.repo.On("FindFarm", mock.Anything, farm.CompanyID, farm.ID).Return(farm, nil)
	router := newTestRouter(d, farm.CompanyID)
	base := "/api/v1/carbon/" + farm.ID.String()

	w := doRequest(router, http.MethodGet, base+"/export?format=csv&start_date=2023-01-01&end_date=2023-12-31", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rendered := w.Body.String()
	target := base + "/exports/" + w.Header().Get("X-Report-ID")

	w = doRequest(router, http.MethodGet, target, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, rendered, w.Body.String())

	w = doRequest(router, http.MethodDelete, target, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(router, http.MethodGet, target, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodGet, base+"/exports/not-a-ref", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerStoredExportWithoutStorage(t *testing.T) {
	d := newTestService(t)
	d.service.store = nil
	router := newTestRouter(d, uuid.New())

	w := doRequest(router, http.MethodGet, "/api/v1/carbon/"+uuid.NewString()+"/exports/"+uuid.NewString()+".csv", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHandlerExportRejectsUnknownFormat(t *testing.T) {
	d := newTestService(t)
	router := newTestRouter(d, uuid.New())

	w := doRequest(router, http.MethodGet, "/api/v1/carbon/"+uuid.NewString()+"/export?format=docx", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
