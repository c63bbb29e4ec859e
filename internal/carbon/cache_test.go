package carbon

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportCache(t *testing.T) {
	cache := NewReportCache(time.Minute)
	defer cache.Stop()

	farmA, farmB := uuid.New(), uuid.New()
	resp := &CalculationResponse{FarmID: farmA}

	_, ok := cache.Get(farmA, testStart, testEnd)
	assert.False(t, ok)

	cache.Set(farmA, testStart, testEnd, resp)
	cache.Set(farmA, testStart, testStart.AddDate(0, 6, 0), &CalculationResponse{FarmID: farmA})
	cache.Set(farmB, testStart, testEnd, &CalculationResponse{FarmID: farmB})

	got, ok := cache.Get(farmA, testStart, testEnd)
	require.True(t, ok)
	assert.Same(t, resp, got)

	_, ok = cache.Get(farmA, testStart, testEnd.AddDate(0, 0, -1))
	assert.False(t, ok)

	cache.InvalidateFarm(farmA)
	_, ok = cache.Get(farmA, testStart, testEnd)
	assert.False(t, ok)
	_, ok = cache.Get(farmB, testStart, testEnd)
	assert.True(t, ok)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.InDelta(t, 0.4, stats.HitRate, 1e-9)
}

func TestReportCacheExpiry(t *testing.T) {
	cache := NewReportCache(10 * time.Millisecond)
	defer cache.Stop()

	farmID := uuid.New()
	cache.Set(farmID, testStart, testEnd, &CalculationResponse{FarmID: farmID})
	time.Sleep(20 * time.Millisecond)

	_, ok := cache.Get(farmID, testStart, testEnd)
	assert.False(t, ok)

	cache.removeExpired()
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestReportCacheStopIsIdempotent(t *testing.T) {
	cache := NewReportCache(time.Minute)
	cache.Stop()
	assert.NotPanics(t, cache.Stop)
}
