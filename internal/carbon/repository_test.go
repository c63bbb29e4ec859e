package carbon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// sqlRecorder is a gorm logger that keeps every statement it traces
type sqlRecorder struct {
	mu         sync.Mutex
	statements []string
}

func (r *sqlRecorder) LogMode(gormlogger.LogLevel) gormlogger.Interface { return r }
func (r *sqlRecorder) Info(context.Context, string, ...interface{})     {}
func (r *sqlRecorder) Warn(context.Context, string, ...interface{})     {}
func (r *sqlRecorder) Error(context.Context, string, ...interface{})    {}

func (r *sqlRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = append(r.statements, sql)
}

func (r *sqlRecorder) last(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.statements)
	return r.statements[len(r.statements)-1]
}

// newDryRunRepository builds SQL without a database connection
func newDryRunRepository(t *testing.T) (*GormRepository, *sqlRecorder) {
	t.Helper()
	rec := &sqlRecorder{}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=carbon dbname=carbon sslmode=disable",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               rec,
	})
	require.NoError(t, err)
	return NewRepository(db), rec
}

func TestGetFarmExcludesInactiveFarms(t *testing.T) {
	repo, rec := newDryRunRepository(t)
	companyID, farmID := uuid.New(), uuid.New()

	_, _ = repo.GetFarm(context.Background(), companyID, farmID)
	sql := rec.last(t)

	assert.Contains(t, sql, farmID.String())
	assert.Contains(t, sql, companyID.String())
	assert.Contains(t, sql, "is_active = true")
}

func TestFindFarmIncludesInactiveFarms(t *testing.T) {
	repo, rec := newDryRunRepository(t)
	companyID, farmID := uuid.New(), uuid.New()

	_, _ = repo.FindFarm(context.Background(), companyID, farmID)
	sql := rec.last(t)

	assert.Contains(t, sql, companyID.String())
	assert.NotContains(t, sql, "is_active")
}

func TestListFarmsFilters(t *testing.T) {
	repo, rec := newDryRunRepository(t)
	companyID := uuid.New()

	_, _ = repo.ListFarms(context.Background(), companyID, FarmFilter{ActiveOnly: true, Offset: 20, Limit: 10})
	sql := rec.last(t)
	assert.Contains(t, sql, companyID.String())
	assert.Contains(t, sql, "is_active = true")
	assert.Contains(t, sql, "ORDER BY created_at DESC")
	assert.Contains(t, sql, "LIMIT 10")
	assert.Contains(t, sql, "OFFSET 20")

	_, _ = repo.ListFarms(context.Background(), companyID, FarmFilter{Limit: 10})
	assert.NotContains(t, rec.last(t), "is_active")
}

func TestDeleteFarmDeactivates(t *testing.T) {
	repo, rec := newDryRunRepository(t)
	companyID, farmID := uuid.New(), uuid.New()

	_ = repo.DeleteFarm(context.Background(), companyID, farmID)
	sql := rec.last(t)

	assert.Contains(t, sql, "UPDATE")
	assert.Contains(t, sql, `"is_active"=false`)
	assert.Contains(t, sql, companyID.String())
	assert.NotContains(t, sql, "DELETE")
}
