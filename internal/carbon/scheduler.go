package carbon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SchedulerConfig configures scheduled recalculation
type SchedulerConfig struct {
	CronExpression string
	MaxConcurrent  int
	LookbackDays   int
}

// DefaultSchedulerConfig returns a nightly trailing-year recalculation
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		CronExpression: "0 2 * * *",
		MaxConcurrent:  4,
		LookbackDays:   365,
	}
}

// RunSummary reports the outcome of one recalculation pass
type RunSummary struct {
	Farms     int
	Succeeded int
	Skipped   int
	Failed    int
	Duration  time.Duration
}

// Scheduler recalculates estimates for every active farm on a cron schedule
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	repo    Repository
	config  SchedulerConfig
	logger  *zap.Logger
	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler validates the cron expression and creates a scheduler
func NewScheduler(service *Service, repo Repository, config SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	if config.LookbackDays <= 0 {
		config.LookbackDays = 365
	}

	s := &Scheduler{
		cron:    cron.New(),
		service: service,
		repo:    repo,
		config:  config,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(config.CronExpression, s.runScheduled); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", config.CronExpression, err)
	}
	return s, nil
}

// Start starts the cron loop. Runs in progress are cancelled when ctx is.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("Starting carbon recalculation scheduler",
		zap.String("cron", s.config.CronExpression),
		zap.Int("max_concurrent", s.config.MaxConcurrent))

	s.cron.Start()
	return nil
}

// Stop cancels in-flight runs and waits for the cron loop to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.logger.Info("Stopping carbon recalculation scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.running = false
}

// NextRun returns when the recalculation fires next
func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) runScheduled() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Scheduled recalculation failed", zap.Error(err))
	}
}

// RunOnce recomputes the trailing-window estimate for every active farm.
// Farm failures are logged and counted; only listing farms can fail the run.
func (s *Scheduler) RunOnce(ctx context.Context) (RunSummary, error) {
	started := time.Now()

	farms, err := s.repo.ListActiveFarms(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to list farms for recalculation: %w", err)
	}

	end := started.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -s.config.LookbackDays)

	summary := RunSummary{Farms: len(farms)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.config.MaxConcurrent)

	for _, farm := range farms {
		select {
		case <-ctx.Done():
			wg.Wait()
			summary.Duration = time.Since(started)
			return summary, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(farm Farm) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := s.service.Calculate(ctx, CalculateInput{
				CompanyID: farm.CompanyID,
				FarmID:    farm.ID,
				Start:     start,
				End:       end,
				Trigger:   TriggerScheduler,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Succeeded++
			case errors.Is(err, ErrNoIndexData):
				summary.Skipped++
			default:
				summary.Failed++
				s.logger.Error("Failed to recalculate farm",
					zap.String("farm_id", farm.ID.String()),
					zap.String("company_id", farm.CompanyID.String()),
					zap.Error(err))
			}
		}(farm)
	}
	wg.Wait()

	summary.Duration = time.Since(started)
	s.logger.Info("Carbon recalculation completed",
		zap.Int("farms", summary.Farms),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}
