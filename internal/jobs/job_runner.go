package jobs

import (
	"collecte-backend/internal/clock"
	"collecte-backend/internal/config"
	"collecte-backend/internal/logger"
	"collecte-backend/internal/repository"
	"collecte-backend/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	store    repository.Store
	services *Services
	config   *config.Config
	clock    clock.Clock
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Distribution service.DistributionService
	Notifier     service.Notifier
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(store repository.Store, services *Services, cfg *config.Config, clk clock.Clock) *JobRunner {
	if clk == nil {
		clk = clock.System()
	}
	return &JobRunner{
		store:    store,
		services: services,
		config:   cfg,
		clock:    clk,
	}
}

// Config returns the configuration the jobs were built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// RunAllNightlyJobs runs all nightly jobs (for manual execution)
func (jr *JobRunner) RunAllNightlyJobs() {
	jr.ProcessCommissionJobs()
	jr.TakeBalanceSnapshots()
	jr.FlagUnsettledJournals()
	jr.VerifyLedgerIntegrity()
}
