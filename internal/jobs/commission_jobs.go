package jobs

import (
	"context"
	"time"

	"collecte-backend/internal/logger"
	"collecte-backend/internal/service"
)

// ProcessCommissionJobs drains the commission outbox in batches until a
// batch comes back short.
func (jr *JobRunner) ProcessCommissionJobs() {
	jr.runWithRecovery("ProcessCommissionJobs", func() {
		ctx := context.Background()
		batch := jr.config.Worker.BatchSize

		var total service.ProcessStats
		for {
			stats, err := jr.services.Distribution.ProcessPendingJobs(ctx, batch)
			total.Done += stats.Done
			total.Retried += stats.Retried
			total.Failed += stats.Failed
			if err != nil {
				logger.Error("Failed to process commission jobs", "error", err)
				break
			}
			if stats.Done+stats.Retried+stats.Failed < batch {
				break
			}
		}

		logger.Info("Commission outbox processed",
			"done", total.Done, "retried", total.Retried, "failed", total.Failed)
	})
}

// CommissionWorker distributes commissions in the background. It polls on
// an interval and also wakes as soon as a savings movement commits.
type CommissionWorker struct {
	distribution service.DistributionService
	interval     time.Duration
	batchSize    int
	wake         chan struct{}
}

func NewCommissionWorker(distribution service.DistributionService, interval time.Duration, batchSize int) *CommissionWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &CommissionWorker{
		distribution: distribution,
		interval:     interval,
		batchSize:    batchSize,
		wake:         make(chan struct{}, 1),
	}
}

// Wake schedules an immediate pass without blocking the caller.
func (w *CommissionWorker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run processes the outbox until ctx is cancelled.
func (w *CommissionWorker) Run(ctx context.Context) {
	log := logger.WithJob("commission-worker")
	log.Info("Commission worker started", "interval", w.interval.String(), "batch_size", w.batchSize)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Commission worker stopping")
			return
		case <-ticker.C:
		case <-w.wake:
		}
		w.drain(ctx)
	}
}

func (w *CommissionWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		stats, err := w.distribution.ProcessPendingJobs(ctx, w.batchSize)
		if err != nil {
			logger.Error("Commission worker pass failed", "error", err)
			return
		}
		if stats.Done+stats.Retried+stats.Failed > 0 {
			logger.Debug("Commission worker pass", "done", stats.Done, "retried", stats.Retried, "failed", stats.Failed)
		}
		if stats.Done+stats.Retried+stats.Failed < w.batchSize {
			return
		}
	}
}
