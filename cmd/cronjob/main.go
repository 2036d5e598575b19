package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"collecte-backend/internal/app"
	"collecte-backend/internal/config"
	"collecte-backend/internal/jobs"
	"collecte-backend/internal/logger"
	"collecte-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'process-commission-jobs', 'all-nightly')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting collection ledger cronjob runner...", "log_level", cfg.Log.Level)

	ctx := context.Background()
	container, err := app.New(ctx, cfg, nil)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer container.Close()

	jobServices := &jobs.Services{
		Distribution: container.Distribution,
		Notifier:     container.Dispatcher,
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(container.Store, jobServices, cfg, container.Clock)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if !runJobOnce(jobRunner, *runOnce) {
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Alerts are delivered asynchronously while the scheduler runs.
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	container.Dispatcher.Start(dispatchCtx, 1)

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	cancelDispatch()
	container.Dispatcher.Wait()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and reports whether the name was known
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) bool {
	switch jobName {
	case "process-commission-jobs":
		jobRunner.ProcessCommissionJobs()
	case "take-balance-snapshots":
		jobRunner.TakeBalanceSnapshots()
	case "flag-unsettled-journals":
		jobRunner.FlagUnsettledJournals()
	case "verify-ledger-integrity":
		jobRunner.VerifyLedgerIntegrity()
	case "all-nightly":
		jobRunner.RunAllNightlyJobs()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - process-commission-jobs\n")
		fmt.Printf("  - take-balance-snapshots\n")
		fmt.Printf("  - flag-unsettled-journals\n")
		fmt.Printf("  - verify-ledger-integrity\n")
		fmt.Printf("  - all-nightly\n")
		return false
	}
	return true
}
