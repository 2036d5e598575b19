package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	grpcapi "collecte-backend/internal/api/grpc"
	httpapi "collecte-backend/internal/api/http"
	"collecte-backend/internal/app"
	"collecte-backend/internal/config"
	"collecte-backend/internal/jobs"
	"collecte-backend/internal/logger"

	"github.com/gorilla/mux"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting collection ledger server...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "http_address", cfg.GetServerAddress(), "grpc_address", cfg.GetGRPCAddress())
	logger.Info("Database configuration", "driver", cfg.Database.Driver, "host", cfg.Database.Host, "database", cfg.Database.Database)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Savings wake the worker, which needs the services built here.
	signalWorker := &lazySignal{}
	container, err := app.New(ctx, cfg, signalWorker)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer container.Close()

	worker := jobs.NewCommissionWorker(
		container.Distribution,
		time.Duration(cfg.Worker.PollIntervalSeconds)*time.Second,
		cfg.Worker.BatchSize,
	)
	signalWorker.set(worker)

	var wg sync.WaitGroup
	container.Dispatcher.Start(ctx, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// gRPC health server
	health := grpcapi.NewHealthServer(container.Store, 10*time.Second)
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)
	lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
	if err != nil {
		logger.Error("Failed to listen", "error", err, "address", cfg.GetGRPCAddress())
		log.Fatalf("Failed to listen: %v", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		health.Run(ctx)
	}()
	go func() {
		logger.Info("gRPC health server listening", "address", cfg.GetGRPCAddress())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	// HTTP API
	router := mux.NewRouter()
	httpapi.RegisterRoutes(router, httpapi.NewHandler(httpapi.Services{
		Accounts:      container.Accounts,
		Movements:     container.Movements,
		Commission:    container.Commission,
		Distribution:  container.Distribution,
		Settlement:    container.Settlement,
		Notifications: container.Notifications,
	}, container.Store))
	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP API listening", "address", cfg.GetServerAddress())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	grpcServer.GracefulStop()
	wg.Wait()
	container.Dispatcher.Wait()
	logger.Info("Server stopped. Goodbye!")
}

// lazySignal forwards wake-ups to the worker once it exists.
type lazySignal struct {
	mu     sync.RWMutex
	worker *jobs.CommissionWorker
}

func (s *lazySignal) set(w *jobs.CommissionWorker) {
	s.mu.Lock()
	s.worker = w
	s.mu.Unlock()
}

func (s *lazySignal) Wake() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.worker != nil {
		s.worker.Wake()
	}
}
