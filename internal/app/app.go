// Package app assembles the store, notifier and services shared by the
// server and the cronjob runner.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"collecte-backend/internal/clock"
	"collecte-backend/internal/config"
	"collecte-backend/internal/logger"
	"collecte-backend/internal/notify"
	"collecte-backend/internal/repository"
	"collecte-backend/internal/repository/memory"
	"collecte-backend/internal/repository/postgres"
	"collecte-backend/internal/service"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
)

// Container holds everything a binary needs once configuration is loaded.
type Container struct {
	Config     *config.Config
	Clock      clock.Clock
	Store      repository.Store
	Dispatcher *notify.Dispatcher
	Redis      *redis.Client

	Accounts      service.AccountService
	Movements     service.MovementService
	Commission    service.CommissionService
	Distribution  service.DistributionService
	Settlement    service.SettlementService
	Notifications service.NotificationService
}

// New opens the configured store and wires the services. signal is woken
// after each commission-eligible movement commits; it may be nil.
func New(ctx context.Context, cfg *config.Config, signal service.JobSignal) (*Container, error) {
	c := &Container{Config: cfg, Clock: clock.System()}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Store = store

	cooldown := c.cooldownCache(ctx)
	sinks := []notify.Sink{notify.NewInAppSink(store.Repos().Notifications)}
	if cfg.SendGrid.APIKey != "" {
		sinks = append(sinks, notify.NewEmailSink(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName, cfg.SendGrid.SupervisorEmail))
		logger.Info("Email notifications enabled", "from", cfg.SendGrid.FromEmail)
	}
	if cfg.Firebase.CredentialsFile != "" {
		push, err := notify.NewPushSink(ctx, cfg.Firebase.CredentialsFile, cfg.Firebase.ProjectID, store.Repos().Directory)
		if err != nil {
			logger.Error("Push notifications disabled", "error", err)
		} else {
			sinks = append(sinks, push)
			logger.Info("Push notifications enabled", "project_id", cfg.Firebase.ProjectID)
		}
	}
	c.Dispatcher = notify.NewDispatcher(cooldown, cfg.Notification.Cooldown(), 0, sinks...)

	ledgerOpts := service.LedgerOptions{
		TxTimeout:       cfg.TransactionTimeout(),
		ConflictRetries: cfg.Ledger.ConflictRetries,
	}
	c.Accounts = service.NewAccountService(store, ledgerOpts)
	c.Movements = service.NewMovementService(store, c.Clock, ledgerOpts, c.Dispatcher, signal)
	c.Commission = service.NewCommissionService(store, c.Clock, ledgerOpts, service.CommissionOptions{
		VATRate:  cfg.Commission.VATRateDecimal(),
		CacheTTL: time.Duration(cfg.Commission.CacheTTLSeconds) * time.Second,
	})
	c.Distribution = service.NewDistributionService(store, c.Clock, ledgerOpts, c.Commission, service.DistributionOptions{
		JuniorThresholdMonths: cfg.Commission.JuniorThresholdMonths,
		JuniorFixedReward:     cfg.Commission.JuniorRewardDecimal(),
		MaxAttempts:           cfg.Worker.MaxAttempts,
	})
	c.Settlement = service.NewSettlementService(store, c.Clock, ledgerOpts, c.Dispatcher)
	c.Notifications = service.NewNotificationService(store.Repos().Notifications)
	return c, nil
}

// OpenStore connects the configured persistence backend.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		store := memory.NewStore()
		if cfg.Database.SeedFile != "" {
			if err := store.LoadSeedFile(cfg.Database.SeedFile); err != nil {
				return nil, err
			}
			logger.Info("Memory store seeded", "seed_file", cfg.Database.SeedFile)
		}
		logger.Warn("Using the in-memory store, data is lost on exit")
		return store, nil
	case "postgres":
		logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
		db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		logger.Info("Database connection established", "host", cfg.Database.Host, "database", cfg.Database.Database)
		store := postgres.NewStore(db)
		if cfg.Database.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to create schema: %w", err)
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

// cooldownCache prefers Redis so that several instances share the window,
// and falls back to the process-local cache when Redis is absent or down.
func (c *Container) cooldownCache(ctx context.Context) notify.CooldownCache {
	if c.Config.Redis.Addr == "" {
		return notify.NewMemoryCooldown(c.Clock)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable, using in-process notification cooldown", "addr", c.Config.Redis.Addr, "error", err)
		client.Close()
		return notify.NewMemoryCooldown(c.Clock)
	}
	c.Redis = client
	logger.Info("Redis notification cooldown enabled", "addr", c.Config.Redis.Addr)
	return notify.NewRedisCooldown(client)
}

// Close releases the store and the Redis client.
func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Warn("Failed to close Redis client", "error", err)
		}
	}
	if err := c.Store.Close(); err != nil {
		logger.Warn("Failed to close store", "error", err)
	}
}
