package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	SendGrid     SendGridConfig     `yaml:"sendgrid"`
	Firebase     FirebaseConfig     `yaml:"firebase"`
	Log          LogConfig          `yaml:"log"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	Commission   CommissionConfig   `yaml:"commission"`
	Notification NotificationConfig `yaml:"notification"`
	Worker       WorkerConfig       `yaml:"worker"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
}

// ServerConfig contains HTTP API and gRPC health listener settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// DatabaseConfig selects and configures the persistence backend
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "memory"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	SeedFile string `yaml:"seed_file"` // memory driver only

	// EnsureSchema creates missing tables at startup.
	EnsureSchema bool `yaml:"ensure_schema"`
}

// RedisConfig backs the notification cooldown cache. Empty Addr selects the
// in-process cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SendGridConfig contains email notification settings
type SendGridConfig struct {
	APIKey          string `yaml:"api_key"`
	FromEmail       string `yaml:"from_email"`
	FromName        string `yaml:"from_name"`
	SupervisorEmail string `yaml:"supervisor_email"`
}

// FirebaseConfig contains push notification settings
type FirebaseConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	ProjectID       string `yaml:"project_id"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// LedgerConfig bounds ledger transactions
type LedgerConfig struct {
	TransactionTimeoutSeconds int `yaml:"transaction_timeout_seconds"`
	ConflictRetries           int `yaml:"conflict_retries"`
}

// CommissionConfig contains commission pricing and distribution settings.
// Decimal values are strings to keep them exact.
type CommissionConfig struct {
	VATRate               string `yaml:"vat_rate"`
	JuniorThresholdMonths int    `yaml:"junior_threshold_months"`
	JuniorFixedReward     string `yaml:"junior_fixed_reward"`
	CacheTTLSeconds       int    `yaml:"cache_ttl_seconds"`
}

// NotificationConfig contains supervisor alert settings
type NotificationConfig struct {
	CooldownMinutes int `yaml:"cooldown_minutes"`
}

// WorkerConfig controls the commission distribution worker
type WorkerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	BatchSize           int `yaml:"batch_size"`
	MaxAttempts         int `yaml:"max_attempts"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ProcessCommissionJobs string `yaml:"process_commission_jobs"`
	TakeBalanceSnapshots  string `yaml:"take_balance_snapshots"`
	FlagUnsettledJournals string `yaml:"flag_unsettled_journals"`
	VerifyLedgerIntegrity string `yaml:"verify_ledger_integrity"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies environment overrides and validates it
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// SendGrid
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.SendGrid.APIKey = val
	}

	// Firebase
	if val := os.Getenv("FIREBASE_CREDENTIALS_FILE"); val != "" {
		c.Firebase.CredentialsFile = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Commission
	if val := os.Getenv("COMMISSION_VAT_RATE"); val != "" {
		c.Commission.VATRate = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = c.Server.Port + 1
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}

	// Database validation
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	// Ledger defaults
	if c.Ledger.TransactionTimeoutSeconds == 0 {
		c.Ledger.TransactionTimeoutSeconds = 30
	}
	if c.Ledger.ConflictRetries == 0 {
		c.Ledger.ConflictRetries = 3
	}

	// Commission defaults
	if c.Commission.VATRate == "" {
		c.Commission.VATRate = "0.1925"
	}
	vat, err := decimal.NewFromString(c.Commission.VATRate)
	if err != nil {
		return fmt.Errorf("invalid commission VAT rate %q: %w", c.Commission.VATRate, err)
	}
	if vat.IsNegative() || vat.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission VAT rate must be in [0, 1): %s", c.Commission.VATRate)
	}
	if c.Commission.JuniorThresholdMonths == 0 {
		c.Commission.JuniorThresholdMonths = 3
	}
	if c.Commission.JuniorFixedReward == "" {
		c.Commission.JuniorFixedReward = "500"
	}
	reward, err := decimal.NewFromString(c.Commission.JuniorFixedReward)
	if err != nil {
		return fmt.Errorf("invalid junior fixed reward %q: %w", c.Commission.JuniorFixedReward, err)
	}
	if reward.IsNegative() {
		return fmt.Errorf("junior fixed reward must not be negative: %s", c.Commission.JuniorFixedReward)
	}
	if c.Commission.CacheTTLSeconds == 0 {
		c.Commission.CacheTTLSeconds = 300
	}

	// Notification defaults
	if c.Notification.CooldownMinutes == 0 {
		c.Notification.CooldownMinutes = 30
	}

	// Worker defaults
	if c.Worker.PollIntervalSeconds == 0 {
		c.Worker.PollIntervalSeconds = 5
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 50
	}
	if c.Worker.MaxAttempts == 0 {
		c.Worker.MaxAttempts = 5
	}

	// Scheduler defaults
	if c.Scheduler.ProcessCommissionJobs == "" {
		c.Scheduler.ProcessCommissionJobs = "0 */5 * * * *" // Every 5 minutes
	}
	if c.Scheduler.TakeBalanceSnapshots == "" {
		c.Scheduler.TakeBalanceSnapshots = "0 30 23 * * *" // Daily at 11:30 PM UTC
	}
	if c.Scheduler.FlagUnsettledJournals == "" {
		c.Scheduler.FlagUnsettledJournals = "0 0 6 * * *" // Daily at 6 AM UTC
	}
	if c.Scheduler.VerifyLedgerIntegrity == "" {
		c.Scheduler.VerifyLedgerIntegrity = "0 0 2 * * *" // Daily at 2 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP API address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

// TransactionTimeout is the bound of one ledger unit of work
func (c *Config) TransactionTimeout() time.Duration {
	return time.Duration(c.Ledger.TransactionTimeoutSeconds) * time.Second
}

// VATRateDecimal returns the parsed VAT rate. Validate guarantees it parses.
func (c *CommissionConfig) VATRateDecimal() decimal.Decimal {
	return decimal.RequireFromString(c.VATRate)
}

// JuniorRewardDecimal returns the parsed fixed reward for junior collectors.
func (c *CommissionConfig) JuniorRewardDecimal() decimal.Decimal {
	return decimal.RequireFromString(c.JuniorFixedReward)
}

// Cooldown is the minimum delay between two identical supervisor alerts
func (c *NotificationConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}
