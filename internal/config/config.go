package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath        = "CONFIG_PATH"
	EnvDBConnection      = "DB_CONNECTION"
	EnvJWTSecret         = "JWT_SECRET"
	EnvJWTExpiry         = "JWT_EXPIRY"
	EnvDepositPercentage = "DEPOSIT_PERCENTAGE"
	EnvRedisAddr         = "REDIS_ADDR"
	EnvRedisPassword     = "REDIS_PASSWORD"
	EnvKafkaBrokers      = "KAFKA_BROKERS"
	EnvOTLPEndpoint      = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

const (
	defaultListenAddr          = ":5000"
	defaultJWTExpiry           = 7 * 24 * time.Hour
	defaultRefreshExpiry       = 30 * 24 * time.Hour
	defaultDepositPercentage   = 10
	defaultPageSize            = 20
	defaultMaxPageSize         = 100
	defaultExpirationInterval  = 5 * time.Minute
	defaultRefundInterval      = 24 * time.Hour
	defaultReminderInterval    = 24 * time.Hour
	defaultReminderWindow      = 24 * time.Hour
	defaultMaxRefundAttempts   = 5
	defaultNotifyTimeout       = 5 * time.Second
	defaultRedisPrefix         = "gbb"
	defaultKafkaTopic          = "groupbuy.notifications"
	defaultTracingServiceName  = "groupbuy-business"
	defaultRateLimitRequests   = 100
	defaultRateLimitWindow     = 15 * time.Minute
	defaultShutdownGracePeriod = 10 * time.Second
)

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Config is the full service configuration.
type Config struct {
	LogLevel    string            `yaml:"log-level"`
	DatabaseDSN string            `yaml:"database-dsn"`
	Database    DatabaseConfig    `yaml:"database"`
	Server      ServerConfig      `yaml:"server"`
	JWT         JWTConfig         `yaml:"jwt"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Tracing     TracingConfig     `yaml:"tracing"`
	RateLimit   RateLimitConfig   `yaml:"rate-limit"`
	Payment     PaymentConfig     `yaml:"payment"`
	Admin       AdminConfig       `yaml:"admin"`
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	ShutdownGrace time.Duration `yaml:"shutdown-grace"`
}

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret        string        `yaml:"secret"`
	Expiry        time.Duration `yaml:"expiry"`
	RefreshExpiry time.Duration `yaml:"refresh-expiry"`
}

// MarketplaceConfig holds business rules shared by the lifecycle service.
type MarketplaceConfig struct {
	DepositPercentage float64       `yaml:"deposit-percentage"`
	DefaultPageSize   int           `yaml:"default-page-size"`
	MaxPageSize       int           `yaml:"max-page-size"`
	MinGroupCapacity  int           `yaml:"min-group-capacity"`
	NotifyTimeout     time.Duration `yaml:"notify-timeout"`
}

// DepositPercent returns the deposit percentage as a decimal.
func (m MarketplaceConfig) DepositPercent() decimal.Decimal {
	return decimal.NewFromFloat(m.DepositPercentage)
}

// JobsConfig holds the sweep schedules.
type JobsConfig struct {
	Disabled           bool          `yaml:"disabled"`
	ExpirationInterval time.Duration `yaml:"expiration-interval"`
	RefundInterval     time.Duration `yaml:"refund-interval"`
	ReminderInterval   time.Duration `yaml:"reminder-interval"`
	ReminderWindow     time.Duration `yaml:"reminder-window"`
	MaxRefundAttempts  int           `yaml:"max-refund-attempts"`
}

// RedisConfig enables Redis-backed group locks and rate limits.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// KafkaConfig enables publishing notifications to Kafka.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service-name"`
	SampleRatio float64 `yaml:"sample-ratio"`
}

// RateLimitConfig bounds requests per client on the auth endpoints.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// PaymentConfig configures the payment provider stub.
type PaymentConfig struct {
	DeclineMethods []string `yaml:"decline-methods"`
}

// AdminConfig bootstraps the first administrator account.
type AdminConfig struct {
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Password string `yaml:"password"`
}

// DSN returns the configured database DSN.
func (c Config) DSN() string {
	if dsn := strings.TrimSpace(c.DatabaseDSN); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(c.Database.DSN)
}

// Load reads the YAML config file, applies env overrides and fills defaults.
// A missing file is tolerated when DB_CONNECTION is set.
func Load(configPath string) (Config, error) {
	var cfg Config
	data, errRead := os.ReadFile(configPath)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist) && strings.TrimSpace(os.Getenv(EnvDBConnection)) != "":
	default:
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if cfg.DSN() == "" {
		return Config{}, ErrMissingDatabaseDSN
	}
	if cfg.Marketplace.DepositPercentage < 0 || cfg.Marketplace.DepositPercentage > 100 {
		return Config{}, fmt.Errorf("invalid deposit percentage: %v", cfg.Marketplace.DepositPercentage)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			cfg.JWT.Expiry = expiry
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvDepositPercentage)); raw != "" {
		if pct, errParse := strconv.ParseFloat(raw, 64); errParse == nil {
			cfg.Marketplace.DepositPercentage = pct
		}
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if password := os.Getenv(EnvRedisPassword); password != "" {
		cfg.Redis.Password = password
	}
	if raw := strings.TrimSpace(os.Getenv(EnvKafkaBrokers)); raw != "" {
		cfg.Kafka.Brokers = splitList(raw)
	}
	if endpoint := strings.TrimSpace(os.Getenv(EnvOTLPEndpoint)); endpoint != "" {
		cfg.Tracing.Endpoint = endpoint
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = defaultListenAddr
	}
	if cfg.Server.ShutdownGrace <= 0 {
		cfg.Server.ShutdownGrace = defaultShutdownGracePeriod
	}
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = defaultJWTExpiry
	}
	if cfg.JWT.RefreshExpiry <= 0 {
		cfg.JWT.RefreshExpiry = defaultRefreshExpiry
	}
	if cfg.Marketplace.DepositPercentage == 0 {
		cfg.Marketplace.DepositPercentage = defaultDepositPercentage
	}
	if cfg.Marketplace.DefaultPageSize <= 0 {
		cfg.Marketplace.DefaultPageSize = defaultPageSize
	}
	if cfg.Marketplace.MaxPageSize <= 0 {
		cfg.Marketplace.MaxPageSize = defaultMaxPageSize
	}
	if cfg.Marketplace.NotifyTimeout <= 0 {
		cfg.Marketplace.NotifyTimeout = defaultNotifyTimeout
	}
	if cfg.Jobs.ExpirationInterval <= 0 {
		cfg.Jobs.ExpirationInterval = defaultExpirationInterval
	}
	if cfg.Jobs.RefundInterval <= 0 {
		cfg.Jobs.RefundInterval = defaultRefundInterval
	}
	if cfg.Jobs.ReminderInterval <= 0 {
		cfg.Jobs.ReminderInterval = defaultReminderInterval
	}
	if cfg.Jobs.ReminderWindow <= 0 {
		cfg.Jobs.ReminderWindow = defaultReminderWindow
	}
	if cfg.Jobs.MaxRefundAttempts <= 0 {
		cfg.Jobs.MaxRefundAttempts = defaultMaxRefundAttempts
	}
	if strings.TrimSpace(cfg.Redis.Prefix) == "" {
		cfg.Redis.Prefix = defaultRedisPrefix
	}
	if cfg.Redis.DB < 0 {
		cfg.Redis.DB = 0
	}
	if strings.TrimSpace(cfg.Kafka.Topic) == "" {
		cfg.Kafka.Topic = defaultKafkaTopic
	}
	if strings.TrimSpace(cfg.Tracing.ServiceName) == "" {
		cfg.Tracing.ServiceName = defaultTracingServiceName
	}
	if cfg.Tracing.SampleRatio <= 0 || cfg.Tracing.SampleRatio > 1 {
		cfg.Tracing.SampleRatio = 1
	}
	if cfg.RateLimit.Requests <= 0 {
		cfg.RateLimit.Requests = defaultRateLimitRequests
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = defaultRateLimitWindow
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
