package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Auth       AuthConfig
	Metering   MeteringConfig
	Background BackgroundConfig
	Redis      RedisConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	TrustedProxies []string
}

type AuthConfig struct {
	AdminKey             string
	Argon2Memory         uint32
	Argon2Iterations     uint32
	Argon2Parallelism    uint8
	IPRateLimitPerMinute int
}

// MeteringConfig holds admission defaults and store-failure policy
type MeteringConfig struct {
	DefaultRateLimitPerMinute int
	DefaultDailyQuota         int
	DefaultMonthlyQuota       int
	CheckTimeout              time.Duration
	RateWindowBackend         string
	RetryAfter                time.Duration
	BreakerFailures           uint32
	BreakerOpenTimeout        time.Duration
}

type BackgroundConfig struct {
	Workers                   int
	QueueSize                 int
	JobTimeout                time.Duration
	RateWindowCleanupInterval time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

const (
	RateWindowBackendPostgres = "postgres"
	RateWindowBackendRedis    = "redis"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	adminKey := getEnv("ADMIN_KEY", "")
	if adminKey == "" {
		return nil, fmt.Errorf("ADMIN_KEY is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "metered_finance"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
		},
		Auth: AuthConfig{
			AdminKey:             adminKey,
			Argon2Memory:         uint32(getEnvAsInt("ARGON2_MEMORY_KIB", 64*1024)),
			Argon2Iterations:     uint32(getEnvAsInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism:    uint8(getEnvAsInt("ARGON2_PARALLELISM", 2)),
			IPRateLimitPerMinute: getEnvAsInt("AUTH_IP_RATE_LIMIT_PER_MINUTE", 300),
		},
		Metering: MeteringConfig{
			DefaultRateLimitPerMinute: getEnvAsInt("DEFAULT_RATE_LIMIT_PER_MINUTE", 60),
			DefaultDailyQuota:         getEnvAsInt("DEFAULT_DAILY_QUOTA", 10_000),
			DefaultMonthlyQuota:       getEnvAsInt("DEFAULT_MONTHLY_QUOTA", 300_000),
			CheckTimeout:              getEnvAsDuration("METERING_CHECK_TIMEOUT", 5*time.Second),
			RateWindowBackend:         strings.ToLower(getEnv("RATE_WINDOW_BACKEND", RateWindowBackendPostgres)),
			RetryAfter:                getEnvAsDuration("RATE_LIMIT_RETRY_AFTER", 60*time.Second),
			BreakerFailures:           uint32(getEnvAsInt("METERING_BREAKER_FAILURES", 5)),
			BreakerOpenTimeout:        getEnvAsDuration("METERING_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Background: BackgroundConfig{
			Workers:                   getEnvAsInt("BACKGROUND_WORKERS", 4),
			QueueSize:                 getEnvAsInt("BACKGROUND_QUEUE_SIZE", 1024),
			JobTimeout:                getEnvAsDuration("BACKGROUND_JOB_TIMEOUT", 5*time.Second),
			RateWindowCleanupInterval: getEnvAsDuration("RATE_WINDOW_CLEANUP_INTERVAL", 10*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "meter:"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateAdminKey(adminKey, env); err != nil {
		return nil, err
	}

	if err := cfg.Metering.validate(); err != nil {
		return nil, err
	}

	if cfg.Background.Workers < 1 || cfg.Background.QueueSize < 1 {
		return nil, fmt.Errorf("BACKGROUND_WORKERS and BACKGROUND_QUEUE_SIZE must be positive")
	}

	return cfg, nil
}

// validateAdminKey enforces minimum security standards for the shared admin credential
func validateAdminKey(key, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(key) < minLength {
		return fmt.Errorf("ADMIN_KEY must be at least %d characters in %s environment (got %d)",
			minLength, env, len(key))
	}

	weakKeys := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	keyLower := strings.ToLower(key)
	for _, weak := range weakKeys {
		if keyLower == weak || strings.Repeat(weak, len(keyLower)/len(weak)) == keyLower {
			return fmt.Errorf("ADMIN_KEY cannot be a common weak value")
		}
	}

	return nil
}

func (m *MeteringConfig) validate() error {
	if m.DefaultRateLimitPerMinute < 1 || m.DefaultDailyQuota < 1 || m.DefaultMonthlyQuota < 1 {
		return fmt.Errorf("default metering limits must be positive")
	}
	if m.CheckTimeout <= 0 {
		return fmt.Errorf("METERING_CHECK_TIMEOUT must be positive")
	}
	if m.BreakerFailures < 1 {
		return fmt.Errorf("METERING_BREAKER_FAILURES must be at least 1")
	}
	switch m.RateWindowBackend {
	case RateWindowBackendPostgres, RateWindowBackendRedis:
	default:
		return fmt.Errorf("RATE_WINDOW_BACKEND must be %q or %q (got %q)",
			RateWindowBackendPostgres, RateWindowBackendRedis, m.RateWindowBackend)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// IsProduction reports whether the server runs with production settings
func (c *ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// parseList splits a comma-separated value, dropping blanks
func parseList(raw string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
