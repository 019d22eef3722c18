package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Weather  WeatherConfig
	ImageGen ImageGenConfig
	Schedule ScheduleConfig
	Auth     AuthConfig
	Pipeline PipelineConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string

	// Service-wide request ceiling per minute, on top of the per-IP
	// limits. 0 disables it.
	GlobalRateLimit int
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings (rate-limit counters)
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage (MinIO / S3-compatible) settings
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// WeatherConfig holds Open-Meteo API settings
type WeatherConfig struct {
	GeocodeBaseURL  string
	ForecastBaseURL string
	Timezone        string
	Timeout         time.Duration
}

// ImageGenConfig holds Gemini image generation settings
type ImageGenConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ScheduleConfig holds the daily generation schedule
type ScheduleConfig struct {
	Enabled  bool
	CronSpec string
}

// AuthConfig holds shared secrets for the trigger/logs endpoints and
// signed image tokens
type AuthConfig struct {
	AccessCode  string
	ImageSecret string
}

// PipelineConfig holds step retry and watchdog settings
type PipelineConfig struct {
	ImageRetryLimit  int
	ImageRetryDelay  time.Duration
	StaleRunTimeout  time.Duration
	WatchdogInterval time.Duration
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),

			GlobalRateLimit: getEnvInt("GLOBAL_RATE_LIMIT", 1000),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "weathercard"),
			User:        getEnv("POSTGRES_USER", "weathercard"),
			Password:    getEnv("POSTGRES_PASSWORD", "weathercard"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Endpoint:  getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey: getEnv("STORAGE_SECRET_KEY", ""),
			Bucket:    getEnv("STORAGE_BUCKET", "weather-cards"),
			UseSSL:    getEnvBool("STORAGE_USE_SSL", false),
		},
		Weather: WeatherConfig{
			GeocodeBaseURL:  getEnv("WEATHER_GEOCODE_URL", "https://geocoding-api.open-meteo.com/v1/search"),
			ForecastBaseURL: getEnv("WEATHER_FORECAST_URL", "https://api.open-meteo.com/v1/forecast"),
			Timezone:        getEnv("WEATHER_TIMEZONE", "Asia/Shanghai"),
			Timeout:         getEnvDuration("WEATHER_TIMEOUT", 15*time.Second),
		},
		ImageGen: ImageGenConfig{
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-3-pro-image-preview"),
			Timeout: getEnvDuration("GEMINI_TIMEOUT", 2*time.Minute),
		},
		Schedule: ScheduleConfig{
			Enabled:  getEnvBool("SCHEDULE_ENABLED", true),
			CronSpec: getEnv("SCHEDULE_CRON", "0 8 * * *"),
		},
		Auth: AuthConfig{
			AccessCode:  getEnv("ACCESS_CODE", ""),
			ImageSecret: getEnv("IMAGE_SECRET", ""),
		},
		Pipeline: PipelineConfig{
			ImageRetryLimit:  getEnvInt("IMAGE_RETRY_LIMIT", 1),
			ImageRetryDelay:  getEnvDuration("IMAGE_RETRY_DELAY", 10*time.Second),
			StaleRunTimeout:  getEnvDuration("STALE_RUN_TIMEOUT", 30*time.Minute),
			WatchdogInterval: getEnvDuration("WATCHDOG_INTERVAL", 5*time.Minute),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Pipeline.ImageRetryLimit < 0 {
		return fmt.Errorf("image retry limit must be >= 0")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
