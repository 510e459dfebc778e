package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName       = "Galafy"
	defaultAppEnv        = "development"
	defaultPort          = "8080"
	defaultLogLevel      = "info"
	defaultShutdownDelay = 10 * time.Second
	defaultSprayLimit    = 5
	defaultSprayWindow   = time.Second
	defaultLockTimeout   = 5 * time.Second
	defaultRecordTimeout = 10 * time.Second
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	ProviderURL    string
	ProviderAPIKey string
	ShutdownPeriod time.Duration

	// SprayRateLimit admissions per SprayRateWindow per user.
	SprayRateLimit  int
	SprayRateWindow time.Duration

	// Storage transaction deadlines for the lock/verify and record steps.
	LockTimeout   time.Duration
	RecordTimeout time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		ProviderURL:     os.Getenv("PROVIDER_BASE_URL"),
		ProviderAPIKey:  os.Getenv("PROVIDER_API_KEY"),
		ShutdownPeriod:  defaultShutdownDelay,
		SprayRateLimit:  defaultSprayLimit,
		SprayRateWindow: defaultSprayWindow,
		LockTimeout:     defaultLockTimeout,
		RecordTimeout:   defaultRecordTimeout,
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv("SPRAY_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid SPRAY_RATE_LIMIT: %q", v)
		}
		cfg.SprayRateLimit = n
	}

	if v := os.Getenv("SPRAY_RATE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid SPRAY_RATE_WINDOW: %q", v)
		}
		cfg.SprayRateWindow = d
	}

	if v := os.Getenv("LOCK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOCK_TIMEOUT: %w", err)
		}
		cfg.LockTimeout = d
	}

	if v := os.Getenv("RECORD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RECORD_TIMEOUT: %w", err)
		}
		cfg.RecordTimeout = d
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	if !isDev(cfg.AppEnv) {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.ProviderURL == "" || cfg.ProviderAPIKey == "" {
			return Config{}, fmt.Errorf("PROVIDER_BASE_URL and PROVIDER_API_KEY must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development environment, where the
// in-memory store and the static provider stub are allowed to stand in for
// Postgres and the real settlement provider.
func (c Config) IsDev() bool {
	return isDev(c.AppEnv)
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
