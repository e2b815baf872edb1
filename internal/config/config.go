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
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
}

type DatabaseConfig struct {
	Driver            string // "postgres" or "sqlite"
	SQLitePath        string
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
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type AuthConfig struct {
	CSRFSecret        string
	AttemptStore      string // "memory", "redis" or "postgres"
	SessionStore      string // "memory" or "redis"
	SessionTTL        time.Duration
	BootstrapUsername string
	BootstrapPassword string
	TimingDelayBaseMs int
	TimingDelayRandMs int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	csrfSecret := getEnv("CSRF_SECRET", "")
	if csrfSecret == "" {
		return nil, fmt.Errorf("CSRF_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:            getEnv("DB_DRIVER", "sqlite"),
			SQLitePath:        getEnv("DB_SQLITE_PATH", "users.db"),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "portcullis"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "5000"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			CSRFSecret:        csrfSecret,
			AttemptStore:      getEnv("ATTEMPT_STORE", "memory"),
			SessionStore:      getEnv("SESSION_STORE", "memory"),
			SessionTTL:        getEnvAsDuration("SESSION_TTL", 12*time.Hour),
			BootstrapUsername: getEnv("AUTH_BOOTSTRAP_USERNAME", ""),
			BootstrapPassword: getEnv("AUTH_BOOTSTRAP_PASSWORD", ""),
			TimingDelayBaseMs: getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
		},
	}

	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required with the postgres driver")
		}
	case "sqlite":
		// no credentials needed
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}

	switch cfg.Auth.AttemptStore {
	case "memory", "redis", "postgres":
	default:
		return nil, fmt.Errorf("unsupported ATTEMPT_STORE %q", cfg.Auth.AttemptStore)
	}
	if cfg.Auth.AttemptStore == "postgres" && cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("ATTEMPT_STORE=postgres requires DB_DRIVER=postgres")
	}

	switch cfg.Auth.SessionStore {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unsupported SESSION_STORE %q", cfg.Auth.SessionStore)
	}

	if err := validateCSRFSecret(csrfSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateCSRFSecret enforces minimum security standards for the signing secret
func validateCSRFSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("CSRF_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("CSRF_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
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

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
