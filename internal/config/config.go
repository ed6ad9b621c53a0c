// Package config loads service configuration from the environment, with
// .env support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to start.
type Config struct {
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret string

	ERPBaseURL string
	ERPAPIKey  string

	ImportBatchSize int
	ImportWorkers   int

	DispatchMaxAttempts int
	DispatchBaseDelay   time.Duration
	DispatchMaxDelay    time.Duration

	BreakerFailureThreshold int
	BreakerCooldown         time.Duration

	// ERPWaitForRecovery makes a running job wait out the breaker cooldown
	// between batches instead of failing fast when the circuit opens.
	ERPWaitForRecovery bool
}

// Load reads the environment (and .env, if present) into a Config.
func Load() (*Config, error) {
	// Missing .env is fine in deployed environments.
	_ = godotenv.Load()

	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "rangoon_middleware"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		JWTSecret:  os.Getenv("JWT_SECRET"),
		ERPBaseURL: os.Getenv("ERP_BASE_URL"),
		ERPAPIKey:  os.Getenv("ERP_API_KEY"),
	}

	var err error
	if cfg.ImportBatchSize, err = getEnvInt("IMPORT_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.ImportWorkers, err = getEnvInt("IMPORT_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.DispatchMaxAttempts, err = getEnvInt("DISPATCH_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.DispatchBaseDelay, err = getEnvDuration("DISPATCH_BASE_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.DispatchMaxDelay, err = getEnvDuration("DISPATCH_MAX_DELAY", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.BreakerFailureThreshold, err = getEnvInt("BREAKER_FAILURE_THRESHOLD", 3); err != nil {
		return nil, err
	}
	if cfg.BreakerCooldown, err = getEnvDuration("BREAKER_COOLDOWN", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ERPWaitForRecovery, err = getEnvBool("ERP_WAIT_FOR_RECOVERY", false); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, v)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not a duration", key, v)
	}
	return d, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q is not a boolean", key, v)
	}
	return b, nil
}
