package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/epic1st/rtx/backend/logging"
)

// Config holds all application configuration for one engine instance.
type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// JWT
	JWT JWTConfig

	// Operator credentials for the single account this process serves
	Operator OperatorConfig

	// Engine
	Engine EngineConfig

	// CORS
	CORS CORSConfig

	// Observability
	SentryDSN string
	AuditDir  string
	LogFile   string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type JWTConfig struct {
	Secret string
	Expiry string
}

type OperatorConfig struct {
	PasswordHash string
}

// EngineConfig parameterizes the account an Engine simulates.
type EngineConfig struct {
	AccountKey  string
	InitBalance float64
	// WatchSymbols are pre-warmed from the quote feed at startup so the
	// first order against a resting position doesn't panic for want of
	// a quote the process hasn't seen yet this run.
	WatchSymbols []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load loads configuration from environment variables, falling back to
// a .env file in the working directory when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "7999"),
		Environment: getEnv("ENVIRONMENT", "development"),

		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "sim_trade"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},

		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Expiry: getEnv("JWT_EXPIRY", "24h"),
		},

		Operator: OperatorConfig{
			PasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
		},

		Engine: EngineConfig{
			AccountKey:   getEnv("ACCOUNT_KEY", "sim0"),
			InitBalance:  getEnvAsFloat("INIT_BALANCE", 1e7),
			WatchSymbols: getEnvAsSlice("WATCH_SYMBOLS", nil, ","),
		},

		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}, ","),
		},

		SentryDSN: getEnv("SENTRY_DSN", ""),
		AuditDir:  getEnv("AUDIT_LOG_DIR", "./audit"),
		LogFile:   getEnv("LOG_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.Operator.PasswordHash == "" {
			logging.Warn("OPERATOR_PASSWORD_HASH not set, operator login will use default password")
		}
	}
	return nil
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	return strings.Split(valueStr, sep)
}
