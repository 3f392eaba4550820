package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from the environment.
type Config struct {
	Port      string
	ClientURL string
	BaseURL   string

	PostgresURL      string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	RedisAddr string

	JWTSecret string

	DigestInterval time.Duration
}

// LoadConfig reads the environment (optionally seeded from a .env file)
// and returns the assembled configuration.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	config := &Config{
		Port:             getEnvWithDefault("PORT", "5000"),
		ClientURL:        getEnvWithDefault("CLIENT_URL", "http://localhost:5173"),
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresSSLMode:  getEnvWithDefault("POSTGRES_SSLMODE", "prefer"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
	}
	config.BaseURL = getEnvWithDefault("PUBLIC_URL", "http://localhost:"+config.Port)

	if portStr := os.Getenv("POSTGRES_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
		}
		config.PostgresPort = port
	} else {
		config.PostgresPort = 5432
	}

	if intervalStr := os.Getenv("DIGEST_INTERVAL"); intervalStr != "" {
		interval, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("invalid DIGEST_INTERVAL: %w", err)
		}
		config.DigestInterval = interval
	} else {
		config.DigestInterval = time.Hour
	}

	if config.PostgresURL == "" {
		// If PostgresURL is not set, validate individual parameters
		if config.PostgresHost == "" || config.PostgresUser == "" || config.PostgresDB == "" {
			return nil, fmt.Errorf("either POSTGRES_URL or POSTGRES_HOST, POSTGRES_USER, and POSTGRES_DB must be set")
		}
		config.PostgresURL = buildPostgresURL(config)
	}
	if config.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR not set")
	}
	if config.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET not set")
	}

	return config, nil
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// buildPostgresURL constructs PostgreSQL connection URL from individual parameters
func buildPostgresURL(config *Config) string {
	password := ""
	if config.PostgresPassword != "" {
		password = ":" + config.PostgresPassword
	}

	return fmt.Sprintf("postgres://%s%s@%s:%d/%s?sslmode=%s",
		config.PostgresUser,
		password,
		config.PostgresHost,
		config.PostgresPort,
		config.PostgresDB,
		config.PostgresSSLMode,
	)
}
