package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/nerc-project/invoicing/pkg/storage"
)

// Config holds all application configuration.
type Config struct {
	// Storage configuration
	Storage storage.Config

	// Rates document URL; empty selects the published default.
	RatesURL string

	// Coldfront allocation API configuration
	Coldfront ColdfrontConfig

	// Path to the institute list YAML
	InstituteListPath string

	// LogLevel is debug, info, warn or error.
	LogLevel string
}

// ColdfrontConfig holds the allocation API credentials.
type ColdfrontConfig struct {
	Endpoint     string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Storage:           loadStorageConfig(),
		RatesURL:          getEnv("NERC_RATES_URL", ""),
		Coldfront:         loadColdfrontConfig(),
		InstituteListPath: getEnv("NERC_INSTITUTE_LIST", "institute_list.yaml"),
		LogLevel:          getEnv("NERC_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadStorageConfig() storage.Config {
	return storage.Config{
		Backend:     getEnv("NERC_STORAGE_BACKEND", "s3"),
		Root:        getEnv("NERC_STORAGE_ROOT", "invoicing-data"),
		S3Endpoint:  getEnv("S3_ENDPOINT", "https://s3.us-east-005.backblazeb2.com"),
		S3Region:    getEnv("S3_REGION", "us-east-005"),
		S3Bucket:    getEnv("S3_BUCKET_NAME", "nerc-invoicing"),
		S3AccessKey: getEnv("S3_KEY_ID", ""),
		S3SecretKey: getEnv("S3_APP_KEY", ""),
		SQLitePath:  getEnv("NERC_SQLITE_PATH", "invoicing.db"),
	}
}

func loadColdfrontConfig() ColdfrontConfig {
	return ColdfrontConfig{
		Endpoint:     getEnv("COLDFRONT_URL", "https://coldfront.mss.mghpcc.org/api/allocations?all=true"),
		TokenURL:     getEnv("KEYCLOAK_TOKEN_URL", "https://keycloak.mss.mghpcc.org/auth/realms/mss/protocol/openid-connect/token"),
		ClientID:     getEnv("KEYCLOAK_CLIENT_ID", ""),
		ClientSecret: getEnv("KEYCLOAK_CLIENT_SECRET", ""),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "filesystem":
		if c.Storage.Root == "" {
			return fmt.Errorf("storage root is required for filesystem storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 storage")
		}
		if c.Storage.S3AccessKey == "" || c.Storage.S3SecretKey == "" {
			return fmt.Errorf("please set the environment variables S3_KEY_ID and S3_APP_KEY")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("database path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be filesystem, s3, or sqlite)", c.Storage.Backend)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
