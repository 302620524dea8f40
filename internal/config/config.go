// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for both databases, always absolute
	LogLevel string
	Port     int
	DevMode  bool

	// Market data collection
	QuoteFeedURL    string // Base URL of the EOD quote feed
	QuoteFeedAPIKey string

	// Batch defaults
	LookbackDays      int     // Backfill window for the nightly run
	HistoryDays       int     // Trailing calendar days of prices loaded into the cache
	BatchWorkers      int     // Parallel per-portfolio workers within a phase
	RidgeLambda       float64 // L2 penalty for the multi-factor regression
	MinRegressionObs  int     // Minimum aligned observations for factor betas
	MinVolatilityObs  int     // Minimum return observations for the HAR forecast
	MinCorrelationObs int     // Minimum overlapping observations per correlation pair
	ClusterThreshold  float64 // Pairwise correlation above which positions cluster
	MaxLossFraction   float64 // Stress-loss clip as a fraction of portfolio value
	ForecastHorizon   int     // Volatility forecast horizon in trading days

	// Backups
	Backup *BackupConfig
}

// BackupConfig holds S3 backup configuration
type BackupConfig struct {
	Enabled   bool
	Endpoint  string // Custom S3 endpoint (empty for AWS)
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Keep      int // Number of remote backups to retain
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SIGMASIGHT_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8400),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		QuoteFeedURL:    getEnv("QUOTE_FEED_URL", "http://localhost:8410"),
		QuoteFeedAPIKey: getEnv("QUOTE_FEED_API_KEY", ""),

		LookbackDays:      getEnvAsInt("BATCH_LOOKBACK_DAYS", 5),
		HistoryDays:       getEnvAsInt("BATCH_HISTORY_DAYS", 400),
		BatchWorkers:      getEnvAsInt("BATCH_WORKERS", 4),
		RidgeLambda:       getEnvAsFloat("RIDGE_LAMBDA", 1e-4),
		MinRegressionObs:  getEnvAsInt("MIN_REGRESSION_OBS", 60),
		MinVolatilityObs:  getEnvAsInt("MIN_VOLATILITY_OBS", 63),
		MinCorrelationObs: getEnvAsInt("MIN_CORRELATION_OBS", 30),
		ClusterThreshold:  getEnvAsFloat("CORRELATION_CLUSTER_THRESHOLD", 0.70),
		MaxLossFraction:   getEnvAsFloat("STRESS_MAX_LOSS_FRACTION", 0.99),
		ForecastHorizon:   getEnvAsInt("VOLATILITY_FORECAST_HORIZON", 21),

		Backup: loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("SIGMASIGHT_DATA_DIR is required")
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1")
	}
	if c.MaxLossFraction <= 0 || c.MaxLossFraction > 1 {
		return fmt.Errorf("STRESS_MAX_LOSS_FRACTION must be in (0, 1]")
	}
	if c.ClusterThreshold < 0 || c.ClusterThreshold > 1 {
		return fmt.Errorf("CORRELATION_CLUSTER_THRESHOLD must be in [0, 1]")
	}
	if c.HistoryDays < c.LookbackDays {
		return fmt.Errorf("BATCH_HISTORY_DAYS must cover BATCH_LOOKBACK_DAYS")
	}
	return nil
}

// MarketDBPath returns the path of the price history database
func (c *Config) MarketDBPath() string {
	return filepath.Join(c.DataDir, "market.db")
}

// AnalyticsDBPath returns the path of the results database
func (c *Config) AnalyticsDBPath() string {
	return filepath.Join(c.DataDir, "analytics.db")
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:   getEnvAsBool("BACKUP_ENABLED", false),
		Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:    getEnv("BACKUP_S3_REGION", "us-east-1"),
		Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
		AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
		SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
		Keep:      getEnvAsInt("BACKUP_KEEP", 8),
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
