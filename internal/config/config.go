// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cryptosage/backend/internal/utils"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the portfolio store (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	MarketData MarketDataConfig
	Trend      TrendConfig
	Advisor    AdvisorConfig
	Jobs       JobsConfig
	Backup     BackupConfig
}

// MarketDataConfig holds CryptoCompare client settings
type MarketDataConfig struct {
	APIKey  string
	BaseURL string
	Quote   string
	Timeout time.Duration
}

// TrendConfig holds LSTM training settings
type TrendConfig struct {
	SequenceLength int
	Epochs         int
	BatchSize      int
	HiddenUnits    int
	Dropout        float64
	LearningRate   float64
	Seed           int64 // 0 = seeded from the clock
}

// AdvisorConfig holds request orchestration settings
type AdvisorConfig struct {
	TrendLookbackDays int
	PriceLookbackDays int
	TopMoversLimit    int
	// AssetAliases maps exchange tickers to market data symbols, e.g. XXBT -> BTC
	AssetAliases     map[string]string
	DefaultPortfolio []string
	RequestTimeout   time.Duration
}

// JobsConfig holds background job schedules
type JobsConfig struct {
	MaintenanceSchedule string
	Timeout             time.Duration
}

// BackupConfig holds off-site backup settings. Backups are disabled
// when Bucket is empty.
type BackupConfig struct {
	Schedule        string
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Enabled reports whether off-site backups are configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// DatabasePath returns the portfolio store path
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "portfolio.db")
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := fromEnv()

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg.DataDir = absDataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		DataDir:  getEnv("DATA_DIR", "./data"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		MarketData: MarketDataConfig{
			APIKey:  getEnv("CRYPTOCOMPARE_API_KEY", ""),
			BaseURL: getEnv("CRYPTOCOMPARE_BASE_URL", "https://min-api.cryptocompare.com"),
			Quote:   strings.ToUpper(getEnv("QUOTE_CURRENCY", "USD")),
			Timeout: time.Duration(getEnvAsInt("CRYPTOCOMPARE_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Trend: TrendConfig{
			SequenceLength: getEnvAsInt("SEQUENCE_LENGTH", 30),
			Epochs:         getEnvAsInt("TRAIN_EPOCHS", 100),
			BatchSize:      getEnvAsInt("TRAIN_BATCH_SIZE", 32),
			HiddenUnits:    getEnvAsInt("LSTM_UNITS", 32),
			Dropout:        getEnvAsFloat("DROPOUT_RATE", 0.2),
			LearningRate:   getEnvAsFloat("LEARNING_RATE", 0.001),
			Seed:           int64(getEnvAsInt("TRAIN_SEED", 0)),
		},
		Advisor: AdvisorConfig{
			TrendLookbackDays: getEnvAsInt("TREND_LOOKBACK_DAYS", 90),
			PriceLookbackDays: getEnvAsInt("PRICE_LOOKBACK_DAYS", 30),
			TopMoversLimit:    getEnvAsInt("TOP_MOVERS_LIMIT", 3),
			AssetAliases:      utils.ParseKeyValues(getEnv("ASSET_ALIASES", "")),
			DefaultPortfolio:  upper(utils.ParseCSV(getEnv("DEFAULT_PORTFOLIO", "BTC,ETH,LTC,XRP,ADA"))),
			RequestTimeout:    time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Jobs: JobsConfig{
			MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "@daily"),
			Timeout:             time.Duration(getEnvAsInt("JOB_TIMEOUT_MINUTES", 10)) * time.Minute,
		},
		Backup: BackupConfig{
			Schedule:        getEnv("BACKUP_SCHEDULE", "@daily"),
			Bucket:          getEnv("BACKUP_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
			Region:          getEnv("BACKUP_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.Trend.SequenceLength <= 0 {
		return fmt.Errorf("SEQUENCE_LENGTH must be positive, got %d", c.Trend.SequenceLength)
	}
	if c.Trend.Epochs <= 0 || c.Trend.BatchSize <= 0 || c.Trend.HiddenUnits <= 0 {
		return fmt.Errorf("TRAIN_EPOCHS, TRAIN_BATCH_SIZE and LSTM_UNITS must be positive")
	}
	if c.Trend.Dropout < 0 || c.Trend.Dropout >= 1 {
		return fmt.Errorf("DROPOUT_RATE must be in [0, 1), got %g", c.Trend.Dropout)
	}
	if c.Trend.LearningRate <= 0 {
		return fmt.Errorf("LEARNING_RATE must be positive, got %g", c.Trend.LearningRate)
	}
	if c.Advisor.TrendLookbackDays < 2 || c.Advisor.PriceLookbackDays < 2 {
		return fmt.Errorf("TREND_LOOKBACK_DAYS and PRICE_LOOKBACK_DAYS must be at least 2")
	}
	if len(c.Advisor.DefaultPortfolio) == 0 {
		return fmt.Errorf("DEFAULT_PORTFOLIO must name at least one symbol")
	}
	if c.Backup.Enabled() && (c.Backup.AccessKeyID == "") != (c.Backup.SecretAccessKey == "") {
		return fmt.Errorf("BACKUP_ACCESS_KEY_ID and BACKUP_SECRET_ACCESS_KEY must be set together")
	}
	// CryptoCompare serves low-volume requests without a key
	return nil
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

func upper(values []string) []string {
	for i, v := range values {
		values[i] = strings.ToUpper(v)
	}
	return values
}
