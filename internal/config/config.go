package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port            int
	DevMode         bool
	LogLevel        string
	DataDir         string // root for databases, snapshots and figures
	DatabasePath    string
	ModelConfigPath string   // optional TOML with feature/training settings
	Symbols         []string // rolled contract series to track, e.g. CL, NG
	RetrainSchedule string
	HealthSchedule  string
	BackupSchedule  string
	Backup          BackupConfig
}

// BackupConfig holds S3-compatible snapshot backup settings.
// Backups stay disabled until an endpoint and bucket are set.
type BackupConfig struct {
	Enabled         bool
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	Keep            int // how many remote backups to retain
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		Port:            getEnvAsInt("PORT", 8090),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DataDir:         dataDir,
		DatabasePath:    getEnv("DATABASE_PATH", filepath.Join(dataDir, "skewcast.db")),
		ModelConfigPath: getEnv("MODEL_CONFIG", ""),
		Symbols:         splitSymbols(getEnv("SYMBOLS", "CL")),
		RetrainSchedule: getEnv("RETRAIN_SCHEDULE", "0 30 23 * * 1-5"),
		HealthSchedule:  getEnv("HEALTH_SCHEDULE", "0 0 * * * *"),
		BackupSchedule:  getEnv("BACKUP_SCHEDULE", "0 0 4 * * 6"),
		Backup: BackupConfig{
			Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("BACKUP_S3_PREFIX", "skewcast"),
			Keep:            getEnvAsInt("BACKUP_KEEP", 8),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("SYMBOLS must name at least one series")
	}

	if c.Backup.Enabled {
		if c.Backup.Endpoint == "" || c.Backup.Bucket == "" {
			return fmt.Errorf("backups enabled but BACKUP_S3_ENDPOINT or BACKUP_S3_BUCKET missing")
		}
		if c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("backups enabled but S3 credentials missing")
		}
	}

	return nil
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			symbols = append(symbols, strings.ToUpper(s))
		}
	}
	return symbols
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
