package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	App struct {
		Port  string
		Debug bool
	}
	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		DBName   string
		SSLMode  string
	}
	Redis struct {
		Host     string
		Port     string
		Password string
		DB       int
	}
	NCBI struct {
		BaseURL     string
		Database    string
		Organism    string
		Taxon       string
		RetMax      int           // cap on discovered ids per run; 0 means all
		MinInterval time.Duration // NCBI usage policy: at most 3 requests/second
	}
	Storage struct {
		BaseDir   string
		ReportDir string
	}
	Workers struct {
		SyncEnabled  bool
		SyncInterval time.Duration
	}
}

func Load() *Config {
	cfg := &Config{}

	// App
	cfg.App.Port = getEnv("PORT", "8080")
	cfg.App.Debug = getEnvAsBool("DEBUG", false)

	// DB
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.DBName = getEnv("DB_NAME", "virosync")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	// Redis
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnv("REDIS_PORT", "6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)

	// NCBI
	cfg.NCBI.BaseURL = getEnv("NCBI_BASE_URL", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	cfg.NCBI.Database = getEnv("NCBI_DATABASE", "nuccore")
	cfg.NCBI.Organism = getEnv("NCBI_ORGANISM", "Severe acute respiratory syndrome coronavirus 2")
	cfg.NCBI.Taxon = getEnv("NCBI_TAXON", "SARS-CoV-2")
	cfg.NCBI.RetMax = getEnvAsInt("NCBI_RETMAX", 0)
	cfg.NCBI.MinInterval = getEnvAsDuration("NCBI_MIN_INTERVAL", time.Second/3)

	// Storage
	cfg.Storage.BaseDir = getEnv("STORAGE_BASE_DIR", "./data")
	cfg.Storage.ReportDir = getEnv("STORAGE_REPORT_DIR", "./data/reports")

	// Workers
	cfg.Workers.SyncEnabled = getEnvAsBool("SYNC_ENABLED", true)
	cfg.Workers.SyncInterval = getEnvAsDuration("WORKER_SYNC_INTERVAL", 24*time.Hour)

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
	}
	return defaultValue
}
