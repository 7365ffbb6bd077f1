package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds process-level configuration for notaryd. Per-namespace
// batching policy lives in namespace profiles (profile_loader.go), not
// here.
type Config struct {
	Port        string
	LogLevel    string
	DataDir     string
	ProfilesDir string

	// DatabaseURL selects the Postgres checkpoint store. Empty selects
	// the SQLite store at <DataDir>/checkpoints.db.
	DatabaseURL string

	// KeystorePath is the master-seed keystore file. Created on first
	// boot when absent.
	KeystorePath string

	// AuthSecret enables producer bearer-token auth when non-empty.
	AuthSecret string

	// Rate limiting for the ingest API. RedisAddr switches the limiter
	// from per-process buckets to a shared Redis bucket.
	RateLimitPerSecond int
	RateLimitBurst     int
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	// Archive sink for emitted blocks. ArchiveSink is one of
	// "fs", "s3", "gcs" or "off".
	ArchiveSink     string
	ArchiveDir      string
	ArchiveBucket   string
	ArchiveRegion   string
	ArchiveEndpoint string
	ArchivePrefix   string
	ArchiveCompress bool

	// OTLPEndpoint enables telemetry export when non-empty.
	OTLPEndpoint string
	Environment  string
}

// Load loads configuration from environment variables.
func Load() *Config {
	dataDir := getenvDefault("DATA_DIR", "data")

	return &Config{
		Port:        getenvDefault("PORT", "8080"),
		LogLevel:    getenvDefault("LOG_LEVEL", "INFO"),
		DataDir:     dataDir,
		ProfilesDir: getenvDefault("PROFILES_DIR", "profiles"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		KeystorePath: getenvDefault("KEYSTORE_PATH", filepath.Join(dataDir, "keystore.json")),

		AuthSecret: os.Getenv("AUTH_SECRET"),

		RateLimitPerSecond: getenvInt("RATE_LIMIT_PER_SECOND", 100),
		RateLimitBurst:     getenvInt("RATE_LIMIT_BURST", 200),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getenvInt("REDIS_DB", 0),

		ArchiveSink:     getenvDefault("ARCHIVE_SINK", "fs"),
		ArchiveDir:      getenvDefault("ARCHIVE_DIR", filepath.Join(dataDir, "blocks")),
		ArchiveBucket:   os.Getenv("ARCHIVE_BUCKET"),
		ArchiveRegion:   os.Getenv("ARCHIVE_REGION"),
		ArchiveEndpoint: os.Getenv("ARCHIVE_ENDPOINT"),
		ArchivePrefix:   os.Getenv("ARCHIVE_PREFIX"),
		ArchiveCompress: os.Getenv("ARCHIVE_COMPRESS") == "true",

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Environment:  getenvDefault("ENVIRONMENT", "development"),
	}
}

// SQLitePath is the checkpoint database location used when DatabaseURL
// is unset.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "checkpoints.db")
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
