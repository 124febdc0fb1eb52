// Package config loads server configuration from the environment, with an
// optional YAML overlay for deployments that prefer a config file.
package config

import (
	"os"
	"strconv"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// DatabaseURL selects Postgres; when empty the server falls back to a
	// local SQLite file at SQLitePath (lite mode).
	DatabaseURL string
	SQLitePath  string

	// RedisAddr enables the Redis notification transport and the per-actor
	// rate limiter; empty keeps both in-process.
	RedisAddr     string
	RedisPassword string

	JWTSecret string

	ImagePath    string
	FilePondPath string

	// S3Bucket switches image storage from the local directory to S3.
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string

	// UseAccessControl makes hidden cruises and lowerings visible to users
	// on their access lists, not just admins.
	UseAccessControl bool

	// LiteralFreetext switches freetext filters from regex to plain
	// substring matching.
	LiteralFreetext bool

	// RateLimitRPM/Burst apply per authenticated actor when Redis is
	// configured. EdgeRPS/EdgeBurst apply per IP at the edge.
	RateLimitRPM   int
	RateLimitBurst int
	EdgeRPS        int
	EdgeBurst      int

	OTLPEndpoint string
}

// Load loads configuration from environment variables, then applies the
// YAML overlay named by CONFIG_FILE if set.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getenv("PORT", "8000"),
		LogLevel:         getenv("LOG_LEVEL", "INFO"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getenv("SQLITE_PATH", "oceanlog.db"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		ImagePath:        getenv("IMAGE_PATH", "./images"),
		FilePondPath:     getenv("FILEPOND_PATH", "./filepond"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3Region:         getenv("S3_REGION", "us-east-1"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3Prefix:         getenv("S3_PREFIX", "images/"),
		UseAccessControl: os.Getenv("USE_ACCESS_CONTROL") == "true",
		LiteralFreetext:  os.Getenv("LITERAL_FREETEXT") == "true",
		RateLimitRPM:     getenvInt("RATE_LIMIT_RPM", 600),
		RateLimitBurst:   getenvInt("RATE_LIMIT_BURST", 100),
		EdgeRPS:          getenvInt("EDGE_RPS", 50),
		EdgeBurst:        getenvInt("EDGE_BURST", 100),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyOverlay(cfg, path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
