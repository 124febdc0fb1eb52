package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// overlay is the YAML shape of a config file. Only set fields override the
// environment-derived values.
type overlay struct {
	Port             *string `yaml:"port"`
	LogLevel         *string `yaml:"log_level"`
	DatabaseURL      *string `yaml:"database_url"`
	SQLitePath       *string `yaml:"sqlite_path"`
	RedisAddr        *string `yaml:"redis_addr"`
	RedisPassword    *string `yaml:"redis_password"`
	JWTSecret        *string `yaml:"jwt_secret"`
	ImagePath        *string `yaml:"image_path"`
	FilePondPath     *string `yaml:"filepond_path"`
	S3Bucket         *string `yaml:"s3_bucket"`
	S3Region         *string `yaml:"s3_region"`
	S3Endpoint       *string `yaml:"s3_endpoint"`
	S3Prefix         *string `yaml:"s3_prefix"`
	UseAccessControl *bool   `yaml:"use_access_control"`
	LiteralFreetext  *bool   `yaml:"literal_freetext"`
	RateLimitRPM     *int    `yaml:"rate_limit_rpm"`
	RateLimitBurst   *int    `yaml:"rate_limit_burst"`
	EdgeRPS          *int    `yaml:"edge_rps"`
	EdgeBurst        *int    `yaml:"edge_burst"`
	OTLPEndpoint     *string `yaml:"otlp_endpoint"`
}

func applyOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	setStr(&cfg.Port, o.Port)
	setStr(&cfg.LogLevel, o.LogLevel)
	setStr(&cfg.DatabaseURL, o.DatabaseURL)
	setStr(&cfg.SQLitePath, o.SQLitePath)
	setStr(&cfg.RedisAddr, o.RedisAddr)
	setStr(&cfg.RedisPassword, o.RedisPassword)
	setStr(&cfg.JWTSecret, o.JWTSecret)
	setStr(&cfg.ImagePath, o.ImagePath)
	setStr(&cfg.FilePondPath, o.FilePondPath)
	setStr(&cfg.S3Bucket, o.S3Bucket)
	setStr(&cfg.S3Region, o.S3Region)
	setStr(&cfg.S3Endpoint, o.S3Endpoint)
	setStr(&cfg.S3Prefix, o.S3Prefix)
	setBool(&cfg.UseAccessControl, o.UseAccessControl)
	setBool(&cfg.LiteralFreetext, o.LiteralFreetext)
	setInt(&cfg.RateLimitRPM, o.RateLimitRPM)
	setInt(&cfg.RateLimitBurst, o.RateLimitBurst)
	setInt(&cfg.EdgeRPS, o.EdgeRPS)
	setInt(&cfg.EdgeBurst, o.EdgeBurst)
	setStr(&cfg.OTLPEndpoint, o.OTLPEndpoint)
	return nil
}
