package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL   string // SMARTSITE_DATABASE_URL (required, falls back to DATABASE_URL)
	HTTPAddr      string // SMARTSITE_HTTP_ADDR (default ":8080")
	GRPCAddr      string // SMARTSITE_GRPC_ADDR (default ":9090")
	NATSURL       string // SMARTSITE_NATS_URL (optional, empty = no events)
	APIToken      string // SMARTSITE_API_TOKEN (optional, empty = no service token)
	SecureCookies bool   // SMARTSITE_SECURE_COOKIES (default false)
	PublicURL     string // SMARTSITE_PUBLIC_URL (base URL written into embed scripts)
	LogLevel      string // SMARTSITE_LOG_LEVEL (default "info")
	LogFormat     string // SMARTSITE_LOG_FORMAT ("text" or "json", default "text")

	// SOT sync
	SOTEnabled     bool          // SMARTSITE_SOT_ENABLED (default true)
	SOTSchedule    string        // SMARTSITE_SOT_SCHEDULE (default "0 3 * * *")
	SOTRetryDelay  time.Duration // SMARTSITE_SOT_RETRY_DELAY (default 60s, multiplied by attempt)
	SOTS3Bucket    string        // SMARTSITE_SOT_S3_BUCKET (enables profile archive when set)
	SOTS3KeyPrefix string        // SMARTSITE_SOT_S3_KEY_PREFIX (default "sot/profiles/")
	SOTS3Region    string        // SMARTSITE_SOT_S3_REGION (default "us-east-1")
	SOTS3Endpoint  string        // SMARTSITE_SOT_S3_ENDPOINT (custom endpoint for MinIO)
	SOTAPIKey      string        // SMARTSITE_SOT_API_KEY (sent as X-API-Key on callback pushes)

	// Health monitoring
	HealthInterval      time.Duration // SMARTSITE_HEALTH_INTERVAL (default 60s)
	HealthBatchSize     int           // SMARTSITE_HEALTH_BATCH_SIZE (default 50)
	HealthFlushInterval time.Duration // SMARTSITE_HEALTH_FLUSH_INTERVAL (default 5s)

	// Agent
	OpenAIKey     string  // OPENAI_API_KEY (optional, empty = agent respond returns 503)
	OpenAIBaseURL string  // SMARTSITE_OPENAI_BASE_URL (default "https://api.openai.com/v1")
	OpenAIModel   string  // SMARTSITE_OPENAI_MODEL (default "gpt-4o")
	OpenAIRPS     float64 // SMARTSITE_OPENAI_RPS (default 2)
	BusinessName  string  // SMARTSITE_BUSINESS_NAME (default "Progress Accountants")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    envOrDefault("SMARTSITE_DATABASE_URL", os.Getenv("DATABASE_URL")),
		HTTPAddr:       envOrDefault("SMARTSITE_HTTP_ADDR", ":8080"),
		GRPCAddr:       envOrDefault("SMARTSITE_GRPC_ADDR", ":9090"),
		NATSURL:        os.Getenv("SMARTSITE_NATS_URL"),
		APIToken:       os.Getenv("SMARTSITE_API_TOKEN"),
		PublicURL:      os.Getenv("SMARTSITE_PUBLIC_URL"),
		LogLevel:       envOrDefault("SMARTSITE_LOG_LEVEL", "info"),
		LogFormat:      envOrDefault("SMARTSITE_LOG_FORMAT", "text"),
		SOTSchedule:    envOrDefault("SMARTSITE_SOT_SCHEDULE", "0 3 * * *"),
		SOTS3Bucket:    os.Getenv("SMARTSITE_SOT_S3_BUCKET"),
		SOTS3KeyPrefix: envOrDefault("SMARTSITE_SOT_S3_KEY_PREFIX", "sot/profiles/"),
		SOTS3Region:    envOrDefault("SMARTSITE_SOT_S3_REGION", "us-east-1"),
		SOTS3Endpoint:  os.Getenv("SMARTSITE_SOT_S3_ENDPOINT"),
		SOTAPIKey:      os.Getenv("SMARTSITE_SOT_API_KEY"),
		BusinessName:   envOrDefault("SMARTSITE_BUSINESS_NAME", "Progress Accountants"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  envOrDefault("SMARTSITE_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:    envOrDefault("SMARTSITE_OPENAI_MODEL", "gpt-4o"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("SMARTSITE_DATABASE_URL is required")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return nil, fmt.Errorf("SMARTSITE_LOG_FORMAT: unknown format %q", c.LogFormat)
	}

	var err error
	if c.SecureCookies, err = envBool("SMARTSITE_SECURE_COOKIES", false); err != nil {
		return nil, err
	}
	if c.SOTEnabled, err = envBool("SMARTSITE_SOT_ENABLED", true); err != nil {
		return nil, err
	}
	if c.SOTRetryDelay, err = envDuration("SMARTSITE_SOT_RETRY_DELAY", "60s"); err != nil {
		return nil, err
	}
	if c.HealthInterval, err = envDuration("SMARTSITE_HEALTH_INTERVAL", "60s"); err != nil {
		return nil, err
	}
	if c.HealthFlushInterval, err = envDuration("SMARTSITE_HEALTH_FLUSH_INTERVAL", "5s"); err != nil {
		return nil, err
	}

	batch := envOrDefault("SMARTSITE_HEALTH_BATCH_SIZE", "50")
	c.HealthBatchSize, err = strconv.Atoi(batch)
	if err != nil || c.HealthBatchSize <= 0 {
		return nil, fmt.Errorf("SMARTSITE_HEALTH_BATCH_SIZE: invalid value %q", batch)
	}

	rps := envOrDefault("SMARTSITE_OPENAI_RPS", "2")
	c.OpenAIRPS, err = strconv.ParseFloat(rps, 64)
	if err != nil || c.OpenAIRPS <= 0 {
		return nil, fmt.Errorf("SMARTSITE_OPENAI_RPS: invalid value %q", rps)
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
