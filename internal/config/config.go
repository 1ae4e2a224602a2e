package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string // REFLEX_DATABASE_URL (required)
	HTTPAddr    string // REFLEX_HTTP_ADDR (default ":8080")
	NATSURL     string // REFLEX_NATS_URL (optional, empty = no bus)
	AuthToken   string // REFLEX_AUTH_TOKEN (optional, empty = auth disabled)
	SchemaFile  string // REFLEX_SCHEMA_FILE (optional, empty = embedded defaults)

	// Task worker settings
	WorkerConcurrency int           // REFLEX_WORKER_CONCURRENCY (default 4)
	HandlerTimeout    time.Duration // REFLEX_HANDLER_TIMEOUT (default 60s)
	DrainTimeout      time.Duration // REFLEX_DRAIN_TIMEOUT (default 10s)
	ScriptsDir        string        // REFLEX_SCRIPTS_DIR (default "scripts")
	WakeURL           string        // REFLEX_WAKE_URL (optional, empty = wake_llm disabled)
	WakeToken         string        // REFLEX_WAKE_TOKEN (optional bearer token for the wake endpoint)

	// Notifier settings
	HeartbeatInterval   time.Duration // REFLEX_HEARTBEAT_INTERVAL (default 15s)
	SubscriberQueueSize int           // REFLEX_SUBSCRIBER_QUEUE (default 64)
	SubscriberReapAfter time.Duration // REFLEX_SUBSCRIBER_REAP_AFTER (default 60s)

	// Cron trigger settings
	TriggersFile string // REFLEX_TRIGGERS_FILE (optional, empty = no cron triggers)

	// Audit export settings
	ExportInterval   time.Duration // REFLEX_EXPORT_INTERVAL (default 0; 0 = disabled)
	ExportS3Bucket   string        // REFLEX_EXPORT_S3_BUCKET (required when export enabled)
	ExportS3Endpoint string        // REFLEX_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportS3Region   string        // REFLEX_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Key      string        // REFLEX_EXPORT_S3_KEY (default "reflex/audit.jsonl")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:      os.Getenv("REFLEX_DATABASE_URL"),
		HTTPAddr:         envOrDefault("REFLEX_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("REFLEX_NATS_URL"),
		AuthToken:        os.Getenv("REFLEX_AUTH_TOKEN"),
		SchemaFile:       os.Getenv("REFLEX_SCHEMA_FILE"),
		TriggersFile:     os.Getenv("REFLEX_TRIGGERS_FILE"),
		ScriptsDir:       envOrDefault("REFLEX_SCRIPTS_DIR", "scripts"),
		WakeURL:          os.Getenv("REFLEX_WAKE_URL"),
		WakeToken:        os.Getenv("REFLEX_WAKE_TOKEN"),
		ExportS3Bucket:   os.Getenv("REFLEX_EXPORT_S3_BUCKET"),
		ExportS3Endpoint: os.Getenv("REFLEX_EXPORT_S3_ENDPOINT"),
		ExportS3Region:   envOrDefault("REFLEX_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Key:      envOrDefault("REFLEX_EXPORT_S3_KEY", "reflex/audit.jsonl"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("REFLEX_DATABASE_URL is required")
	}

	var err error
	if c.WorkerConcurrency, err = envInt("REFLEX_WORKER_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if c.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("REFLEX_WORKER_CONCURRENCY must be at least 1")
	}
	if c.SubscriberQueueSize, err = envInt("REFLEX_SUBSCRIBER_QUEUE", 64); err != nil {
		return nil, err
	}
	if c.SubscriberQueueSize < 1 {
		return nil, fmt.Errorf("REFLEX_SUBSCRIBER_QUEUE must be at least 1")
	}

	if c.HandlerTimeout, err = envDuration("REFLEX_HANDLER_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}
	if c.DrainTimeout, err = envDuration("REFLEX_DRAIN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if c.HeartbeatInterval, err = envDuration("REFLEX_HEARTBEAT_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if c.SubscriberReapAfter, err = envDuration("REFLEX_SUBSCRIBER_REAP_AFTER", time.Minute); err != nil {
		return nil, err
	}
	if c.ExportInterval, err = envDuration("REFLEX_EXPORT_INTERVAL", 0); err != nil {
		return nil, err
	}
	if c.ExportInterval > 0 && c.ExportS3Bucket == "" {
		return nil, fmt.Errorf("REFLEX_EXPORT_S3_BUCKET is required when REFLEX_EXPORT_INTERVAL is set")
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
