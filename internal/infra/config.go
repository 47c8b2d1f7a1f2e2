package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	WorkerPort  string
	DatabaseURL string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	StorageDriver  string
	StoragePath    string
	StorageBaseURL string
	GCSBucket      string
	GCSCDNDomain   string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	RedisAddr    string
	RedisChannel string

	WorkerID          string
	WorkerWebhookURLs []string

	PollInterval    time.Duration
	LockTimeout     time.Duration
	ImageDelay      time.Duration
	MaxJobAttempts  int
	MaxCallAttempts int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RetryJitter     time.Duration
	RetryFallback   time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		WorkerPort:  getEnv("WORKER_PORT", "8090"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		StorageDriver:  getEnv("STORAGE_DRIVER", "filesystem"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		GCSCDNDomain:   os.Getenv("GCS_CDN_DOMAIN"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "generated-photos"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisChannel: getEnv("REDIS_CHANNEL", "photo-generation-jobs"),

		WorkerID:          getEnv("WORKER_ID", defaultWorkerID()),
		WorkerWebhookURLs: getEnvList("WORKER_WEBHOOK_URLS"),

		PollInterval:    time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 2)),
		LockTimeout:     time.Second * time.Duration(getEnvInt("WORKER_LOCK_TIMEOUT_SECONDS", 120)),
		ImageDelay:      time.Millisecond * time.Duration(getEnvInt("WORKER_IMAGE_DELAY_MS", 2000)),
		MaxJobAttempts:  getEnvInt("JOB_MAX_ATTEMPTS", 5),
		MaxCallAttempts: getEnvInt("GENERATION_MAX_CALL_ATTEMPTS", 3),
		RetryBaseDelay:  time.Millisecond * time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 1000)),
		RetryMaxDelay:   time.Second * time.Duration(getEnvInt("RETRY_MAX_DELAY_SECONDS", 300)),
		RetryJitter:     time.Millisecond * time.Duration(getEnvInt("RETRY_JITTER_MS", 3000)),
		RetryFallback:   time.Second * time.Duration(getEnvInt("RETRY_FALLBACK_DELAY_SECONDS", 30)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.StorageDriver {
	case "filesystem", "gcs", "minio":
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.StorageDriver == "gcs" && cfg.GCSBucket == "" {
		return nil, fmt.Errorf("GCS_BUCKET is required when STORAGE_DRIVER=gcs")
	}

	return cfg, nil
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fmt.Sprintf("worker-%d", os.Getpid())
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
