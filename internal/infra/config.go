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
	AppEnv         string
	Port           string
	DatabaseURL    string
	JWTSecret      string
	StoragePath    string
	StorageBaseURL string

	FalAPIKey     string
	FalBaseURL    string
	FalModel      string
	FalSimulation bool

	CreditLimit     int
	CreditFilePath  string
	PollInterval    time.Duration
	PollConcurrency int
	JobTimeout      time.Duration
	MaxImageBytes   int64

	SubmitTimeout   time.Duration
	DownloadTimeout time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: os.Getenv("STORAGE_BASE_URL"),

		FalAPIKey:     os.Getenv("FAL_API_KEY"),
		FalBaseURL:    getEnv("FAL_BASE_URL", "https://queue.fal.run"),
		FalModel:      getEnv("FAL_MODEL", "fal-ai/stable-video-diffusion"),
		FalSimulation: getEnvBool("FAL_SIMULATION", false),

		CreditLimit:     getEnvInt("VIDEO_CREDIT_LIMIT", 5),
		CreditFilePath:  os.Getenv("VIDEO_CREDIT_FILE"),
		PollInterval:    time.Second * time.Duration(getEnvInt("VIDEO_POLL_INTERVAL_SECONDS", 10)),
		PollConcurrency: getEnvInt("VIDEO_POLL_CONCURRENCY", 4),
		JobTimeout:      time.Minute * time.Duration(getEnvInt("VIDEO_JOB_TIMEOUT_MINUTES", 10)),
		MaxImageBytes:   int64(getEnvInt("MAX_IMAGE_MEGABYTES", 10)) * 1024 * 1024,

		SubmitTimeout:   time.Second * time.Duration(getEnvInt("FAL_REQUEST_TIMEOUT_SECONDS", 30)),
		DownloadTimeout: time.Second * time.Duration(getEnvInt("FAL_DOWNLOAD_TIMEOUT_SECONDS", 60)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
	}

	if cfg.StorageBaseURL == "" {
		cfg.StorageBaseURL = fmt.Sprintf("http://localhost:%s/static", cfg.Port)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
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

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
