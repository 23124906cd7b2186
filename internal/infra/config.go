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
	AppEnv string
	Port   string

	// Persistence is optional: without DATABASE_URL the service runs with an
	// in-memory cost ledger and no job history.
	DatabaseURL string

	RedisAddr       string
	RateLimitPerMin int

	// Empty secret disables embed-token auth (local development).
	EmbedTokenSecret string
	CORSOrigins      []string

	StoragePath    string
	StorageBaseURL string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3PathStyle    bool

	// Structured try-on capability (person + garment, no free text).
	TryOnBaseURL      string
	TryOnTokenURL     string
	TryOnClientID     string
	TryOnClientSecret string

	// General prompt-driven image-to-image capability.
	EditAPIKey  string
	EditBaseURL string
	EditModel   string

	// Multi-image generative compositing capability (quota constrained).
	CompositeAPIKey  string
	CompositeBaseURL string
	CompositeModel   string

	// Minimum spacing between consecutive composite dispatches.
	DispatchMinInterval time.Duration

	// Instruction enhancer (optional LLM assist).
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	WatermarkServiceURL string
	WatermarkLogoURL    string
	WatermarkPosition   string
	WatermarkOpacity    float64
	LegalNotice         string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	ProviderTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		EmbedTokenSecret: os.Getenv("EMBED_TOKEN_SECRET"),
		CORSOrigins:      splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3PathStyle:    getEnvBool("S3_PATH_STYLE", false),

		TryOnBaseURL:      getEnv("TRYON_BASE_URL", "https://api.fashn.ai/v1"),
		TryOnTokenURL:     os.Getenv("TRYON_TOKEN_URL"),
		TryOnClientID:     os.Getenv("TRYON_CLIENT_ID"),
		TryOnClientSecret: os.Getenv("TRYON_CLIENT_SECRET"),

		EditAPIKey:  os.Getenv("EDIT_API_KEY"),
		EditBaseURL: getEnv("EDIT_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		EditModel:   getEnv("EDIT_MODEL", "qwen-image-edit"),

		CompositeAPIKey:  os.Getenv("COMPOSITE_API_KEY"),
		CompositeBaseURL: getEnv("COMPOSITE_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		CompositeModel:   getEnv("COMPOSITE_MODEL", "gemini-2.5-flash-image"),

		DispatchMinInterval: time.Millisecond * time.Duration(getEnvInt("DISPATCH_MIN_INTERVAL_MS", 6000)),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		WatermarkServiceURL: os.Getenv("WATERMARK_SERVICE_URL"),
		WatermarkLogoURL:    os.Getenv("WATERMARK_LOGO_URL"),
		WatermarkPosition:   getEnv("WATERMARK_POSITION", "bottom-right"),
		WatermarkOpacity:    getEnvFloat("WATERMARK_OPACITY", 0.85),
		LegalNotice:         os.Getenv("WATERMARK_LEGAL_NOTICE"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		ProviderTimeout:  time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 90)),
	}

	if cfg.DispatchMinInterval <= 0 {
		return nil, fmt.Errorf("DISPATCH_MIN_INTERVAL_MS must be positive")
	}
	if cfg.WatermarkOpacity < 0 || cfg.WatermarkOpacity > 1 {
		return nil, fmt.Errorf("WATERMARK_OPACITY must be within [0,1]")
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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
