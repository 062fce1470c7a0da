// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database, Telegram, completion provider,
// queue and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-companion-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and addresses the primary store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite path
	DSN    string // DATABASE_URL for postgres
}

// TelegramConfig holds Bot API credentials and webhook protection.
type TelegramConfig struct {
	BotToken       string        // TELEGRAM_BOT_KEY
	APIEndpoint    string        // TELEGRAM_API_ENDPOINT, "%s" placeholders for token and method
	WebhookSecret  string        // TELEGRAM_WEBHOOK_SECRET
	InitDataMaxAge time.Duration // TELEGRAM_INITDATA_MAX_AGE
	UpdateTTL      time.Duration // how long a processed update_id is remembered
}

// DefaultModelsLabEndpoint is used when COMPLETION_PROVIDER=modelslab and no
// endpoint is configured.
const DefaultModelsLabEndpoint = "https://modelslab.com/api/v5/uncensored_chat"

// CompletionConfig selects the hosted completion provider.
type CompletionConfig struct {
	Provider  string // modelslab|openai
	Endpoint  string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// QueueConfig controls the reply job queue and its workers.
type QueueConfig struct {
	Name           string
	Concurrency    int
	MaxAttempts    int
	Backoff        time.Duration // first retry delay, doubled per attempt
	FailedKeep     int
	EmbeddedWorker bool   // run workers inside the serve process
	RedisURL       string // empty selects the in-process broker
}

// ConversationConfig controls history loading, stickiness and the fallback
// context used when the primary store is unreachable.
type ConversationConfig struct {
	HistoryLimit     int
	StickyWindow     time.Duration
	FallbackBackend  string // memory|redis
	FallbackCapacity int
	FallbackIdleTTL  time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DB                DBConfig
	Telegram          TelegramConfig
	Completion        CompletionConfig
	Queue             QueueConfig
	Conversation      ConversationConfig
	CompanionCacheTTL time.Duration
	AdminToken        string // guards catalog seeding over HTTP; empty disables it

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "app.db"),
			DSN:    getenv("DATABASE_URL", ""),
		},
		Telegram: TelegramConfig{
			BotToken:       getenv("TELEGRAM_BOT_KEY", ""),
			APIEndpoint:    getenv("TELEGRAM_API_ENDPOINT", ""),
			WebhookSecret:  getenv("TELEGRAM_WEBHOOK_SECRET", ""),
			InitDataMaxAge: getdur("TELEGRAM_INITDATA_MAX_AGE", 24*time.Hour),
			UpdateTTL:      getdur("TELEGRAM_UPDATE_TTL", 24*time.Hour),
		},
		Completion: CompletionConfig{
			Provider:  strings.ToLower(getenv("COMPLETION_PROVIDER", "modelslab")),
			Endpoint:  getenv("COMPLETION_ENDPOINT", ""),
			APIKey:    getenv("COMPLETION_API_KEY", ""),
			Model:     getenv("COMPLETION_MODEL", "mistralai-Mistral-7B-Instruct-v0.3"),
			MaxTokens: getint("COMPLETION_MAX_TOKENS", 1000),
			Timeout:   getdur("COMPLETION_TIMEOUT", 30*time.Second),
		},
		Queue: QueueConfig{
			Name:           getenv("QUEUE_NAME", "ai-response"),
			Concurrency:    getint("QUEUE_CONCURRENCY", 3),
			MaxAttempts:    getint("QUEUE_MAX_ATTEMPTS", 3),
			Backoff:        getdur("QUEUE_BACKOFF", 2*time.Second),
			FailedKeep:     getint("QUEUE_FAILED_KEEP", 50),
			EmbeddedWorker: getbool("QUEUE_EMBEDDED_WORKER", true),
			RedisURL:       getenv("REDIS_URL", ""),
		},
		Conversation: ConversationConfig{
			HistoryLimit:     getint("HISTORY_LIMIT", 15),
			StickyWindow:     getdur("STICKY_WINDOW", 5*time.Minute),
			FallbackBackend:  strings.ToLower(getenv("FALLBACK_BACKEND", "memory")),
			FallbackCapacity: getint("FALLBACK_CAPACITY", 50),
			FallbackIdleTTL:  getdur("FALLBACK_IDLE_TTL", 24*time.Hour),
		},
		CompanionCacheTTL: getdur("COMPANION_CACHE_TTL", time.Minute),
		AdminToken:        getenv("ADMIN_TOKEN", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-companion-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Completion.Endpoint == "" && cfg.Completion.Provider == "modelslab" {
		cfg.Completion.Endpoint = DefaultModelsLabEndpoint
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Telegram.InitDataMaxAge < 0 {
		return cfg, errors.New("TELEGRAM_INITDATA_MAX_AGE must be >= 0")
	}
	if cfg.Telegram.UpdateTTL <= 0 {
		return cfg, errors.New("TELEGRAM_UPDATE_TTL must be > 0")
	}
	switch cfg.Completion.Provider {
	case "modelslab", "openai":
	default:
		return cfg, errors.New("COMPLETION_PROVIDER must be one of: modelslab, openai")
	}
	if strings.TrimSpace(cfg.Completion.Model) == "" {
		return cfg, errors.New("COMPLETION_MODEL must not be empty")
	}
	if cfg.Completion.MaxTokens <= 0 {
		return cfg, errors.New("COMPLETION_MAX_TOKENS must be > 0")
	}
	if cfg.Completion.Timeout <= 0 {
		return cfg, errors.New("COMPLETION_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Queue.Name) == "" {
		return cfg, errors.New("QUEUE_NAME must not be empty")
	}
	if cfg.Queue.Concurrency < 1 {
		return cfg, errors.New("QUEUE_CONCURRENCY must be >= 1")
	}
	if cfg.Queue.MaxAttempts < 1 {
		return cfg, errors.New("QUEUE_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Queue.Backoff <= 0 {
		return cfg, errors.New("QUEUE_BACKOFF must be > 0")
	}
	if cfg.Queue.FailedKeep < 1 {
		return cfg, errors.New("QUEUE_FAILED_KEEP must be >= 1")
	}
	if cfg.Conversation.HistoryLimit < 0 {
		return cfg, errors.New("HISTORY_LIMIT must be >= 0")
	}
	if cfg.Conversation.StickyWindow <= 0 {
		return cfg, errors.New("STICKY_WINDOW must be > 0")
	}
	switch cfg.Conversation.FallbackBackend {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.Queue.RedisURL) == "" {
			return cfg, errors.New("REDIS_URL is required when FALLBACK_BACKEND=redis")
		}
	default:
		return cfg, errors.New("FALLBACK_BACKEND must be one of: memory, redis")
	}
	if cfg.Conversation.FallbackCapacity < 1 {
		return cfg, errors.New("FALLBACK_CAPACITY must be >= 1")
	}
	if cfg.Conversation.FallbackIdleTTL <= 0 {
		return cfg, errors.New("FALLBACK_IDLE_TTL must be > 0")
	}
	if cfg.CompanionCacheTTL < 0 {
		return cfg, errors.New("COMPANION_CACHE_TTL must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
