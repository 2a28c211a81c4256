// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, quota limits, upstream
// AI/auth/billing credentials, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-subtext-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AIConfig defines the external AI provider settings (vision + text).
type AIConfig struct {
	APIKey      string        // GEMINI_API_KEY
	VisionModel string        // AI_VISION_MODEL
	TextModel   string        // AI_TEXT_MODEL
	Timeout     time.Duration // AI_TIMEOUT, per upstream call
}

// AuthConfig defines the delegated auth provider settings. JWTSecret is the
// HS256 secret the provider signs access tokens with; the backend only
// verifies, it never issues tokens itself.
type AuthConfig struct {
	BaseURL   string        // AUTH_API_URL
	APIKey    string        // AUTH_API_KEY
	JWTSecret string        // AUTH_JWT_SECRET
	Timeout   time.Duration // AUTH_TIMEOUT
}

// PayPalConfig defines billing provider settings. BaseURL overrides the
// mode-derived endpoint (used by tests); plan ids map approved provider
// plans to local tiers.
type PayPalConfig struct {
	ClientID      string        // PAYPAL_CLIENT_ID
	Secret        string        // PAYPAL_SECRET
	Mode          string        // PAYPAL_MODE: sandbox|live
	WebhookID     string        // PAYPAL_WEBHOOK_ID (empty skips signature checks)
	BaseURL       string        // PAYPAL_BASE_URL (optional override)
	PlanBasic     string        // PAYPAL_PLAN_BASIC
	PlanPremium   string        // PAYPAL_PLAN_PREMIUM
	PlanUnlimited string        // PAYPAL_PLAN_UNLIMITED
	Timeout       time.Duration // PAYPAL_TIMEOUT
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
	MaxUploadBytes    int64         // screenshot size cap, bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath string // SQLite path

	// Quota limiter (sliding window per identity)
	RateMaxRequests int           // accepted requests per window
	RateWindow      time.Duration // window length

	// Edge throttle (token bucket per client)
	ThrottleRPS   float64 // tokens per second (>= 0)
	ThrottleBurst int     // bucket size (>= 1)

	// Extraction cache
	CacheTTL        time.Duration // entries older than this read as absent
	CacheMaxEntries int           // FIFO capacity

	// Upstreams
	AI     AIConfig
	Auth   AuthConfig
	PayPal PayPalConfig

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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxUploadBytes:    getint64("MAX_UPLOAD_BYTES", 10<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// App
		DBPath: getenv("DB_PATH", "app.db"),

		// Quota limiter
		RateMaxRequests: getint("RATE_MAX_REQUESTS", 20),
		RateWindow:      getdur("RATE_WINDOW", time.Hour),

		// Edge throttle
		ThrottleRPS:   getfloat("THROTTLE_RPS", 5.0),
		ThrottleBurst: getint("THROTTLE_BURST", 10),

		// Extraction cache
		CacheTTL:        getdur("CACHE_TTL", time.Hour),
		CacheMaxEntries: getint("CACHE_MAX_ENTRIES", 100),

		// Upstreams
		AI: AIConfig{
			APIKey:      getenv("GEMINI_API_KEY", ""),
			VisionModel: getenv("AI_VISION_MODEL", "gemini-2.5-flash"),
			TextModel:   getenv("AI_TEXT_MODEL", "gemini-2.5-flash"),
			Timeout:     getdur("AI_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			BaseURL:   getenv("AUTH_API_URL", ""),
			APIKey:    getenv("AUTH_API_KEY", ""),
			JWTSecret: getenv("AUTH_JWT_SECRET", ""),
			Timeout:   getdur("AUTH_TIMEOUT", 15*time.Second),
		},
		PayPal: PayPalConfig{
			ClientID:      getenv("PAYPAL_CLIENT_ID", ""),
			Secret:        getenv("PAYPAL_SECRET", ""),
			Mode:          strings.ToLower(getenv("PAYPAL_MODE", "sandbox")),
			WebhookID:     getenv("PAYPAL_WEBHOOK_ID", ""),
			BaseURL:       getenv("PAYPAL_BASE_URL", ""),
			PlanBasic:     getenv("PAYPAL_PLAN_BASIC", ""),
			PlanPremium:   getenv("PAYPAL_PLAN_PREMIUM", ""),
			PlanUnlimited: getenv("PAYPAL_PLAN_UNLIMITED", ""),
			Timeout:       getdur("PAYPAL_TIMEOUT", 30*time.Second),
		},

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
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-subtext-backend"),
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
	if cfg.MaxUploadBytes <= 0 {
		return cfg, errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateMaxRequests < 1 {
		return cfg, errors.New("RATE_MAX_REQUESTS must be >= 1")
	}
	if cfg.RateWindow <= 0 {
		return cfg, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.ThrottleRPS < 0 {
		return cfg, errors.New("THROTTLE_RPS must be >= 0")
	}
	if cfg.ThrottleBurst < 1 {
		return cfg, errors.New("THROTTLE_BURST must be >= 1")
	}
	if cfg.CacheTTL <= 0 {
		return cfg, errors.New("CACHE_TTL must be > 0")
	}
	if cfg.CacheMaxEntries < 1 {
		return cfg, errors.New("CACHE_MAX_ENTRIES must be >= 1")
	}
	if cfg.AI.Timeout <= 0 || cfg.Auth.Timeout <= 0 || cfg.PayPal.Timeout <= 0 {
		return cfg, errors.New("upstream timeouts must be positive durations")
	}
	switch cfg.PayPal.Mode {
	case "sandbox", "live":
	default:
		return cfg, errors.New("PAYPAL_MODE must be sandbox or live")
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

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
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
