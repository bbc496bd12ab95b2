// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, crisis thresholds, alert
// dispatch policy, rate limiting, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "wellness-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// CrisisConfig defines the detector thresholds.
type CrisisConfig struct {
	Window        int     // CRISIS_WINDOW: entries evaluated per determination
	MeanThreshold float64 // CRISIS_MEAN_THRESHOLD: trigger when mean <= this
	DeclineSlope  float64 // CRISIS_DECLINE_SLOPE: rapid-decline facet bound (negative)
	LowCeiling    int     // CRISIS_LOW_CEILING: consistent-low facet ceiling
}

// DispatchConfig defines the alert delivery retry policy and gateway.
type DispatchConfig struct {
	WebhookEndpoint string        // DISPATCH_WEBHOOK_ENDPOINT: notification gateway URL
	MaxAttempts     int           // DISPATCH_MAX_ATTEMPTS: total attempts per dispatch
	BaseDelay       time.Duration // DISPATCH_BASE_DELAY: first backoff delay
	MaxDelay        time.Duration // DISPATCH_MAX_DELAY: backoff ceiling
	JitterFactor    float64       // DISPATCH_JITTER: backoff jitter in [0,1)
	AttemptTimeout  time.Duration // DISPATCH_ATTEMPT_TIMEOUT: per-attempt deadline
}

// RedisConfig defines the optional engagement-score cache. An empty Addr
// disables caching entirely.
type RedisConfig struct {
	Addr     string        // REDIS_ADDR (e.g. "localhost:6379"); empty = disabled
	Password string        // REDIS_PASSWORD
	DB       int           // REDIS_DB
	ScoreTTL time.Duration // SCORE_CACHE_TTL
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
	DBPath string // SQLite path

	// Domain
	Crisis   CrisisConfig
	Dispatch DispatchConfig
	Redis    RedisConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

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
		DBPath: getenv("DB_PATH", "app.db"),

		// Crisis detection
		Crisis: CrisisConfig{
			Window:        getint("CRISIS_WINDOW", 3),
			MeanThreshold: getfloat("CRISIS_MEAN_THRESHOLD", 3.0),
			DeclineSlope:  getfloat("CRISIS_DECLINE_SLOPE", -2.0),
			LowCeiling:    getint("CRISIS_LOW_CEILING", 4),
		},

		// Alert dispatch
		Dispatch: DispatchConfig{
			WebhookEndpoint: getenv("DISPATCH_WEBHOOK_ENDPOINT", ""),
			MaxAttempts:     getint("DISPATCH_MAX_ATTEMPTS", 5),
			BaseDelay:       getdur("DISPATCH_BASE_DELAY", 2*time.Second),
			MaxDelay:        getdur("DISPATCH_MAX_DELAY", 2*time.Minute),
			JitterFactor:    getfloat("DISPATCH_JITTER", 0.2),
			AttemptTimeout:  getdur("DISPATCH_ATTEMPT_TIMEOUT", 10*time.Second),
		},

		// Score cache
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
			ScoreTTL: getdur("SCORE_CACHE_TTL", time.Minute),
		},

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

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "wellness-backend"),
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
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Crisis.Window < 1 {
		return cfg, errors.New("CRISIS_WINDOW must be >= 1")
	}
	if cfg.Crisis.MeanThreshold < 1 || cfg.Crisis.MeanThreshold > 10 {
		return cfg, errors.New("CRISIS_MEAN_THRESHOLD must be within the 1-10 mood scale")
	}
	if cfg.Crisis.DeclineSlope >= 0 {
		return cfg, errors.New("CRISIS_DECLINE_SLOPE must be negative")
	}
	if cfg.Crisis.LowCeiling < 1 || cfg.Crisis.LowCeiling > 10 {
		return cfg, errors.New("CRISIS_LOW_CEILING must be within the 1-10 mood scale")
	}
	if cfg.Dispatch.MaxAttempts < 1 {
		return cfg, errors.New("DISPATCH_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Dispatch.BaseDelay <= 0 || cfg.Dispatch.MaxDelay < cfg.Dispatch.BaseDelay {
		return cfg, errors.New("DISPATCH_BASE_DELAY must be > 0 and <= DISPATCH_MAX_DELAY")
	}
	if cfg.Dispatch.JitterFactor < 0 || cfg.Dispatch.JitterFactor >= 1 {
		return cfg, errors.New("DISPATCH_JITTER must be in [0,1)")
	}
	if cfg.Dispatch.AttemptTimeout <= 0 {
		return cfg, errors.New("DISPATCH_ATTEMPT_TIMEOUT must be > 0")
	}
	if cfg.Redis.ScoreTTL <= 0 {
		return cfg, errors.New("SCORE_CACHE_TTL must be > 0")
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
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
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
