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
	DatabaseURL string
	JWTSecret   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GeoIPDBPath   string
	DefaultLocale string

	// External AI pipeline.
	GatewayBaseURL      string
	GatewayClientID     string
	GatewayClientSecret string
	GatewayTimeout      time.Duration

	// Polling coordinator.
	PollInterval     time.Duration
	PollBatchSize    int
	PollDebounce     time.Duration
	PollCallTimeout  time.Duration
	PollMaxFailures  int
	PollMaxNotFound  int
	PollMaxJobAge    time.Duration
	SubmitRetryAfter time.Duration

	// Credit ledger.
	CreditWindowDays      int
	CreditLimitFree       int
	CreditLimitsByPlan    map[string]int
	CreditCostListicle    int
	CreditCostAdvertorial int
	OveragePlans          map[string]bool

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),

		GatewayBaseURL:      getEnv("GATEWAY_BASE_URL", "https://pipeline.example.com/api"),
		GatewayClientID:     os.Getenv("GATEWAY_CLIENT_ID"),
		GatewayClientSecret: os.Getenv("GATEWAY_CLIENT_SECRET"),
		GatewayTimeout:      time.Second * time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 30)),

		PollInterval:     time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)),
		PollBatchSize:    getEnvInt("POLL_BATCH_SIZE", 10),
		PollDebounce:     time.Second * time.Duration(getEnvInt("POLL_DEBOUNCE_SECONDS", 3)),
		PollCallTimeout:  time.Second * time.Duration(getEnvInt("POLL_CALL_TIMEOUT_SECONDS", 15)),
		PollMaxFailures:  getEnvInt("POLL_MAX_CONSECUTIVE_FAILURES", 5),
		PollMaxNotFound:  getEnvInt("POLL_MAX_NOT_FOUND", 3),
		PollMaxJobAge:    time.Minute * time.Duration(getEnvInt("POLL_MAX_JOB_AGE_MINUTES", 30)),
		SubmitRetryAfter: time.Second * time.Duration(getEnvInt("SUBMIT_RETRY_AFTER_SECONDS", 60)),

		CreditWindowDays:      getEnvInt("CREDIT_WINDOW_DAYS", 30),
		CreditLimitFree:       getEnvInt("CREDIT_LIMIT_FREE", 30),
		CreditLimitsByPlan:    parsePlanLimits(os.Getenv("CREDIT_LIMITS_BY_PLAN")),
		CreditCostListicle:    getEnvInt("CREDIT_COST_LISTICLE", 10),
		CreditCostAdvertorial: getEnvInt("CREDIT_COST_ADVERTORIAL", 10),
		OveragePlans:          parsePlanSet(os.Getenv("CREDIT_OVERAGE_PLANS")),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// parsePlanLimits parses "starter:100,growth:500" into a per-plan limit map.
func parsePlanLimits(raw string) map[string]int {
	limits := map[string]int{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		limit, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil || limit < 0 {
			continue
		}
		limits[strings.TrimSpace(kv[0])] = limit
	}
	return limits
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parsePlanSet(raw string) map[string]bool {
	set := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			set[part] = true
		}
	}
	return set
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
