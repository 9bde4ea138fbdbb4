package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/dayplan/internal/models"
	"gopkg.in/yaml.v3"
)

// Authentication modes
const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

// Config holds application configuration
type Config struct {
	DatabaseURL           string   `yaml:"database_url"`
	ServerPort            string   `yaml:"server_port"`
	FrontendURL           string   `yaml:"frontend_url"`
	CORSAllowedOrigins    []string `yaml:"cors_allowed_origins"`
	RedisURL              string   `yaml:"redis_url"`
	RabbitMQURL           string   `yaml:"rabbitmq_url"`
	RabbitMQPrefetch      int      `yaml:"rabbitmq_prefetch"`
	WorkerDebugMode       bool     `yaml:"worker_debug_mode"`
	ServerDebugMode       bool     `yaml:"server_debug_mode"`
	EnableHSTS            bool     `yaml:"enable_hsts"`
	LogFormat             string   `yaml:"log_format"`
	OTELEnabled           bool     `yaml:"otel_enabled"`
	OTELEndpoint          string   `yaml:"otel_endpoint"`
	AuthMode              string   `yaml:"auth_mode"`
	JWKSURL               string   `yaml:"jwks_url"`
	JWTIssuer             string   `yaml:"jwt_issuer"`
	JWTAudience           string   `yaml:"jwt_audience"`
	RateLimit             string   `yaml:"rate_limit"`
	DefaultPlanVisibility string   `yaml:"default_plan_visibility"`
	PlannerTimezone       string   `yaml:"planner_timezone"`
	PrefetchDedupeTTL     int      `yaml:"prefetch_dedupe_ttl"` // seconds
	MaxRangeDays          int      `yaml:"max_range_days"`

	location *time.Location
}

// Load loads configuration from an optional YAML file named by CONFIG_FILE,
// then from environment variables, which take precedence
func Load() (*Config, error) {
	return load(os.Getenv)
}

func defaults() *Config {
	return &Config{
		ServerPort:            "8080",
		FrontendURL:           "http://localhost:3000",
		RedisURL:              "redis://localhost:6379/0",
		RabbitMQPrefetch:      1,
		LogFormat:             "json",
		AuthMode:              AuthModeJWT,
		RateLimit:             "20-S",
		DefaultPlanVisibility: string(models.VisibilityPrivate),
		PlannerTimezone:       "UTC",
		PrefetchDedupeTTL:     30,
		MaxRangeDays:          62,
	}
}

func load(getenv func(string) string) (*Config, error) {
	cfg := defaults()
	env := envSource{getenv: getenv}

	if path := env.getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.DatabaseURL = env.getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.ServerPort = env.getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.FrontendURL = env.getEnv("FRONTEND_URL", cfg.FrontendURL)
	cfg.CORSAllowedOrigins = env.getEnvList("CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)
	cfg.RedisURL = env.getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RabbitMQURL = env.getEnv("RABBITMQ_URL", cfg.RabbitMQURL)
	cfg.RabbitMQPrefetch = env.getEnvInt("RABBITMQ_PREFETCH", cfg.RabbitMQPrefetch)
	cfg.WorkerDebugMode = env.getEnvBool("WORKER_DEBUG_MODE", cfg.WorkerDebugMode)
	cfg.ServerDebugMode = env.getEnvBool("SERVER_DEBUG_MODE", cfg.ServerDebugMode)
	cfg.EnableHSTS = env.getEnvBool("ENABLE_HSTS", cfg.EnableHSTS)
	cfg.LogFormat = env.getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.OTELEnabled = env.getEnvBool("OTEL_ENABLED", cfg.OTELEnabled)
	cfg.OTELEndpoint = env.getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTELEndpoint)
	cfg.AuthMode = env.getEnv("AUTH_MODE", cfg.AuthMode)
	cfg.JWKSURL = env.getEnv("JWKS_URL", cfg.JWKSURL)
	cfg.JWTIssuer = env.getEnv("JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTAudience = env.getEnv("JWT_AUDIENCE", cfg.JWTAudience)
	cfg.RateLimit = env.getEnv("RATE_LIMIT", cfg.RateLimit)
	cfg.DefaultPlanVisibility = env.getEnv("DEFAULT_PLAN_VISIBILITY", cfg.DefaultPlanVisibility)
	cfg.PlannerTimezone = env.getEnv("PLANNER_TIMEZONE", cfg.PlannerTimezone)
	cfg.PrefetchDedupeTTL = env.getEnvInt("PREFETCH_DEDUPE_TTL", cfg.PrefetchDedupeTTL)
	cfg.MaxRangeDays = env.getEnvInt("MAX_RANGE_DAYS", cfg.MaxRangeDays)

	if len(cfg.CORSAllowedOrigins) == 0 && cfg.FrontendURL != "" {
		cfg.CORSAllowedOrigins = []string{cfg.FrontendURL}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.AuthMode {
	case AuthModeJWT:
		if c.JWKSURL == "" {
			return fmt.Errorf("JWKS_URL is required when AUTH_MODE is %q", AuthModeJWT)
		}
	case AuthModeHeader:
	default:
		return fmt.Errorf("invalid AUTH_MODE: %s (must be %q or %q)", c.AuthMode, AuthModeJWT, AuthModeHeader)
	}

	if _, err := models.ParseVisibility(c.DefaultPlanVisibility); err != nil {
		return fmt.Errorf("invalid DEFAULT_PLAN_VISIBILITY: %w", err)
	}

	loc, err := time.LoadLocation(c.PlannerTimezone)
	if err != nil {
		return fmt.Errorf("invalid PLANNER_TIMEZONE %q: %w", c.PlannerTimezone, err)
	}
	c.location = loc

	if c.MaxRangeDays < 0 {
		return fmt.Errorf("MAX_RANGE_DAYS must not be negative")
	}
	if c.PrefetchDedupeTTL < 0 {
		return fmt.Errorf("PREFETCH_DEDUPE_TTL must not be negative")
	}
	return nil
}

// RequireQueue reports an error when no RabbitMQ URL is configured
func (c *Config) RequireQueue() error {
	if c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required for prefetch job queueing")
	}
	return nil
}

// Location returns the planner time zone
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Visibility returns the default visibility for newly created plans
func (c *Config) Visibility() models.Visibility {
	return models.Visibility(c.DefaultPlanVisibility)
}

// DedupeTTL returns how long identical prefetch requests are suppressed
func (c *Config) DedupeTTL() time.Duration {
	return time.Duration(c.PrefetchDedupeTTL) * time.Second
}

type envSource struct {
	getenv func(string) string
}

func (e envSource) getEnv(key, defaultValue string) string {
	if value := e.getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e envSource) getEnvBool(key string, defaultValue bool) bool {
	if value := e.getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (e envSource) getEnvInt(key string, defaultValue int) int {
	if value := e.getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (e envSource) getEnvList(key string, defaultValue []string) []string {
	if value := e.getenv(key); value != "" {
		return splitList(value)
	}
	return defaultValue
}

// splitList splits a comma-separated list, trimming blanks and duplicates
func splitList(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		s := strings.TrimSpace(part)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
