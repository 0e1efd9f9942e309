package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Session backends
const (
	BackendSupabase = "supabase"
	BackendMemory   = "memory"
)

type Config struct {
	Port            string
	Environment     string
	SupabaseURL     string
	SupabaseKey     string
	SupabaseDBURL   string
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json
	CORSOrigins     string
	TablePrefix     string
	RedisURL        string
	// Session and access
	SessionBackend     string
	JWTSecret          string // HS256 secret; when set it replaces JWKS verification
	RoutesFile         string // empty uses the embedded policy
	RoleResolveTimeout time.Duration
	RoleCacheTTL       time.Duration
	SSEKeepAlive       time.Duration
	MemoryRoles        string // uid=tag,... seeds for the memory backend
	// Logging
	LogDir      string
	LogMaxFiles int
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", "dev")
	supabaseURL := strings.TrimRight(getEnv("SUPABASE_URL", ""), "/")

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    env,
		SupabaseURL:    supabaseURL,
		SupabaseKey:    getEnv("SUPABASE_KEY", ""),
		SupabaseDBURL:  getEnv("SUPABASE_DB_URL", ""),
		CORSOrigins:    getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:    getTablePrefix(env),
		RedisURL:       getEnv("REDIS_URL", ""),
		SessionBackend: getEnv("SESSION_BACKEND", BackendSupabase),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		RoutesFile:     getEnv("ROUTES_FILE", ""),
		MemoryRoles:    getEnv("MEMORY_ROLES", ""),
		LogDir:         getEnv("LOG_DIR", ""),
	}
	if supabaseURL != "" {
		cfg.SupabaseJWKSURL = supabaseURL + "/auth/v1/.well-known/jwks.json"
	}

	var err error
	if cfg.RoleResolveTimeout, err = getDuration("ROLE_RESOLVE_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.RoleCacheTTL, err = getDuration("ROLE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SSEKeepAlive, err = getDuration("SSE_KEEPALIVE", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.LogMaxFiles, err = getInt("LOG_MAX_FILES", 5); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the selected backend depends on
func (c *Config) Validate() error {
	supabase := c.SessionBackend == BackendSupabase
	memory := c.SessionBackend == BackendMemory

	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, is.Port),
		validation.Field(&c.Environment, validation.In("dev", "test", "prod")),
		validation.Field(&c.SessionBackend, validation.Required, validation.In(BackendSupabase, BackendMemory)),
		validation.Field(&c.SupabaseURL, validation.When(supabase && c.JWTSecret == "", validation.Required), is.URL),
		validation.Field(&c.SupabaseDBURL, validation.When(supabase, validation.Required)),
		validation.Field(&c.JWTSecret, validation.When(memory, validation.Required)),
		validation.Field(&c.RoleResolveTimeout, validation.Min(time.Millisecond)),
		validation.Field(&c.RoleCacheTTL, validation.Min(time.Second)),
		validation.Field(&c.SSEKeepAlive, validation.Min(time.Second)),
		validation.Field(&c.LogMaxFiles, validation.Min(1)),
	)
}

// IsDev reports whether debug logging and dev conveniences are on
func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
