package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every key Load reads so the host environment can't leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ENVIRONMENT", "SUPABASE_URL", "SUPABASE_KEY", "SUPABASE_DB_URL",
		"CORS_ORIGINS", "TABLE_PREFIX", "REDIS_URL", "SESSION_BACKEND", "JWT_SECRET",
		"ROUTES_FILE", "ROLE_RESOLVE_TIMEOUT", "ROLE_CACHE_TTL", "SSE_KEEPALIVE",
		"LOG_DIR", "LOG_MAX_FILES", "MEMORY_ROLES",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_MemoryBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("ROLE_RESOLVE_TIMEOUT", "250ms")
	t.Setenv("ENVIRONMENT", "test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.SessionBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.RoleResolveTimeout)
	assert.Equal(t, 5*time.Minute, cfg.RoleCacheTTL)
	assert.Equal(t, 10*time.Second, cfg.SSEKeepAlive)
	assert.Equal(t, "test_", cfg.TablePrefix)
	assert.Empty(t, cfg.SupabaseJWKSURL)
	assert.False(t, cfg.IsDev())
}

func TestLoad_SupabaseBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co/")
	t.Setenv("SUPABASE_DB_URL", "postgres://localhost:5432/postgres")
	t.Setenv("TABLE_PREFIX", "ci_")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendSupabase, cfg.SessionBackend)
	assert.Equal(t, "https://abc.supabase.co/auth/v1/.well-known/jwks.json", cfg.SupabaseJWKSURL)
	assert.Equal(t, "ci_", cfg.TablePrefix)
	assert.True(t, cfg.IsDev())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"supabase without db", map[string]string{"SUPABASE_URL": "https://abc.supabase.co"}},
		{"supabase without url or secret", map[string]string{"SUPABASE_DB_URL": "postgres://x"}},
		{"memory without secret", map[string]string{"SESSION_BACKEND": "memory"}},
		{"unknown backend", map[string]string{"SESSION_BACKEND": "ldap", "JWT_SECRET": "s"}},
		{"bad duration", map[string]string{"SESSION_BACKEND": "memory", "JWT_SECRET": "s", "ROLE_CACHE_TTL": "soon"}},
		{"zero timeout", map[string]string{"SESSION_BACKEND": "memory", "JWT_SECRET": "s", "ROLE_RESOLVE_TIMEOUT": "0s"}},
		{"bad port", map[string]string{"SESSION_BACKEND": "memory", "JWT_SECRET": "s", "PORT": "http"}},
		{"bad environment", map[string]string{"SESSION_BACKEND": "memory", "JWT_SECRET": "s", "ENVIRONMENT": "staging"}},
		{"bad max files", map[string]string{"SESSION_BACKEND": "memory", "JWT_SECRET": "s", "LOG_MAX_FILES": "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSetupLogFile_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 4; i++ {
		name := filepath.Join(dir, fmt.Sprintf("prophub-2024-01-0%dT00-00-00.000.log", i+1))
		require.NoError(t, os.WriteFile(name, nil, 0o600))
	}

	f, err := SetupLogFile(dir, 2)
	require.NoError(t, err)
	defer f.Close()

	files, err := filepath.Glob(filepath.Join(dir, "prophub-*.log"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Contains(t, files, f.Name())
}

func TestNewLogger_WritesToLogDir(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := NewLogger(&Config{Environment: "prod", LogDir: dir, LogMaxFiles: 3})
	require.NoError(t, err)

	logger.Info("hello", "k", "v")
	require.NoError(t, closer.Close())

	files, err := filepath.Glob(filepath.Join(dir, "prophub-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
