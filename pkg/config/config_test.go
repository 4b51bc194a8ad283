package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// chdirTemp moves into an empty directory so a developer's .env is not
// picked up by LoadConfig.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func validConfig() *Config {
	cfg := Default()
	cfg.Auth.JWTSecret = testSecret
	cfg.Storage.Postgres.URL = "postgres://localhost/thoughtnest?sslmode=disable"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 30*time.Minute, cfg.Auth.ResetTokenTTL)
	assert.Equal(t, ObjectStoreNone, cfg.Storage.ObjectStore.Backend)
}

func TestLoadConfig_Env(t *testing.T) {
	chdirTemp(t)
	t.Setenv("THOUGHTNEST_JWT_SECRET", testSecret)
	t.Setenv("THOUGHTNEST_POSTGRES_URL", "postgres://db/thoughtnest")
	t.Setenv("THOUGHTNEST_PORT", "8181")
	t.Setenv("THOUGHTNEST_SESSION_TTL", "2h")
	t.Setenv("THOUGHTNEST_RATE_LIMIT_ENABLED", "false")
	t.Setenv("THOUGHTNEST_RATE_LIMIT_TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")
	t.Setenv("THOUGHTNEST_CORS_ALLOWED_ORIGINS", "https://a.test, ,https://b.test")
	t.Setenv("THOUGHTNEST_OBJECT_STORE", "MINIO")
	t.Setenv("THOUGHTNEST_S3_ENDPOINT", "localhost:9000")
	t.Setenv("THOUGHTNEST_S3_BUCKET", "images")

	cfg, err := LoadConfig(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.RateLimit.TrustedProxies)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, ObjectStoreMinio, cfg.Storage.ObjectStore.Backend)
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "thoughtnest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7070"
  read_timeout: 5s
auth:
  jwt_secret: "`+testSecret+`"
storage:
  postgres:
    url: postgres://yaml/thoughtnest
mail:
  host: smtp.yaml.test
`), 0o600))

	t.Setenv("THOUGHTNEST_SMTP_HOST", "smtp.env.test")

	cfg, err := LoadConfig(LoadOptions{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres://yaml/thoughtnest", cfg.Storage.Postgres.URL)
	assert.Equal(t, "smtp.env.test", cfg.Mail.Host, "environment overrides the file")
	assert.Equal(t, "9090", cfg.Server.HealthPort, "unset keys keep defaults")
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"THOUGHTNEST_JWT_SECRET="+testSecret+"\nTHOUGHTNEST_POSTGRES_URL=postgres://dotenv/db\n",
	), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("THOUGHTNEST_JWT_SECRET")
		os.Unsetenv("THOUGHTNEST_POSTGRES_URL")
	})

	cfg, err := LoadConfig(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "postgres://dotenv/db", cfg.Storage.Postgres.URL)
}

func TestLoadConfig_MissingExplicitFiles(t *testing.T) {
	chdirTemp(t)

	_, err := LoadConfig(LoadOptions{EnvFile: "missing.env"})
	assert.Error(t, err)

	_, err = LoadConfig(LoadOptions{ConfigFile: "missing.yaml"})
	assert.Error(t, err)
}

func TestLoadConfig_ValidationFails(t *testing.T) {
	chdirTemp(t)
	t.Setenv("THOUGHTNEST_JWT_SECRET", "")
	t.Setenv("THOUGHTNEST_POSTGRES_URL", "")
	_, err := LoadConfig(LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret")
	assert.Contains(t, err.Error(), "postgres URL")
}

func TestLoadJobConfig(t *testing.T) {
	chdirTemp(t)
	t.Setenv("THOUGHTNEST_JWT_SECRET", "")
	t.Setenv("THOUGHTNEST_POSTGRES_URL", "")

	_, err := LoadJobConfig(LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres URL")

	t.Setenv("THOUGHTNEST_POSTGRES_URL", "postgres://db/thoughtnest")
	cfg, err := LoadJobConfig(LoadOptions{})
	require.NoError(t, err, "jobs do not need a jwt secret")
	assert.Equal(t, "postgres://db/thoughtnest", cfg.Storage.Postgres.URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt secret"},
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"zero session ttl", func(c *Config) { c.Auth.SessionTTL = 0 }, "session ttl"},
		{"negative reset ttl", func(c *Config) { c.Auth.ResetTokenTTL = -time.Minute }, "reset token ttl"},
		{"s3 without bucket", func(c *Config) { c.Storage.ObjectStore.Backend = ObjectStoreS3 }, "bucket is required"},
		{"minio without endpoint", func(c *Config) {
			c.Storage.ObjectStore.Backend = ObjectStoreMinio
			c.Storage.ObjectStore.Bucket = "images"
		}, "endpoint is required"},
		{"unknown backend", func(c *Config) { c.Storage.ObjectStore.Backend = "ftp" }, "invalid object store backend"},
		{"bad rate limit", func(c *Config) { c.RateLimit.Requests = 0 }, "rate limit"},
		{"trusted proxies", func(c *Config) { c.RateLimit.TrustedProxies = []string{"10.0.0.0/8", "192.168.1.5", "::1"} }, ""},
		{"mail budget outlives write timeout", func(c *Config) {
			c.Server.WriteTimeout = 30 * time.Second
			c.Mail.SendBudget = 30 * time.Second
		}, "send budget"},
		{"negative mail budget", func(c *Config) { c.Mail.SendBudget = -time.Second }, "send budget"},
		{"bad trusted proxy", func(c *Config) { c.RateLimit.TrustedProxies = []string{"proxy.internal"} }, "trusted proxy"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTel.Enabled = true
			c.Observability.OTel.Endpoint = ""
		}, "OpenTelemetry endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("THOUGHTNEST_TEST_INT", "12")
	t.Setenv("THOUGHTNEST_TEST_BAD_INT", "twelve")
	t.Setenv("THOUGHTNEST_TEST_BOOL", "1")
	t.Setenv("THOUGHTNEST_TEST_DURATION", "90s")
	t.Setenv("THOUGHTNEST_TEST_FLOAT", "0.25")

	assert.Equal(t, 12, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", 0))
	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
	assert.Equal(t, "fallback", getEnv("TEST_UNSET", "fallback"))
	assert.Equal(t, []string{"x"}, getEnvList("TEST_UNSET", []string{"x"}))
}
