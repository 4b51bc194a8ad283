package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "THOUGHTNEST_"

// Object store backends.
const (
	ObjectStoreNone  = "none"
	ObjectStoreS3    = "s3"
	ObjectStoreMinio = "minio"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Storage       StorageConfig       `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
	Mail          MailConfig          `yaml:"mail"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Janitor       JanitorConfig       `yaml:"janitor"`
	CORS          CORSConfig          `yaml:"cors"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`

	// Health/metrics server (separate port for k8s health checks)
	HealthPort string `yaml:"health_port"`
}

// AuthConfig holds session and password reset settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTIssuer     string        `yaml:"jwt_issuer"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	ResetTokenTTL time.Duration `yaml:"reset_token_ttl"`
	BcryptCost    int           `yaml:"bcrypt_cost"`
	// ResetURL is the frontend page that receives ?token=.
	ResetURL string `yaml:"reset_url"`
}

// StorageConfig groups the persistence backends
type StorageConfig struct {
	Postgres    PostgresConfig    `yaml:"postgres"`
	Redis       RedisConfig       `yaml:"redis"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
}

// PostgresConfig holds database connection settings
type PostgresConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RedisConfig holds Redis settings. An empty URL disables Redis.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
}

// ObjectStoreConfig holds image storage settings
type ObjectStoreConfig struct {
	Backend      string `yaml:"backend"`
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
	UseSSL       bool   `yaml:"use_ssl"`
	// PublicBaseURL overrides the URL prefix returned for uploaded objects.
	PublicBaseURL string `yaml:"public_base_url"`
}

// CacheConfig holds published-article cache settings
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	L1Size  int           `yaml:"l1_size"`
	TTL     time.Duration `yaml:"ttl"`
}

// MailConfig holds SMTP settings. An empty Host logs mail instead of sending.
type MailConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	From           string        `yaml:"from"`
	AdminAddress   string        `yaml:"admin_address"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// SendBudget caps one send including retries. It must stay below the
	// server write timeout since forgot-password sends inline.
	SendBudget time.Duration `yaml:"send_budget"`
}

// RateLimitConfig limits anonymous auth and contact endpoints
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	// TrustedProxies are the IPs or CIDRs allowed to set X-Forwarded-For
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// JanitorConfig controls the expired reset token purge
type JanitorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// CORSConfig lists the frontend origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string     `yaml:"log_level"`
	MetricsEnabled bool       `yaml:"metrics_enabled"`
	OTel           OTelConfig `yaml:"otel"`
}

// OTelConfig holds OpenTelemetry exporter settings
type OTelConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Endpoint       string  `yaml:"endpoint"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	Insecure       bool    `yaml:"insecure"`
	SampleRatio    float64 `yaml:"sample_ratio"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			HealthPort:      "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			MaxUploadBytes:  10 << 20,
		},
		Auth: AuthConfig{
			JWTIssuer:     "thoughtnest",
			SessionTTL:    24 * time.Hour,
			ResetTokenTTL: 30 * time.Minute,
			BcryptCost:    10,
			ResetURL:      "http://localhost:5173/reset-password",
		},
		Storage: StorageConfig{
			Postgres: PostgresConfig{
				MaxOpenConns:    20,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
				ConnectTimeout:  10 * time.Second,
				AutoMigrate:     true,
			},
			Redis: RedisConfig{
				PoolSize:   10,
				MaxRetries: 3,
			},
			ObjectStore: ObjectStoreConfig{
				Backend: ObjectStoreNone,
				Region:  "us-east-1",
				UseSSL:  true,
			},
		},
		Cache: CacheConfig{
			Enabled: true,
			L1Size:  512,
			TTL:     5 * time.Minute,
		},
		Mail: MailConfig{
			Port:           587,
			From:           "ThoughtNest <no-reply@thoughtnest.local>",
			Timeout:        10 * time.Second,
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			SendBudget:     20 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 10,
			Window:   time.Minute,
		},
		Janitor: JanitorConfig{
			Enabled:  true,
			Schedule: "@every 15m",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
			OTel: OTelConfig{
				Endpoint:       "localhost:4317",
				ServiceName:    "thoughtnest",
				ServiceVersion: "dev",
				Insecure:       true,
				SampleRatio:    1,
			},
		},
	}
}

// LoadOptions selects the optional file layers. Empty fields fall back to
// THOUGHTNEST_CONFIG_FILE and THOUGHTNEST_ENV_FILE.
type LoadOptions struct {
	ConfigFile string
	EnvFile    string
}

// LoadConfig layers defaults, an optional YAML file, an optional .env file
// and THOUGHTNEST_* environment variables, then validates the result.
func LoadConfig(opts LoadOptions) (*Config, error) {
	cfg, err := load(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadJobConfig layers the same sources as LoadConfig but only requires the
// Postgres URL. The janitor and migration binaries use it.
func LoadJobConfig(opts LoadOptions) (*Config, error) {
	cfg, err := load(opts)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Postgres.URL == "" {
		return nil, errors.New("configuration validation failed: postgres URL is required")
	}
	return cfg, nil
}

func load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = os.Getenv(envPrefix + "ENV_FILE")
	}
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	cfg := Default()

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = os.Getenv(envPrefix + "CONFIG_FILE")
	}
	if configFile != "" {
		if err := cfg.loadYAML(configFile); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// loadEnvFile loads KEY=VALUE pairs without overriding the real
// environment. An explicit path must exist; the implicit .env is optional.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("HOST", s.Host)
	s.Port = getEnv("PORT", s.Port)
	s.HealthPort = getEnv("HEALTH_PORT", s.HealthPort)
	s.ReadTimeout = getEnvDuration("READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("MAX_BODY_BYTES", s.MaxBodyBytes)
	s.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", s.MaxUploadBytes)

	a := &c.Auth
	a.JWTSecret = getEnv("JWT_SECRET", a.JWTSecret)
	a.JWTIssuer = getEnv("JWT_ISSUER", a.JWTIssuer)
	a.SessionTTL = getEnvDuration("SESSION_TTL", a.SessionTTL)
	a.ResetTokenTTL = getEnvDuration("RESET_TOKEN_TTL", a.ResetTokenTTL)
	a.BcryptCost = getEnvInt("BCRYPT_COST", a.BcryptCost)
	a.ResetURL = getEnv("RESET_URL", a.ResetURL)

	pg := &c.Storage.Postgres
	pg.URL = getEnv("POSTGRES_URL", pg.URL)
	pg.MaxOpenConns = getEnvInt("POSTGRES_MAX_CONNS", pg.MaxOpenConns)
	pg.MaxIdleConns = getEnvInt("POSTGRES_MAX_IDLE_CONNS", pg.MaxIdleConns)
	pg.ConnMaxLifetime = getEnvDuration("POSTGRES_CONN_MAX_LIFETIME", pg.ConnMaxLifetime)
	pg.ConnectTimeout = getEnvDuration("POSTGRES_TIMEOUT", pg.ConnectTimeout)
	pg.AutoMigrate = getEnvBool("POSTGRES_AUTO_MIGRATE", pg.AutoMigrate)

	rd := &c.Storage.Redis
	rd.URL = getEnv("REDIS_URL", rd.URL)
	rd.Password = getEnv("REDIS_PASSWORD", rd.Password)
	rd.DB = getEnvInt("REDIS_DB", rd.DB)
	rd.PoolSize = getEnvInt("REDIS_POOL_SIZE", rd.PoolSize)
	rd.MaxRetries = getEnvInt("REDIS_MAX_RETRIES", rd.MaxRetries)

	obj := &c.Storage.ObjectStore
	obj.Backend = strings.ToLower(getEnv("OBJECT_STORE", obj.Backend))
	obj.Endpoint = getEnv("S3_ENDPOINT", obj.Endpoint)
	obj.Region = getEnv("S3_REGION", obj.Region)
	obj.Bucket = getEnv("S3_BUCKET", obj.Bucket)
	obj.AccessKey = getEnv("S3_ACCESS_KEY", obj.AccessKey)
	obj.SecretKey = getEnv("S3_SECRET_KEY", obj.SecretKey)
	obj.UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", obj.UsePathStyle)
	obj.UseSSL = getEnvBool("S3_USE_SSL", obj.UseSSL)
	obj.PublicBaseURL = getEnv("S3_PUBLIC_BASE_URL", obj.PublicBaseURL)

	ch := &c.Cache
	ch.Enabled = getEnvBool("CACHE_ENABLED", ch.Enabled)
	ch.L1Size = getEnvInt("L1_CACHE_SIZE", ch.L1Size)
	ch.TTL = getEnvDuration("CACHE_TTL", ch.TTL)

	m := &c.Mail
	m.Host = getEnv("SMTP_HOST", m.Host)
	m.Port = getEnvInt("SMTP_PORT", m.Port)
	m.Username = getEnv("SMTP_USERNAME", m.Username)
	m.Password = getEnv("SMTP_PASSWORD", m.Password)
	m.From = getEnv("MAIL_FROM", m.From)
	m.AdminAddress = getEnv("ADMIN_EMAIL", m.AdminAddress)
	m.Timeout = getEnvDuration("SMTP_TIMEOUT", m.Timeout)
	m.MaxAttempts = getEnvInt("MAIL_MAX_ATTEMPTS", m.MaxAttempts)
	m.InitialBackoff = getEnvDuration("MAIL_INITIAL_BACKOFF", m.InitialBackoff)
	m.SendBudget = getEnvDuration("MAIL_SEND_BUDGET", m.SendBudget)

	rl := &c.RateLimit
	rl.Enabled = getEnvBool("RATE_LIMIT_ENABLED", rl.Enabled)
	rl.Requests = getEnvInt("RATE_LIMIT_REQUESTS", rl.Requests)
	rl.Window = getEnvDuration("RATE_LIMIT_WINDOW", rl.Window)
	rl.TrustedProxies = getEnvList("RATE_LIMIT_TRUSTED_PROXIES", rl.TrustedProxies)

	c.Janitor.Enabled = getEnvBool("JANITOR_ENABLED", c.Janitor.Enabled)
	c.Janitor.Schedule = getEnv("JANITOR_SCHEDULE", c.Janitor.Schedule)

	c.CORS.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", c.CORS.AllowedOrigins)

	o := &c.Observability
	o.LogLevel = getEnv("LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("METRICS_ENABLED", o.MetricsEnabled)
	o.OTel.Enabled = getEnvBool("OTEL_ENABLED", o.OTel.Enabled)
	o.OTel.Endpoint = getEnv("OTEL_ENDPOINT", o.OTel.Endpoint)
	o.OTel.ServiceName = getEnv("OTEL_SERVICE_NAME", o.OTel.ServiceName)
	o.OTel.ServiceVersion = getEnv("OTEL_SERVICE_VERSION", o.OTel.ServiceVersion)
	o.OTel.Insecure = getEnvBool("OTEL_INSECURE", o.OTel.Insecure)
	o.OTel.SampleRatio = getEnvFloat("OTEL_SAMPLE_RATIO", o.OTel.SampleRatio)
}

// MinJWTSecretLength matches the HS256 key size.
const MinJWTSecretLength = 32

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Server.HealthPort == "" {
		errs = append(errs, errors.New("health port is required"))
	}
	if c.Server.Port != "" && c.Server.Port == c.Server.HealthPort {
		errs = append(errs, errors.New("server port and health port must be different"))
	}

	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("jwt secret must be at least %d bytes", MinJWTSecretLength))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if c.Auth.ResetTokenTTL <= 0 {
		errs = append(errs, errors.New("reset token ttl must be positive"))
	}

	if c.Storage.Postgres.URL == "" {
		errs = append(errs, errors.New("postgres URL is required"))
	}

	switch c.Storage.ObjectStore.Backend {
	case ObjectStoreNone, "":
	case ObjectStoreS3, ObjectStoreMinio:
		if c.Storage.ObjectStore.Bucket == "" {
			errs = append(errs, fmt.Errorf("bucket is required for %s object storage", c.Storage.ObjectStore.Backend))
		}
		if c.Storage.ObjectStore.Backend == ObjectStoreMinio && c.Storage.ObjectStore.Endpoint == "" {
			errs = append(errs, errors.New("endpoint is required for minio object storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid object store backend: %s (must be none, s3, or minio)", c.Storage.ObjectStore.Backend))
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate limit requests and window must be positive"))
	}
	if c.Mail.SendBudget < 0 {
		errs = append(errs, errors.New("mail send budget must not be negative"))
	}
	if c.Mail.SendBudget > 0 && c.Server.WriteTimeout > 0 && c.Mail.SendBudget >= c.Server.WriteTimeout {
		errs = append(errs, errors.New("mail send budget must be shorter than the server write timeout"))
	}
	for _, proxy := range c.RateLimit.TrustedProxies {
		if !validProxy(proxy) {
			errs = append(errs, fmt.Errorf("rate limit trusted proxy %q is not an IP or CIDR", proxy))
		}
	}

	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			errs = append(errs, errors.New("OpenTelemetry endpoint is required when OTel is enabled"))
		}
		if c.Observability.OTel.ServiceName == "" {
			errs = append(errs, errors.New("OpenTelemetry service name is required when OTel is enabled"))
		}
	}

	return errors.Join(errs...)
}

// getEnv returns THOUGHTNEST_<key> or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks
func validProxy(entry string) bool {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, _, err := net.ParseCIDR(entry)
		return err == nil
	}
	return net.ParseIP(entry) != nil
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
