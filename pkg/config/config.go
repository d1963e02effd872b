package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/storage"
)

// InsecureDefaultSecret is the placeholder shipped in sample environments.
// A deployment still using it is rejected.
const InsecureDefaultSecret = "your-shared-secret-key-change-this"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       storage.Config      `yaml:"-"`
	SSO           SSOConfig           `yaml:"sso"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
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

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// SSOConfig configures the token handoff with the partner application
type SSOConfig struct {
	// AppURL is this application's public base URL; it is sent as issuer.
	AppURL string `yaml:"app_url"`
	// PartnerURL is the other application's base URL. Empty disables
	// outbound handoffs.
	PartnerURL   string `yaml:"partner_url"`
	SharedSecret string `yaml:"-"`

	TokenTTL       time.Duration `yaml:"token_ttl"`
	PartnerTimeout time.Duration `yaml:"partner_timeout"`

	SweepEnabled  bool   `yaml:"sweep_enabled"`
	SweepSchedule string `yaml:"sweep_schedule"`

	DefaultReturnPath string `yaml:"default_return_path"`
	LoginPath         string `yaml:"login_path"`

	SessionTTL        time.Duration `yaml:"session_ttl"`
	SessionCookieName string        `yaml:"session_cookie_name"`
	SecureCookies     bool          `yaml:"secure_cookies"`
}

// RateLimitConfig throttles the credential endpoints (/login, /register)
// and the partner API per client address. Limits are shared through redis
// when a redis backend is configured.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	CredentialsPerMin int  `yaml:"credentials_per_minute"`
	CredentialsBurst  int  `yaml:"credentials_burst"`
	PartnerPerMin     int  `yaml:"partner_per_minute"`
	PartnerBurst      int  `yaml:"partner_burst"`
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		},
		Storage: storage.DefaultConfig(),
		SSO: SSOConfig{
			AppURL:            "http://localhost:8080",
			TokenTTL:          5 * time.Minute,
			PartnerTimeout:    5 * time.Second,
			SweepEnabled:      true,
			SweepSchedule:     "*/10 * * * *",
			DefaultReturnPath: "/dashboard",
			LoginPath:         "/login",
			SessionTTL:        2 * time.Hour,
			SessionCookieName: "ssobridge_session",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			CredentialsPerMin: 10,
			CredentialsBurst:  5,
			PartnerPerMin:     600,
			PartnerBurst:      100,
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "ssobridge",
			OTelServiceVersion: "dev",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig reads .env (when present), then the YAML file named by
// SSOBRIDGE_CONFIG_FILE, then environment variables, and validates the
// result. Environment variables win over the file.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("SSOBRIDGE_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
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
	s.Host = getEnv("SSOBRIDGE_HOST", s.Host)
	s.Port = getEnv("SSOBRIDGE_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("SSOBRIDGE_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("SSOBRIDGE_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("SSOBRIDGE_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("SSOBRIDGE_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("SSOBRIDGE_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.HealthPort = getEnv("SSOBRIDGE_HEALTH_PORT", s.HealthPort)

	st := &c.Storage
	st.Driver = getEnv("SSOBRIDGE_DB_DRIVER", st.Driver)
	st.DSN = getEnv("SSOBRIDGE_DB_DSN", st.DSN)
	st.MaxOpenConns = getEnvInt("SSOBRIDGE_DB_MAX_CONNS", st.MaxOpenConns)
	st.MaxIdleConns = getEnvInt("SSOBRIDGE_DB_MIN_CONNS", st.MaxIdleConns)
	st.ConnectTimeout = getEnvDuration("SSOBRIDGE_DB_TIMEOUT", st.ConnectTimeout)
	st.TokenBackend = getEnv("SSOBRIDGE_TOKEN_BACKEND", st.TokenBackend)
	st.SessionBackend = getEnv("SSOBRIDGE_SESSION_BACKEND", st.SessionBackend)
	st.RedisURL = getEnv("SSOBRIDGE_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("SSOBRIDGE_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("SSOBRIDGE_REDIS_DB", st.RedisDB)
	st.RedisMaxRetries = getEnvInt("SSOBRIDGE_REDIS_MAX_RETRIES", st.RedisMaxRetries)
	st.RedisPoolSize = getEnvInt("SSOBRIDGE_REDIS_POOL_SIZE", st.RedisPoolSize)
	st.SessionCacheSize = getEnvInt("SSOBRIDGE_SESSION_CACHE_SIZE", st.SessionCacheSize)

	sso := &c.SSO
	sso.AppURL = getEnv("SSOBRIDGE_APP_URL", sso.AppURL)
	sso.PartnerURL = getEnv("SSOBRIDGE_PARTNER_URL", sso.PartnerURL)
	sso.SharedSecret = getEnv("SSOBRIDGE_SHARED_SECRET", sso.SharedSecret)
	sso.TokenTTL = getEnvDuration("SSOBRIDGE_TOKEN_TTL", sso.TokenTTL)
	sso.PartnerTimeout = getEnvDuration("SSOBRIDGE_PARTNER_TIMEOUT", sso.PartnerTimeout)
	sso.SweepEnabled = getEnvBool("SSOBRIDGE_SWEEP_ENABLED", sso.SweepEnabled)
	sso.SweepSchedule = getEnv("SSOBRIDGE_SWEEP_SCHEDULE", sso.SweepSchedule)
	sso.DefaultReturnPath = getEnv("SSOBRIDGE_DEFAULT_RETURN_PATH", sso.DefaultReturnPath)
	sso.LoginPath = getEnv("SSOBRIDGE_LOGIN_PATH", sso.LoginPath)
	sso.SessionTTL = getEnvDuration("SSOBRIDGE_SESSION_TTL", sso.SessionTTL)
	sso.SessionCookieName = getEnv("SSOBRIDGE_SESSION_COOKIE", sso.SessionCookieName)
	sso.SecureCookies = getEnvBool("SSOBRIDGE_SECURE_COOKIES", sso.SecureCookies)

	rl := &c.RateLimit
	rl.Enabled = getEnvBool("SSOBRIDGE_RATE_LIMIT_ENABLED", rl.Enabled)
	rl.CredentialsPerMin = getEnvInt("SSOBRIDGE_RATE_LIMIT_CREDENTIALS_PER_MIN", rl.CredentialsPerMin)
	rl.CredentialsBurst = getEnvInt("SSOBRIDGE_RATE_LIMIT_CREDENTIALS_BURST", rl.CredentialsBurst)
	rl.PartnerPerMin = getEnvInt("SSOBRIDGE_RATE_LIMIT_PARTNER_PER_MIN", rl.PartnerPerMin)
	rl.PartnerBurst = getEnvInt("SSOBRIDGE_RATE_LIMIT_PARTNER_BURST", rl.PartnerBurst)
	rl.TrustForwardedFor = getEnvBool("SSOBRIDGE_TRUST_FORWARDED_FOR", rl.TrustForwardedFor)

	o := &c.Observability
	if level := os.Getenv("SSOBRIDGE_LOG_LEVEL"); level != "" {
		o.LogLevel = observability.ParseLogLevel(level)
	}
	o.MetricsEnabled = getEnvBool("SSOBRIDGE_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("SSOBRIDGE_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("SSOBRIDGE_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("SSOBRIDGE_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("SSOBRIDGE_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("SSOBRIDGE_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("SSOBRIDGE_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if err := c.SSO.Validate(); err != nil {
		return err
	}

	if c.RateLimit.Enabled && (c.RateLimit.CredentialsPerMin <= 0 || c.RateLimit.PartnerPerMin <= 0) {
		return fmt.Errorf("rate limits must be positive when rate limiting is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Validate checks the handoff settings
func (s SSOConfig) Validate() error {
	switch strings.TrimSpace(s.SharedSecret) {
	case "":
		return fmt.Errorf("shared secret is required")
	case InsecureDefaultSecret:
		return fmt.Errorf("shared secret is still the insecure placeholder")
	}

	if err := requireAbsoluteURL("app URL", s.AppURL); err != nil {
		return err
	}
	if s.PartnerURL != "" {
		if err := requireAbsoluteURL("partner URL", s.PartnerURL); err != nil {
			return err
		}
		if strings.TrimRight(s.PartnerURL, "/") == strings.TrimRight(s.AppURL, "/") {
			return fmt.Errorf("partner URL must differ from app URL")
		}
	}

	if s.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if s.PartnerTimeout <= 0 {
		return fmt.Errorf("partner timeout must be positive")
	}
	if s.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if s.SweepEnabled && s.SweepSchedule == "" {
		return fmt.Errorf("sweep schedule is required when sweeping is enabled")
	}
	if !strings.HasPrefix(s.DefaultReturnPath, "/") || !strings.HasPrefix(s.LoginPath, "/") {
		return fmt.Errorf("default return path and login path must be absolute paths")
	}
	return nil
}

func requireAbsoluteURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
