// Package config loads and validates the SSO server configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the SSO_ prefix (e.g., SSO_DATABASE_HOST
// overrides database.host in the YAML), so the same binary runs with a
// config.yaml in local development and with pure environment variables in
// containerized deployments.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Auth           AuthConfig           `mapstructure:"auth"`
	PwnedPasswords PwnedPasswordsConfig `mapstructure:"pwned_passwords"`
	Providers      ProvidersConfig      `mapstructure:"providers"`
	Security       SecurityConfig       `mapstructure:"security"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Telemetry      TelemetryConfig      `mapstructure:"telemetry"`
	Audit          AuditConfig          `mapstructure:"audit"`
	SMTP           SMTPConfig           `mapstructure:"smtp"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// TrustedProxies lists the proxy CIDRs whose X-Forwarded-For is believed
	// when resolving the client IP recorded in audit rows. Empty trusts none.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// DatabaseConfig holds storage driver configuration. Driver selects the
// registered storage driver ("postgres" or "sqlite"); Path is only used by
// the sqlite driver.
type DatabaseConfig struct {
	Driver             string `mapstructure:"driver"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	Path               string `mapstructure:"path"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
	AutoMigrate        bool   `mapstructure:"auto_migrate"`
}

// AuthConfig holds token lifetimes and the key used to seal OAuth2 CSRF values.
type AuthConfig struct {
	AccessTokenExpires  int    `mapstructure:"access_token_expires"`
	RefreshTokenExpires int    `mapstructure:"refresh_token_expires"`
	RevokeTokenExpires  int    `mapstructure:"revoke_token_expires"`
	CsrfEncryptionKey   string `mapstructure:"csrf_encryption_key"`
}

// AccessTokenTTL returns the access token lifetime.
func (a *AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenExpires) * time.Second
}

// RefreshTokenTTL returns the refresh token lifetime.
func (a *AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(a.RefreshTokenExpires) * time.Second
}

// RevokeTokenTTL returns the revoke token lifetime.
func (a *AuthConfig) RevokeTokenTTL() time.Duration {
	return time.Duration(a.RevokeTokenExpires) * time.Second
}

// PwnedPasswordsConfig holds the k-anonymity breach check settings
type PwnedPasswordsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`
}

// ProvidersConfig holds the OAuth2 provider client registrations
type ProvidersConfig struct {
	Github    OAuth2ProviderConfig `mapstructure:"github"`
	Microsoft OAuth2ProviderConfig `mapstructure:"microsoft"`
}

// OAuth2ProviderConfig holds one OAuth2 client registration. TenantID is only
// meaningful for Microsoft and defaults to "common".
type OAuth2ProviderConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TenantID     string `mapstructure:"tenant_id"`
}

type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig configures request rate limiting. When RedisURL is set the
// limit is shared across replicas through Redis, otherwise an in-memory token
// bucket is used per process.
type RateLimitingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
	RedisURL          string `mapstructure:"redis_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig controls audit retention and external shipping
type AuditConfig struct {
	// RetentionDays is the age in days after which audit rows are deleted.
	// Zero disables the retention job.
	RetentionDays int `mapstructure:"retention_days"`
	// RetentionIntervalHours is how often the retention sweep runs.
	RetentionIntervalHours int `mapstructure:"retention_interval_hours"`
	// CsrfSweepIntervalMinutes is how often expired CSRF rows are removed.
	CsrfSweepIntervalMinutes int                  `mapstructure:"csrf_sweep_interval_minutes"`
	Shippers                 []AuditShipperConfig `mapstructure:"shippers"`
}

type AuditShipperConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Type    string              `mapstructure:"type"`
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

type AuditWebhookConfig struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	TimeoutSecs   int               `mapstructure:"timeout_secs"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval int               `mapstructure:"flush_interval_secs"`
}

type AuditFileConfig struct {
	Path string `mapstructure:"path"`
}

// SMTPConfig holds outbound email settings. Email is disabled when Host is empty.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

// bindEnvVars explicitly binds every config key so that SSO_-prefixed
// environment variables override nested keys even when no config file
// mentions them. Viper's AutomaticEnv only resolves keys it already knows.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		"database.driver",
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.path",
		"database.max_connections",
		"database.min_idle_connections",
		"database.auto_migrate",

		"auth.access_token_expires",
		"auth.refresh_token_expires",
		"auth.revoke_token_expires",
		"auth.csrf_encryption_key",

		"pwned_passwords.enabled",
		"pwned_passwords.url",
		"pwned_passwords.timeout_secs",

		"providers.github.enabled",
		"providers.github.client_id",
		"providers.github.client_secret",
		"providers.microsoft.enabled",
		"providers.microsoft.client_id",
		"providers.microsoft.client_secret",
		"providers.microsoft.tenant_id",

		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.redis_url",

		"logging.level",
		"logging.format",

		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		"audit.retention_days",
		"audit.retention_interval_hours",
		"audit.csrf_sweep_interval_minutes",

		"smtp.host",
		"smtp.port",
		"smtp.username",
		"smtp.password",
		"smtp.from",
		"smtp.use_tls",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/sso")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SSO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Secrets may reference other environment variables, e.g. "${DB_PASSWORD}".
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Auth.CsrfEncryptionKey = os.ExpandEnv(cfg.Auth.CsrfEncryptionKey)
	cfg.Providers.Github.ClientSecret = os.ExpandEnv(cfg.Providers.Github.ClientSecret)
	cfg.Providers.Microsoft.ClientSecret = os.ExpandEnv(cfg.Providers.Microsoft.ClientSecret)
	cfg.SMTP.Password = os.ExpandEnv(cfg.SMTP.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7042)
	v.SetDefault("server.base_url", "http://localhost:7042")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "sso")
	v.SetDefault("database.user", "sso")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.path", "./sso.db")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("auth.access_token_expires", 3600)
	v.SetDefault("auth.refresh_token_expires", 86400)
	v.SetDefault("auth.revoke_token_expires", 604800)

	v.SetDefault("pwned_passwords.enabled", false)
	v.SetDefault("pwned_passwords.url", "https://api.pwnedpasswords.com")
	v.SetDefault("pwned_passwords.timeout_secs", 5)

	v.SetDefault("providers.github.enabled", false)
	v.SetDefault("providers.microsoft.enabled", false)
	v.SetDefault("providers.microsoft.tenant_id", "common")

	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 120)
	v.SetDefault("security.rate_limiting.burst", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "sso")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("audit.retention_interval_hours", 24)
	v.SetDefault("audit.csrf_sweep_interval_minutes", 15)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "sso@localhost")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required for the postgres driver")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required for the postgres driver")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required for the postgres driver")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite)", c.Database.Driver)
	}

	if c.Auth.AccessTokenExpires <= 0 {
		return fmt.Errorf("auth.access_token_expires must be positive")
	}
	if c.Auth.RefreshTokenExpires <= 0 {
		return fmt.Errorf("auth.refresh_token_expires must be positive")
	}
	if c.Auth.RevokeTokenExpires <= 0 {
		return fmt.Errorf("auth.revoke_token_expires must be positive")
	}

	if c.Providers.Github.Enabled || c.Providers.Microsoft.Enabled {
		if len(c.Auth.CsrfEncryptionKey) < 32 {
			return fmt.Errorf("auth.csrf_encryption_key must be at least 32 characters when an OAuth2 provider is enabled")
		}
	}
	if c.Providers.Github.Enabled {
		if c.Providers.Github.ClientID == "" || c.Providers.Github.ClientSecret == "" {
			return fmt.Errorf("providers.github.client_id and client_secret are required when GitHub is enabled")
		}
	}
	if c.Providers.Microsoft.Enabled {
		if c.Providers.Microsoft.ClientID == "" || c.Providers.Microsoft.ClientSecret == "" {
			return fmt.Errorf("providers.microsoft.client_id and client_secret are required when Microsoft is enabled")
		}
	}

	if c.PwnedPasswords.Enabled && c.PwnedPasswords.URL == "" {
		return fmt.Errorf("pwned_passwords.url is required when the breach check is enabled")
	}

	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
