package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the personal cloud API.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Storage  StorageConfig
	Quota    QuotaConfig
	Keycloak KeycloakConfig
	Metrics  MetricsConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// MigrateURL returns the database URL in the form golang-migrate's pgx5
// driver expects.
func (p PostgresConfig) MigrateURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// StorageConfig describes the blob store root and transport limits.
type StorageConfig struct {
	// RootDir is the base directory holding one subdirectory per user.
	RootDir string
	// MaxUploadBytes caps a single multipart upload, independent of the
	// per-user quota check.
	MaxUploadBytes int64
}

// Quota failure policies. FailModeOpen admits uploads when accounting
// breaks; FailModeClosed surfaces the error instead.
const (
	FailModeOpen   = "open"
	FailModeClosed = "closed"
)

// QuotaConfig groups storage accounting settings.
type QuotaConfig struct {
	DefaultBytes int64
	FailMode     string
}

// FailOpen reports whether quota accounting errors should admit uploads.
func (q QuotaConfig) FailOpen() bool {
	return q.FailMode != FailModeClosed
}

// KeycloakConfig carries identity provider connection details.
type KeycloakConfig struct {
	BaseURL             string
	Realm               string
	ClientID            string
	AdminUser           string
	AdminPassword       string
	ClientTimeout       time.Duration
	JWKSRefreshInterval time.Duration
}

// JWKSURL returns the realm's JWKS endpoint.
func (k KeycloakConfig) JWKSURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", k.BaseURL, k.Realm)
}

// Issuer returns the expected token issuer for the realm.
func (k KeycloakConfig) Issuer() string {
	return fmt.Sprintf("%s/realms/%s", k.BaseURL, k.Realm)
}

// AdminTokenURL returns the token endpoint used for the admin-cli password grant.
func (k KeycloakConfig) AdminTokenURL() string {
	return fmt.Sprintf("%s/realms/master/protocol/openid-connect/token", k.BaseURL)
}

// AdminRealmURL returns the admin REST base for the configured realm.
func (k KeycloakConfig) AdminRealmURL() string {
	return fmt.Sprintf("%s/admin/realms/%s", k.BaseURL, k.Realm)
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("CLOUD_API_HOST", "0.0.0.0"),
			Port:         getInt("CLOUD_API_PORT", 5000),
			ReadTimeout:  getDuration("CLOUD_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("CLOUD_API_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDuration("CLOUD_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "cloud_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "personal_cloud"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		Storage: StorageConfig{
			RootDir:        getString("CLOUD_STORAGE_ROOT", "uploads/users"),
			MaxUploadBytes: getInt64("CLOUD_MAX_UPLOAD_BYTES", 1<<30),
		},
		Quota: QuotaConfig{
			DefaultBytes: getInt64("CLOUD_QUOTA_DEFAULT_BYTES", 5<<30),
			FailMode:     strings.ToLower(getString("CLOUD_QUOTA_FAIL_MODE", FailModeOpen)),
		},
		Keycloak: KeycloakConfig{
			BaseURL:             strings.TrimRight(getString("KEYCLOAK_URL", "http://localhost:8080"), "/"),
			Realm:               getString("KEYCLOAK_REALM", "personal-cloud"),
			ClientID:            getString("KEYCLOAK_CLIENT_ID", "secure-cloud-api"),
			AdminUser:           getString("KEYCLOAK_ADMIN", "admin"),
			AdminPassword:       getString("KEYCLOAK_ADMIN_PASSWORD", "admin"),
			ClientTimeout:       getDuration("KEYCLOAK_CLIENT_TIMEOUT", 10*time.Second),
			JWKSRefreshInterval: getDuration("KEYCLOAK_JWKS_REFRESH_INTERVAL", time.Hour),
		},
		Metrics: MetricsConfig{
			PrometheusPath: getString("CLOUD_METRICS_PATH", "/metrics"),
		},
	}

	if cfg.Quota.FailMode != FailModeOpen && cfg.Quota.FailMode != FailModeClosed {
		return Config{}, fmt.Errorf("invalid CLOUD_QUOTA_FAIL_MODE %q", cfg.Quota.FailMode)
	}
	if cfg.Quota.DefaultBytes <= 0 {
		return Config{}, fmt.Errorf("CLOUD_QUOTA_DEFAULT_BYTES must be positive")
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}
