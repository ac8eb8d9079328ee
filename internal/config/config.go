// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// JWTSigningKey is a shared HS256 secret. Used only when JWTPrivateKey is empty.
	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// RefreshReuseDetection revokes the whole rotation chain when a rotated refresh token is presented again.
	RefreshReuseDetection bool `mapstructure:"REFRESH_REUSE_DETECTION"`

	// PasswordHashAlgo is the algorithm for new password hashes: argon2id or bcrypt.
	PasswordHashAlgo string `mapstructure:"PASSWORD_HASH_ALGO"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// PasswordMinLength is the minimum length accepted by UpdatePassword.
	PasswordMinLength int `mapstructure:"PASSWORD_MIN_LENGTH"`
	// PasswordResetTTL is how long a reset token stays valid (e.g. "1h").
	PasswordResetTTL string `mapstructure:"PASSWORD_RESET_TTL"`
	// PasswordResetURL is the base URL placed in reset messages; the token is appended as ?token=.
	PasswordResetURL string `mapstructure:"PASSWORD_RESET_URL"`

	// AuthzEngine selects the permission evaluator: set or rego.
	AuthzEngine string `mapstructure:"AUTHZ_ENGINE"`
	// AuthzRegoPath is an optional Rego module overriding the embedded default policy.
	AuthzRegoPath string `mapstructure:"AUTHZ_REGO_PATH"`

	// NotifyTransport selects how reset messages leave the service: log, kafka, or http.
	NotifyTransport string `mapstructure:"NOTIFY_TRANSPORT"`
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NotifyKafkaTopic is the topic password reset messages are published to.
	NotifyKafkaTopic string `mapstructure:"NOTIFY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the notification worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// MailAPIURL is the HTTP mail provider endpoint.
	MailAPIURL string `mapstructure:"MAIL_API_URL"`
	// MailAPIKey is sent as the Authorization header to the mail provider.
	MailAPIKey string `mapstructure:"MAIL_API_KEY"`
	// MailSender is the From address of reset messages.
	MailSender string `mapstructure:"MAIL_SENDER"`

	// RateLimitPerMinute bounds Login, Refresh and password reset calls per client IP; 0 disables it.
	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	// TrustedProxies is a comma-separated list of proxy CIDRs or addresses whose x-forwarded-for and
	// x-real-ip headers are believed. Empty means client IPs come from the connection only.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`
	// SweepInterval is how often the worker revokes expired refresh tokens and deletes expired reset tokens.
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext gRPC to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is reported as service.name.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("JWT_SIGNING_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "blog-auth")
	v.SetDefault("JWT_AUDIENCE", "blog-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("REFRESH_REUSE_DETECTION", false)
	v.SetDefault("PASSWORD_HASH_ALGO", "argon2id")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("PASSWORD_MIN_LENGTH", 8)
	v.SetDefault("PASSWORD_RESET_TTL", "1h")
	v.SetDefault("PASSWORD_RESET_URL", "http://localhost:3000/reset-password")
	v.SetDefault("AUTHZ_ENGINE", "set")
	v.SetDefault("AUTHZ_REGO_PATH", "")
	v.SetDefault("NOTIFY_TRANSPORT", "log")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "blog-password-reset")
	v.SetDefault("KAFKA_GROUP_ID", "blog-notification-worker")
	v.SetDefault("MAIL_API_URL", "")
	v.SetDefault("MAIL_API_KEY", "")
	v.SetDefault("MAIL_SENDER", "no-reply@blog.local")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 30)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "blog-auth")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	cfg.PasswordHashAlgo = strings.ToLower(strings.TrimSpace(cfg.PasswordHashAlgo))
	if cfg.PasswordHashAlgo != "argon2id" && cfg.PasswordHashAlgo != "bcrypt" {
		return nil, errors.New("config: PASSWORD_HASH_ALGO must be argon2id or bcrypt")
	}

	cfg.AuthzEngine = strings.ToLower(strings.TrimSpace(cfg.AuthzEngine))
	if cfg.AuthzEngine != "set" && cfg.AuthzEngine != "rego" {
		return nil, errors.New("config: AUTHZ_ENGINE must be set or rego")
	}

	cfg.NotifyTransport = strings.ToLower(strings.TrimSpace(cfg.NotifyTransport))
	switch cfg.NotifyTransport {
	case "log", "kafka", "http":
	default:
		return nil, errors.New("config: NOTIFY_TRANSPORT must be log, kafka, or http")
	}
	if cfg.NotifyTransport == "kafka" && len(cfg.KafkaBrokersList()) == 0 {
		return nil, errors.New("config: KAFKA_BROKERS must be set when NOTIFY_TRANSPORT=kafka")
	}
	if cfg.NotifyTransport == "http" && cfg.MailAPIURL == "" {
		return nil, errors.New("config: MAIL_API_URL must be set when NOTIFY_TRANSPORT=http")
	}

	if cfg.Env == "production" {
		if cfg.NotifyTransport == "log" {
			return nil, errors.New("config: NOTIFY_TRANSPORT=log must not be used when APP_ENV=production")
		}
		if cfg.JWTPrivateKey == "" && len(cfg.JWTSigningKey) < 32 {
			return nil, errors.New("config: JWT_SIGNING_KEY must be at least 32 bytes when APP_ENV=production")
		}
	}

	if cfg.PasswordMinLength <= 0 {
		cfg.PasswordMinLength = 8
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// ResetTTL parses PasswordResetTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) ResetTTL() time.Duration {
	return parseDuration(c.PasswordResetTTL, time.Hour)
}

// SweepEvery parses SweepInterval as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) SweepEvery() time.Duration {
	return parseDuration(c.SweepInterval, 10*time.Minute)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// TrustedProxiesList returns the trusted proxy entries from the comma-separated config.
func (c *Config) TrustedProxiesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
