// Package config loads server settings and the engine configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/finauth"
	"github.com/spf13/viper"
)

const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	MailProviderLog  = "log"
	MailProviderSMTP = "smtp"
)

// Config holds everything the server binary reads from the environment.
type Config struct {
	// HTTPAddr is the listen address (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment; "production" turns on
	// finauth.Config.ProductionMode.
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// TrustProxy takes client IPs from X-Forwarded-For.
	TrustProxy      bool          `mapstructure:"TRUST_PROXY"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	RedisURL string `mapstructure:"REDIS_URL"`
	// StoreBackend selects the record store: "redis" or "postgres".
	StoreBackend   string        `mapstructure:"STORE_BACKEND"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DatabaseDriver string        `mapstructure:"DATABASE_DRIVER"`
	PurgeInterval  time.Duration `mapstructure:"PURGE_INTERVAL"`

	// JWTSecret is the hs256 secret, or the ed25519 private key as PEM or a
	// path to a PEM file.
	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	JWTPublicKey     string        `mapstructure:"JWT_PUBLIC_KEY"`
	JWTSigningMethod string        `mapstructure:"JWT_SIGNING_METHOD"`
	JWTIssuer        string        `mapstructure:"JWT_ISSUER"`
	JWTAudience      string        `mapstructure:"JWT_AUDIENCE"`
	JWTAccessTTL     time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL    time.Duration `mapstructure:"JWT_REFRESH_TTL"`

	PasswordAlgorithm string `mapstructure:"PASSWORD_ALGORITHM"`
	BcryptCost        int    `mapstructure:"BCRYPT_COST"`

	VerificationTTL time.Duration `mapstructure:"VERIFICATION_TTL"`
	ResendCooldown  time.Duration `mapstructure:"RESEND_COOLDOWN"`
	ResetTTL        time.Duration `mapstructure:"RESET_TTL"`

	FrontendURL  string  `mapstructure:"FRONTEND_URL"`
	MailFrom     string  `mapstructure:"MAIL_FROM"`
	MailProvider string  `mapstructure:"MAIL_PROVIDER"`
	MailRate     float64 `mapstructure:"MAIL_RATE"`
	SMTPHost     string  `mapstructure:"SMTP_HOST"`
	SMTPPort     int     `mapstructure:"SMTP_PORT"`
	SMTPUsername string  `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string  `mapstructure:"SMTP_PASSWORD"`

	AuditEnabled   bool `mapstructure:"AUDIT_ENABLED"`
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`

	// OTLPEndpoint enables OTLP export of traces and metrics when set.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	def := finauth.DefaultConfig()
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("STORE_BACKEND", StoreRedis)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_DRIVER", "pgx")
	v.SetDefault("PURGE_INTERVAL", "1h")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_SIGNING_METHOD", def.JWT.SigningMethod)
	v.SetDefault("JWT_ISSUER", "finauth")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("JWT_ACCESS_TTL", def.JWT.AccessTTL.String())
	v.SetDefault("JWT_REFRESH_TTL", def.JWT.RefreshTTL.String())
	v.SetDefault("PASSWORD_ALGORITHM", def.Password.Algorithm)
	v.SetDefault("BCRYPT_COST", def.Password.BcryptCost)
	v.SetDefault("VERIFICATION_TTL", def.EmailVerification.VerificationTTL.String())
	v.SetDefault("RESEND_COOLDOWN", def.EmailVerification.ResendCooldown.String())
	v.SetDefault("RESET_TTL", def.PasswordReset.ResetTTL.String())
	v.SetDefault("FRONTEND_URL", def.Mail.FrontendURL)
	v.SetDefault("MAIL_FROM", def.Mail.From)
	v.SetDefault("MAIL_PROVIDER", MailProviderLog)
	v.SetDefault("MAIL_RATE", 0)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("AUDIT_ENABLED", false)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "finauth")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	switch cfg.StoreBackend {
	case StoreRedis:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("config: STORE_BACKEND must be %q or %q", StoreRedis, StorePostgres)
	}
	switch cfg.MailProvider {
	case MailProviderLog:
	case MailProviderSMTP:
		if cfg.SMTPHost == "" {
			return nil, errors.New("config: SMTP_HOST must be set when MAIL_PROVIDER=smtp")
		}
	default:
		return nil, fmt.Errorf("config: MAIL_PROVIDER must be %q or %q", MailProviderLog, MailProviderSMTP)
	}
	if cfg.MailProvider == MailProviderLog && cfg.Production() {
		return nil, errors.New("config: MAIL_PROVIDER=log is not allowed when APP_ENV=production")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}

	return &cfg, nil
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Engine converts c into a validated finauth.Config.
func (c *Config) Engine() (finauth.Config, error) {
	out := finauth.DefaultConfig()

	out.JWT.SigningMethod = strings.ToLower(c.JWTSigningMethod)
	out.JWT.Issuer = c.JWTIssuer
	out.JWT.Audience = c.JWTAudience
	out.JWT.AccessTTL = c.JWTAccessTTL
	out.JWT.RefreshTTL = c.JWTRefreshTTL

	priv, err := readKey(c.JWTSecret, out.JWT.SigningMethod == "ed25519")
	if err != nil {
		return finauth.Config{}, fmt.Errorf("config: JWT_SECRET: %w", err)
	}
	out.JWT.PrivateKey = priv
	if c.JWTPublicKey != "" {
		pub, err := readKey(c.JWTPublicKey, true)
		if err != nil {
			return finauth.Config{}, fmt.Errorf("config: JWT_PUBLIC_KEY: %w", err)
		}
		out.JWT.PublicKey = pub
	}

	out.Password.Algorithm = strings.ToLower(c.PasswordAlgorithm)
	out.Password.BcryptCost = c.BcryptCost
	out.EmailVerification.VerificationTTL = c.VerificationTTL
	out.EmailVerification.ResendCooldown = c.ResendCooldown
	out.PasswordReset.ResetTTL = c.ResetTTL
	out.Mail.FrontendURL = c.FrontendURL
	out.Mail.From = c.MailFrom
	out.Audit.Enabled = c.AuditEnabled
	out.Metrics.Enabled = c.MetricsEnabled
	out.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	out.ProductionMode = c.Production()

	if err := out.Validate(); err != nil {
		return finauth.Config{}, fmt.Errorf("config: %w", err)
	}
	return out, nil
}

// readKey returns PEM text as is, reads a file when pemOrPath names one,
// and otherwise treats the value as a raw secret unless pemOnly is set.
func readKey(pemOrPath string, pemOnly bool) ([]byte, error) {
	if strings.HasPrefix(strings.TrimSpace(pemOrPath), "-----BEGIN") {
		return []byte(pemOrPath), nil
	}
	if b, err := os.ReadFile(pemOrPath); err == nil {
		return b, nil
	}
	if pemOnly {
		return nil, errors.New("expected PEM content or a path to a PEM file")
	}
	return []byte(pemOrPath), nil
}
