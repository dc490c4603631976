package finauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/finauth/password"
)

// Config is the process-wide engine configuration.
//
// Build copies it; the engine never mutates its copy.
type Config struct {
	JWT               JWTConfig
	Password          PasswordConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	Store             StoreConfig
	Mail              MailConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	// ProductionMode keeps raw verification and reset tokens out of results
	// and tightens Validate.
	ProductionMode bool
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access and refresh token lifetimes and signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

const (
	PasswordAlgorithmBcrypt   = "bcrypt"
	PasswordAlgorithmArgon2id = "argon2id"
)

// PasswordConfig selects the secret hasher and the password policy.
type PasswordConfig struct {
	Algorithm  string // "bcrypt" (default) or "argon2id"
	BcryptCost int
	MinLength  int
	MaxBytes   int

	// Argon2id parameters, used when Algorithm is "argon2id".
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// EmailVerificationConfig configures VERIFY_EMAIL tokens.
type EmailVerificationConfig struct {
	VerificationTTL time.Duration
	ResendCooldown  time.Duration
}

// PasswordResetConfig configures RESET_PASSWORD tokens and the per-email
// request throttle.
type PasswordResetConfig struct {
	ResetTTL      time.Duration
	MaxRequests   int
	RequestWindow time.Duration
}

// StoreConfig configures the Redis keyspace shared by limiters and the Redis
// record store.
type StoreConfig struct {
	RedisPrefix    string
	MaxTxRetries   int
	TokenRetention time.Duration
}

// MailConfig configures outgoing mail links.
type MailConfig struct {
	FrontendURL string
	From        string
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the development defaults. JWT.PrivateKey must still
// be set before Build.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			Algorithm:   PasswordAlgorithmBcrypt,
			BcryptCost:  password.DefaultBcryptCost,
			MinLength:   8,
			MaxBytes:    72,
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		EmailVerification: EmailVerificationConfig{
			VerificationTTL: 24 * time.Hour,
			ResendCooldown:  5 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			ResetTTL:      time.Hour,
			MaxRequests:   5,
			RequestWindow: 15 * time.Minute,
		},
		Store: StoreConfig{
			RedisPrefix:    "finauth",
			MaxTxRetries:   16,
			TokenRetention: 24 * time.Hour,
		},
		Mail: MailConfig{
			FrontendURL: "http://localhost:4200",
			From:        "no-reply@localhost",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error it finds.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be longer than AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	switch c.Password.Algorithm {
	case PasswordAlgorithmBcrypt:
		if c.Password.BcryptCost < password.MinBcryptCost || c.Password.BcryptCost > password.MaxBcryptCost {
			return fmt.Errorf("Password BcryptCost must be between %d and %d", password.MinBcryptCost, password.MaxBcryptCost)
		}
	case PasswordAlgorithmArgon2id:
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	default:
		return errors.New("Password Algorithm must be 'bcrypt' or 'argon2id'")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxBytes < 0 {
		return errors.New("Password MaxBytes must be >= 0")
	}
	if c.Password.MaxBytes > 0 && c.Password.MaxBytes < c.Password.MinLength {
		return errors.New("Password MaxBytes must be >= MinLength")
	}

	// Single-use tokens
	if c.EmailVerification.VerificationTTL <= 0 {
		return errors.New("EmailVerification VerificationTTL must be > 0")
	}
	if c.EmailVerification.ResendCooldown < 0 {
		return errors.New("EmailVerification ResendCooldown must be >= 0")
	}
	if c.PasswordReset.ResetTTL <= 0 {
		return errors.New("PasswordReset ResetTTL must be > 0")
	}
	if c.PasswordReset.MaxRequests < 0 {
		return errors.New("PasswordReset MaxRequests must be >= 0")
	}
	if c.PasswordReset.MaxRequests > 0 && c.PasswordReset.RequestWindow <= 0 {
		return errors.New("PasswordReset RequestWindow must be > 0 when MaxRequests is set")
	}

	// Store
	if strings.TrimSpace(c.Store.RedisPrefix) == "" {
		return errors.New("Store RedisPrefix must not be empty")
	}
	if c.Store.MaxTxRetries < 1 {
		return errors.New("Store MaxTxRetries must be >= 1")
	}
	if c.Store.TokenRetention < 0 {
		return errors.New("Store TokenRetention must be >= 0")
	}

	// Mail
	if c.Mail.FrontendURL != "" {
		u, err := url.Parse(c.Mail.FrontendURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("Mail FrontendURL must be an absolute URL")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.ProductionMode {
		if c.JWT.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT AccessTTL <= 15m")
		}
		if c.JWT.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires JWT RefreshTTL <= 30d")
		}
		if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
			return errors.New("ProductionMode requires hs256 key length >= 256 bits")
		}
		if c.Password.Algorithm == PasswordAlgorithmBcrypt && c.Password.BcryptCost < 10 {
			return errors.New("ProductionMode requires Password BcryptCost >= 10")
		}
		if c.Password.MinLength < 8 {
			return errors.New("ProductionMode requires Password MinLength >= 8")
		}
		if c.PasswordReset.ResetTTL > 2*time.Hour {
			return errors.New("ProductionMode requires PasswordReset ResetTTL <= 2h")
		}
		if c.Mail.FrontendURL == "" {
			return errors.New("ProductionMode requires Mail FrontendURL")
		}
	}

	return nil
}
