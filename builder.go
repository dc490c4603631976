package finauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/finauth/internal/audit"
	"github.com/MrEthical07/finauth/internal/flows"
	"github.com/MrEthical07/finauth/internal/limiters"
	"github.com/MrEthical07/finauth/internal/rate"
	"github.com/MrEthical07/finauth/jwt"
	"github.com/MrEthical07/finauth/mail"
	"github.com/MrEthical07/finauth/password"
	"github.com/MrEthical07/finauth/store"
	"github.com/MrEthical07/finauth/store/redisstore"
	"github.com/MrEthical07/finauth/token"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

const tracerName = "github.com/MrEthical07/finauth"

// Builder assembles an [Engine]. Configure it during initialization and call
// Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  store.Store

	mailer    mail.Mailer
	clock     Clock
	logger    *slog.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. The Builder keeps its own copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used by the resend cooldown and the reset
// request throttle. When no store is set, the engine also persists records
// in this Redis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the transactional record store.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithMailer sets the mail transport. Defaults to [mail.LogMailer].
func (b *Builder) WithMailer(m mail.Mailer) *Builder {
	b.mailer = m
	return b
}

// WithClock sets the engine clock. Defaults to [SystemClock].
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the structured logger. Defaults to [slog.Default].
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when Config.Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled overrides Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms overrides Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns an immutable Engine. A
// Builder can be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = SystemClock{}
	}
	mailer := b.mailer
	if mailer == nil {
		mailer = mail.NewLogMailer(logger)
	}

	records := b.store
	if records == nil {
		records = redisstore.New(b.redis, redisstore.Options{
			Prefix:     cfg.Store.RedisPrefix,
			MaxRetries: cfg.Store.MaxTxRetries,
			Retention:  cfg.Store.TokenRetention,
		})
	}

	// -------- HASHER --------
	var hasher password.Hasher
	switch cfg.Password.Algorithm {
	case PasswordAlgorithmArgon2id:
		h, err := password.NewArgon2(password.Argon2Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = h
	default:
		h, err := password.NewBcrypt(cfg.Password.BcryptCost)
		if err != nil {
			return nil, err
		}
		hasher = h
	}

	// -------- ACCESS TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	}, jwt.WithTimeFunc(clock.Now))
	if err != nil {
		return nil, err
	}

	templates, err := mail.NewTemplates(cfg.Mail.FrontendURL)
	if err != nil {
		return nil, err
	}

	// -------- LIMITERS --------
	rl := rate.New(b.redis, cfg.Store.RedisPrefix)
	var cooldown *limiters.ResendCooldown
	if cfg.EmailVerification.ResendCooldown > 0 {
		cooldown = limiters.NewResendCooldown(rl, cfg.EmailVerification.ResendCooldown)
	}
	resetLimiter := limiters.NewPasswordResetLimiter(rl, limiters.PasswordResetConfig{
		MaxRequests: cfg.PasswordReset.MaxRequests,
		Window:      cfg.PasswordReset.RequestWindow,
	})

	engine := &Engine{
		config:    cloneConfig(cfg),
		store:     records,
		logger:    logger,
		clock:     clock,
		mailer:    mailer,
		templates: templates,
		jwt:       jm,
		tracer:    otel.Tracer(tracerName),
		metrics:   NewMetrics(cfg.Metrics),
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(audit.Event) {
			engine.metricInc(MetricAuditDropped)
		},
	}, b.auditSink)

	engine.flows = flows.New(flows.Deps{
		Store:     records,
		Hasher:    hasher,
		Dummy:     password.NewDummy(hasher),
		Logger:    logger,
		Now:       func() time.Time { return clock.Now().UTC() },
		NewID:     token.NewID,
		NewSecret: token.NewSecret,
		IssueAccess: func(userID, sessionID string) (string, error) {
			return jm.Issue(userID, sessionID, 0)
		},
		VerifyAccess: func(raw string) (string, string, error) {
			claims, err := jm.Verify(raw)
			if err != nil {
				return "", "", err
			}
			return claims.Subject, claims.SID, nil
		},
		AcquireResendSlot: func(ctx context.Context, userID string, now time.Time) error {
			left, err := cooldown.Acquire(ctx, userID, now)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, limiters.ErrVerificationCooldown):
				engine.emitRateLimit(ctx, "verification_resend", func() map[string]string {
					return map[string]string{"user_id": userID}
				})
				return &RetryAfterError{Err: ErrVerificationCooldown, RetryAfter: left}
			default:
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		},
		ReleaseResendSlot: func(ctx context.Context, userID string) {
			if err := cooldown.Release(ctx, userID); err != nil {
				logger.WarnContext(ctx, "resend cooldown release failed",
					slog.String("user_id", userID), slog.Any("error", err))
			}
		},
		AllowResetRequest: resetLimiter.AllowRequest,
		Deliver:           engine.deliver,
		MetricInc: func(id int) {
			engine.metricInc(MetricID(id))
		},
		EmitAudit:     engine.emitAudit,
		EmitRateLimit: engine.emitRateLimit,
		Policy: flows.Policy{
			MinPasswordLength: cfg.Password.MinLength,
			MaxPasswordBytes:  cfg.Password.MaxBytes,
			RefreshTTL:        cfg.JWT.RefreshTTL,
			VerificationTTL:   cfg.EmailVerification.VerificationTTL,
			ResetTTL:          cfg.PasswordReset.ResetTTL,
			ExposeTokens:      !cfg.ProductionMode,
		},
		Metrics: flows.Metrics{
			SignUpSuccess:            int(MetricSignUpSuccess),
			SignUpFailure:            int(MetricSignUpFailure),
			SignUpDuplicate:          int(MetricSignUpDuplicate),
			SignInSuccess:            int(MetricSignInSuccess),
			SignInFailure:            int(MetricSignInFailure),
			RefreshSuccess:           int(MetricRefreshSuccess),
			RefreshFailure:           int(MetricRefreshFailure),
			RefreshReuseDetected:     int(MetricRefreshReuseDetected),
			EmailVerificationRequest: int(MetricEmailVerificationRequest),
			EmailVerificationSuccess: int(MetricEmailVerificationSuccess),
			EmailVerificationFailure: int(MetricEmailVerificationFailure),
			PasswordResetRequest:     int(MetricPasswordResetRequest),
			PasswordResetSuccess:     int(MetricPasswordResetConfirmSuccess),
			PasswordResetFailure:     int(MetricPasswordResetConfirmFailure),
			SessionRevoked:           int(MetricSessionRevoked),
			AuthenticateSuccess:      int(MetricAuthenticateSuccess),
			AuthenticateFailure:      int(MetricAuthenticateFailure),
		},
		Events: flows.Events{
			SignUpSuccess:            auditEventSignUpSuccess,
			SignUpDuplicate:          auditEventSignUpDuplicate,
			SignInSuccess:            auditEventSignInSuccess,
			SignInFailure:            auditEventSignInFailure,
			RefreshSuccess:           auditEventRefreshSuccess,
			RefreshFailure:           auditEventRefreshFailure,
			RefreshReuseDetected:     auditEventRefreshReuseDetected,
			EmailVerificationConfirm: auditEventEmailVerificationConfirm,
			EmailVerificationRequest: auditEventEmailVerificationRequest,
			PasswordResetRequest:     auditEventPasswordResetRequest,
			PasswordResetConfirm:     auditEventPasswordResetConfirm,
			SessionRevoked:           auditEventSessionRevoked,
		},
		Errors: flows.Errors{
			EngineNotReady:            ErrEngineNotReady,
			Validation:                ErrValidation,
			MalformedToken:            ErrMalformedToken,
			EmailAlreadyRegistered:    ErrEmailAlreadyRegistered,
			AlreadyVerified:           ErrAlreadyVerified,
			InvalidCredentials:        ErrInvalidCredentials,
			InvalidRefreshToken:       ErrInvalidRefreshToken,
			RefreshTokenRevoked:       ErrRefreshTokenRevoked,
			RefreshTokenExpired:       ErrRefreshTokenExpired,
			RefreshTokenReuseDetected: ErrRefreshTokenReuseDetected,
			Unauthorized:              ErrUnauthorized,
			InvalidResetToken:         ErrInvalidResetToken,
			Forbidden:                 ErrForbidden,
			InvalidOrExpiredToken:     ErrInvalidOrExpiredToken,
			UserNotFound:              ErrUserNotFound,
			SessionNotFound:           ErrSessionNotFound,
			StoreUnavailable:          ErrStoreUnavailable,
		},
	})

	b.built = true

	return engine, nil
}
