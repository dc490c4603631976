// Package app wires configuration, storage, mail, telemetry and the HTTP API
// into the finauth server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/finauth"
	"github.com/MrEthical07/finauth/httpapi"
	"github.com/MrEthical07/finauth/internal/config"
	"github.com/MrEthical07/finauth/internal/logger"
	"github.com/MrEthical07/finauth/internal/telemetry"
	"github.com/MrEthical07/finauth/mail"
	otelexport "github.com/MrEthical07/finauth/metrics/export/otel"
	promexport "github.com/MrEthical07/finauth/metrics/export/prometheus"
	"github.com/MrEthical07/finauth/middleware"
	"github.com/MrEthical07/finauth/store/postgres"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

// Run is the entry point of cmd/finauth-server. args is os.Args[1:].
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHealthcheck {
		addr := os.Getenv("HTTP_ADDR")
		if addr == "" {
			addr = ":8080"
		}
		return runHealthcheck(addr)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	log := logger.SetupDefault(w, cfg.LogLevel)

	log.Info("starting finauth",
		slog.String("command", string(cmd)),
		slog.String("env", cfg.Env),
		slog.String("store", cfg.StoreBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(ctx, cfg, migrateDirection(args))
	default:
		return runServe(ctx, cfg, log)
	}
}

func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	for _, f := range engineCfg.Lint() {
		log.Warn("config lint", slog.String("code", f.Code), slog.String("message", f.Message))
	}

	providers, err := telemetry.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(sctx)
	}()

	rdb, err := openRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	mailer, err := newMailer(cfg, log)
	if err != nil {
		return err
	}

	b := finauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithMailer(mailer).
		WithLogger(log)
	if cfg.AuditEnabled {
		b = b.WithAuditSink(finauth.NewSlogSink(log))
	}

	if cfg.StoreBackend == config.StorePostgres {
		pg, err := postgres.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer pg.Close()
		log.Info("database connection established")
		b = b.WithStore(pg)
		go purgeLoop(ctx, pg, cfg.PurgeInterval, log)
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	otelMetrics, err := otelexport.NewOTelExporter(otel.Meter("github.com/MrEthical07/finauth"), engine)
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}
	defer otelMetrics.Close()

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		CleanupInterval: 5 * time.Minute,
		OnLimit:         httpapi.RateLimitHook(engine),
	})
	defer limiter.Stop()

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Engine:      engine,
		Logger:      log,
		RateLimiter: limiter,
		Throttles:   httpapi.DefaultThrottles(),
		TrustProxy:  cfg.TrustProxy,
		Metrics:     promexport.NewPrometheusExporter(engine).Handler(),
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down API server")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

func runMigrate(ctx context.Context, cfg *config.Config, direction string) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate: DATABASE_URL must be set")
	}
	slog.Info("running database migrations",
		slog.String("direction", direction),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	pg, err := postgres.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer pg.Close()

	if err := pg.Migrate(direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed", slog.String("direction", direction))
	return nil
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func newMailer(cfg *config.Config, log *slog.Logger) (mail.Mailer, error) {
	var m mail.Mailer
	switch cfg.MailProvider {
	case config.MailProviderSMTP:
		smtp, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
		if err != nil {
			return nil, fmt.Errorf("smtp mailer: %w", err)
		}
		m = smtp
	default:
		m = mail.NewLogMailer(log)
	}
	if cfg.MailRate > 0 {
		m = mail.NewThrottled(m, cfg.MailRate, 1)
	}
	return m, nil
}

type purger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// purgeLoop deletes expired tokens once at start and then every interval
// until ctx ends. A non-positive interval disables it.
func purgeLoop(ctx context.Context, p purger, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		return
	}
	run := func() {
		n, err := p.PurgeExpired(ctx, time.Now())
		if err != nil {
			if ctx.Err() == nil {
				log.Error("purge expired tokens failed", slog.String("error", err.Error()))
			}
			return
		}
		if n > 0 {
			log.Info("purged expired tokens", slog.Int64("rows", n))
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func runHealthcheck(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid HTTP_ADDR %q: %w", addr, err)
	}
	if host == "" {
		host = "localhost"
	}
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://" + net.JoinHostPort(host, port) + "/healthz")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
