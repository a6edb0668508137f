package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nycmed/hospital-records/internal/core/port"
	"github.com/nycmed/hospital-records/internal/infra/config"
	"github.com/nycmed/hospital-records/internal/infra/database"
	kafkainfra "github.com/nycmed/hospital-records/internal/infra/kafka"
	"github.com/nycmed/hospital-records/internal/infra/logger"
	"github.com/nycmed/hospital-records/internal/infra/notify"
	redisinfra "github.com/nycmed/hospital-records/internal/infra/redis"
	"github.com/nycmed/hospital-records/internal/infra/security"
	"github.com/nycmed/hospital-records/internal/infra/telemetry"
	postgresrepo "github.com/nycmed/hospital-records/internal/repository/postgres"
	redisrepo "github.com/nycmed/hospital-records/internal/repository/redis"
	"github.com/nycmed/hospital-records/internal/transport/http/middleware"
	"github.com/nycmed/hospital-records/internal/transport/http/routes"
	"github.com/nycmed/hospital-records/internal/usecase"
)

// migrationBatchSize bounds how many legacy diagnoses the startup migration
// converts per round trip.
const migrationBatchSize = 200

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider
	audit  *usecase.AuditTrail
	visits *usecase.VisitService
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.TracingEnabled {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	cipher, err := security.NewFieldCipher(cfg.Encryption.MasterKey)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init field cipher: %w", err)
	}

	issuer, err := security.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)
	attemptStore := redisrepo.NewAttemptStore(redisClient.Client(), cfg.Redis.AttemptPrefix)

	var eventPublisher port.EventPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	notifier := notify.NewLogNotifier(log)

	validator := security.NewPasswordValidatorWithStrength(cfg.Security.PasswordMinStrength)

	audit := usecase.NewAuditTrail(repos.Audit, cfg.Security.AuditBuffer, log)
	lockout := usecase.NewLockoutService(repos.Users, attemptStore, eventPublisher,
		cfg.Security.MaxLoginAttempts, cfg.Security.LockoutDuration, log)
	authService := usecase.NewAuthService(repos.Users, lockout, audit, issuer, cfg.Security.PasswordExpiry, log)
	passwordService := usecase.NewPasswordService(repos.Users, validator, eventPublisher, audit, notifier,
		cfg.Security.PasswordHistory, log)
	resetService := usecase.NewPasswordResetService(repos.Users, repos.Tokens, passwordService, eventPublisher,
		notifier, audit, cfg.Security.ResetTokenTTL, log)
	visitService := usecase.NewVisitService(repos.Visits, cipher, audit, log)

	var metrics *middleware.HTTPMetrics
	if cfg.Telemetry.MetricsEnabled {
		metrics, err = middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
		if err != nil {
			log.Warn("failed to register http metrics", zap.Error(err))
		}
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Users:       repos.Users,
		TokenIssuer: issuer,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:      authService,
			Passwords: passwordService,
			Resets:    resetService,
			Visits:    visitService,
			Audit:     audit,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
		audit:  audit,
		visits: visitService,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	// Legacy plaintext diagnoses are converted once at startup; after this
	// completes the legacy column is never written again.
	migrated, err := a.visits.MigrateLegacyDiagnoses(ctx, migrationBatchSize)
	if err != nil {
		return fmt.Errorf("migrate legacy diagnoses: %w", err)
	}
	if migrated > 0 {
		a.logger.Info("legacy diagnosis migration complete", zap.Int("migrated", migrated))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting hospital records API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		// Drain buffered audit writes before the pool closes.
		if err := a.audit.Flush(shutdownCtx); err != nil {
			a.logger.Warn("audit flush on shutdown", zap.Error(err))
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
