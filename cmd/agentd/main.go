package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/app"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/config"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/domain"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/health"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/http/handler"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/http/middleware"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/http/router"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/observability"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/repository"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/security"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/service"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/worker"
)

func main() {
	root := &cobra.Command{
		Use:   "agentd",
		Short: "Customer support platform API and verification workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	root.SetContext(signalContext())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

func run(ctx context.Context) error {
	if err := config.LoadEnvFile(".env"); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, logShutdown, err := observability.InitLogger(ctx, cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(
		&domain.Tenant{},
		&domain.User{},
		&domain.RefreshCredential{},
		&domain.DomainClaim{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	users := repository.NewUserRepository(db)
	creds := repository.NewCredentialRepository(db)
	claims := repository.NewDomainClaimRepository(db)

	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
	tokens := service.NewTokenService(jwtMgr, creds, cfg.RefreshPepper, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	auth := service.NewAuthService(db, users, creds, tokens, jwtMgr, cfg.MaxActiveSessions, logger)
	domains := service.NewDomainService(claims, cfg.VerifyTXTPrefix)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("unwrap database handle: %w", err)
	}
	readiness := health.NewProbeRunner(2*time.Second, 5*time.Second,
		health.DatabaseChecker("database", sqlDB))

	deps := router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth),
		DomainHandler:    handler.NewDomainHandler(domains),
		JWTManager:       jwtMgr,
		Readiness:        readiness,
		CORSOrigins:      cfg.CORSOrigins,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		EnableOTelHTTP:   cfg.OTELTracesEnabled,
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter := middleware.NewRedisWindowLimiter(client, "supportd:ratelimit")
		deps.GlobalLimiter = middleware.NewDistributedRateLimiter(limiter, cfg.APIRateLimitRPM, time.Minute, middleware.FailOpen, "api").Middleware()
		deps.AuthLimiter = middleware.NewDistributedRateLimiter(limiter, cfg.AuthRateLimitRPM, time.Minute, middleware.FailClosed, "auth").Middleware()
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	a := app.New(cfg, logger, server, runtime, stopWorkers)

	verifier := worker.NewVerifier(claims, worker.NewNetResolver(), worker.VerifierOptions{
		Interval:        cfg.VerifyInterval,
		BatchSize:       cfg.VerifyBatchSize,
		MaxAttempts:     cfg.VerifyMaxAttempts,
		BackoffCap:      cfg.VerifyBackoffCap,
		FallbackBackoff: cfg.VerifyFallbackBackoff,
		LookupTimeout:   cfg.DNSLookupTimeout,
		TXTPrefix:       cfg.VerifyTXTPrefix,
		Logger:          logger,
	})
	janitor := worker.NewJanitor(creds, cfg.JanitorInterval, cfg.CredentialRetention, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := verifier.Run(workerCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := janitor.Run(workerCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
		logCtx, cancelLog := context.WithTimeout(context.Background(), cfg.ShutdownObservabilityTimeout)
		defer cancelLog()
		return logShutdown(logCtx)
	})

	return g.Wait()
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	}
	if cfg.IsPostgres() {
		return gorm.Open(postgres.Open(cfg.DatabaseDSN), gormCfg)
	}
	return gorm.Open(sqlite.Open(cfg.DatabaseDSN), gormCfg)
}
