package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/photobooth-auth/internal/api/http"
	"github.com/spec-kit/photobooth-auth/internal/api/http/handlers"
	"github.com/spec-kit/photobooth-auth/internal/auth"
	"github.com/spec-kit/photobooth-auth/internal/config"
	"github.com/spec-kit/photobooth-auth/internal/events"
	"github.com/spec-kit/photobooth-auth/internal/observability"
	"github.com/spec-kit/photobooth-auth/internal/persistence"
	"github.com/spec-kit/photobooth-auth/internal/repository"
	"github.com/spec-kit/photobooth-auth/internal/service"
	"github.com/spec-kit/photobooth-auth/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	tokenRepo := repository.NewRefreshTokenRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()

	authService, err := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:         userRepo,
		RefreshTokenRepo: tokenRepo,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	if err != nil {
		logger.Fatal("failed to build auth service", zap.Error(err))
	}

	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))
	go worker.NewTokenReaper(tokenRepo, logger, cfg.Auth.ReaperInterval).Run(ctx)

	cookieAuth := auth.NewCookieAuth(authService.TokenManager())
	csrfMiddleware, err := httptransport.NewCSRFMiddleware(
		cfg.Auth.CSRFSecret,
		cfg.App.IsProduction(),
		cfg.Auth.SessionCookieTTL,
		authService.TokenManager(),
		authService.Encryptor(),
		logger,
	)
	if err != nil {
		logger.Fatal("failed to init csrf protection", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	authHandler := handlers.NewAuthHandler(authService, logger, httptransport.CSRFTokenFromContext, cfg.App.IsProduction())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:     healthHandler,
		Auth:       authHandler,
		CookieAuth: cookieAuth,
		CSRF:       csrfMiddleware,
		Limiter:    httptransport.NewRedisLimiter(redis.Client),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
