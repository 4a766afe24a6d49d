package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/vacvault/vacvault-api/internal/api/http"
	"github.com/vacvault/vacvault-api/internal/api/http/handlers"
	"github.com/vacvault/vacvault-api/internal/auth"
	"github.com/vacvault/vacvault-api/internal/config"
	"github.com/vacvault/vacvault-api/internal/events"
	"github.com/vacvault/vacvault-api/internal/mail"
	"github.com/vacvault/vacvault-api/internal/observability"
	"github.com/vacvault/vacvault-api/internal/persistence"
	"github.com/vacvault/vacvault-api/internal/service"
	"github.com/vacvault/vacvault-api/internal/worker"
)

const smtpBreakerMaxFailures = 5

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(cfg.App.Name)

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

	redis := &persistence.Redis{}
	if cfg.Mail.Async {
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
	}
	defer redis.Close()

	userRepo := pg.UserRepository(cfg.Auth.BcryptCost, logger)

	sender := mail.NewBreakerSender(mail.NewSMTPSender(cfg.Mail), smtpBreakerMaxFailures, cfg.Mail.BreakerTimeout(), logger)

	var wg sync.WaitGroup
	var queue mail.Queue
	if cfg.Mail.Async {
		outbox := redis.Outbox(ctx, cfg.Mail.QueueKey, logger)
		queue = outbox
		mailWorker := worker.NewMailWorker(outbox, sender, worker.MailWorkerConfig{
			MaxAttempts:  cfg.Mail.MaxAttempts,
			RetryBackoff: cfg.Mail.RetryBackoff(),
		}, metrics, logger.Named("mail_worker"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			mailWorker.Run(ctx)
		}()
	} else {
		queue = mail.NewDirectQueue(sender)
	}

	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, queue, metrics, logger).RegisterHandlers()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:   userRepo,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	userService := service.NewUserService(userRepo, logger)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager())

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:     cfg.App.RequestTimeout(),
		CORSOrigins: cfg.App.CORSOrigins,
	})

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
		"postgres": pg,
		"redis":    redis,
	})

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Auth:           handlers.NewAuthHandler(authService),
		Users:          handlers.NewUsersHandler(userService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics.Handler(),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	wg.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
