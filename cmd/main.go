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

	"github.com/go-chi/chi/v5"
	"github.com/go-co-op/gocron/v2"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Dosada05/league-reservations/config"
	"github.com/Dosada05/league-reservations/db"
	"github.com/Dosada05/league-reservations/handlers"
	"github.com/Dosada05/league-reservations/live"
	"github.com/Dosada05/league-reservations/payments"
	"github.com/Dosada05/league-reservations/rate"
	"github.com/Dosada05/league-reservations/repositories"
	api "github.com/Dosada05/league-reservations/routes"
	"github.com/Dosada05/league-reservations/services"
	"github.com/Dosada05/league-reservations/storage"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	// Архив вебхуков в Cloudflare R2 — опционален: без настроек R2 тела
	// событий просто не архивируются.
	var archiver storage.PayloadArchiver
	if cfg.R2AccountID != "" {
		archiver, err = storage.NewCloudflareR2Archiver(storage.CloudflareR2ArchiverConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 archiver", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 archiver initialized")
	}

	// Лимитер записи: Redis для нескольких инстансов, память для одного.
	var entryLimiter rate.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		entryLimiter = rate.NewRedis(redisClient, cfg.EntryRateLimit, cfg.EntryRateWindow, "")
		logger.Info("redis rate limiter initialized")
	} else {
		entryLimiter = rate.NewMemory(cfg.EntryRateLimit, cfg.EntryRateWindow)
	}

	// Инициализация WebSocket Hub
	wsHub := live.NewHub()
	go wsHub.Run()

	// Инициализация репозиториев
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	entryRepo := repositories.NewPostgresEntryRepository(dbConn)
	waitlistRepo := repositories.NewPostgresWaitlistRepository(dbConn)
	membershipRepo := repositories.NewPostgresMembershipRepository(dbConn)
	hallRepo := repositories.NewPostgresHallRepository(dbConn)
	webhookEventRepo := repositories.NewPostgresWebhookEventRepository(dbConn)

	// Инициализация сервисов
	gateway := payments.NewClient(cfg.PaymentAPIBaseURL, cfg.PaymentAPIKey, logger)
	locks := services.NewTournamentLocks()
	pricing := services.FeePricing{
		BaseFeeCents:      cfg.BaseFeeCents,
		NonmemberFeeCents: cfg.NonmemberFeeCents,
	}

	reservationService := services.NewReservationService(
		entryRepo,
		tournamentRepo,
		waitlistRepo,
		membershipRepo,
		hallRepo,
		gateway,
		locks,
		wsHub,
		logger,
		services.ReservationConfig{
			DefaultMaxSlots: cfg.DefaultMaxSlots,
			Pricing:         pricing,
			SuccessURL:      cfg.CheckoutSuccessURL,
			CancelURL:       cfg.CheckoutCancelURL,
		},
	)
	promotionService := services.NewPromotionService(
		waitlistRepo,
		entryRepo,
		tournamentRepo,
		membershipRepo,
		hallRepo,
		gateway,
		locks,
		wsHub,
		logger,
		services.PromotionConfig{
			OfferTTL:   cfg.OfferTTL,
			Pricing:    pricing,
			SuccessURL: cfg.CheckoutSuccessURL,
			CancelURL:  cfg.CheckoutCancelURL,
		},
	)
	reconciliationService := services.NewReconciliationService(
		entryRepo,
		waitlistRepo,
		tournamentRepo,
		membershipRepo,
		webhookEventRepo,
		promotionService,
		locks,
		wsHub,
		logger,
	)
	membershipService := services.NewMembershipService(membershipRepo, gateway, logger)
	reportService := services.NewReportService(entryRepo, hallRepo)
	adminService := services.NewAdminService(cfg.AdminKeyHash, cfg.JWTSecretKey)
	logger.Info("services initialized")

	// Периодическая развёртка листов ожидания: подбирает просроченные офферы
	// и турниры, пропущенные при обработке событий.
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		logger.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.PromotionSweepInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.PromotionSweepInterval)
			defer cancel()
			if err := promotionService.SweepOnce(ctx); err != nil {
				logger.Error("promotion sweep failed", slog.Any("error", err))
			}
		}),
	)
	if err != nil {
		logger.Error("failed to schedule promotion sweep", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()
	defer func() { _ = scheduler.Shutdown() }()
	logger.Info("promotion sweep scheduled", slog.Duration("interval", cfg.PromotionSweepInterval))

	// Инициализация обработчиков HTTP
	entryHandler := handlers.NewEntryHandler(reservationService, logger)
	webhookHandler := handlers.NewWebhookHandler(reconciliationService, archiver, cfg.PaymentWebhookSecret, logger)
	adminHandler := handlers.NewAdminHandler(adminService, promotionService, reportService, logger)
	membershipHandler := handlers.NewMembershipHandler(membershipService, logger)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, logger)

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router,
		api.Config{
			JWTSecret:    cfg.JWTSecretKey,
			EntryLimiter: entryLimiter,
			Logger:       logger,
		},
		api.Handlers{
			Entries:     entryHandler,
			Webhooks:    webhookHandler,
			Admin:       adminHandler,
			Memberships: membershipHandler,
			WebSocket:   webSocketHandler,
		},
	)
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
