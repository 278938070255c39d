// Package main is the entry point for the HR portal API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hr-portal/internal/auth"
	"hr-portal/internal/bot"
	"hr-portal/internal/config"
	"hr-portal/internal/pkg/db"
	"hr-portal/internal/pkg/lock"
	"hr-portal/internal/repository"
	"hr-portal/internal/schema"
	"hr-portal/internal/server"
	"hr-portal/internal/service"
	"hr-portal/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Log)
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Bring the schema up to date. Failed steps are logged and skipped.
	schema.NewEvolver(dbPool.Pool,
		schema.WithDefaultTimeLimit(cfg.Tasks.DefaultTimeLimit()),
		schema.WithGlobalMinimum(cfg.Withdrawal.DefaultMinAmount),
	).Run(ctx)

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	taskRepo := repository.NewTaskRepository(dbPool.Pool)
	userTaskRepo := repository.NewUserTaskRepository(dbPool.Pool)
	chatRepo := repository.NewChatRepository(dbPool.Pool)
	withdrawalRepo := repository.NewWithdrawalRepository(dbPool.Pool)
	verificationRepo := repository.NewVerificationRepository(dbPool.Pool)
	eventRepo := repository.NewEventRepository(dbPool.Pool)
	settingRepo := repository.NewSettingRepository(dbPool.Pool)
	newsRepo := repository.NewNewsRepository(dbPool.Pool)
	rankingRepo := repository.NewRankingRepository(dbPool.Pool)

	// Admin notifications are optional.
	var notifier service.Notifier = service.NopNotifier{}
	telegram, err := bot.New(cfg.Notify)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create admin notifier")
	}
	if telegram != nil {
		telegram.Start(ctx)
		defer telegram.Stop()
		notifier = telegram
	}

	// Redis backs token revocation when configured.
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
		}
		defer rdb.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Token revocation enabled")
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize upload storage")
	}
	var uploadDir string
	if local, ok := store.(*storage.LocalStore); ok {
		uploadDir = local.Dir()
	}

	// Initialize services
	userLock := lock.NewUserLock(5 * time.Second)
	events := service.NewEventLog(eventRepo)
	settings := service.NewSettingsStore(settingRepo, decimal.NewFromFloat(cfg.Withdrawal.DefaultMinAmount))
	chatService := service.NewChatService(dbPool.Pool, userRepo, chatRepo, notifier)
	accountService := service.NewAccountService(
		dbPool.Pool,
		userRepo,
		settings,
		events,
		chatService,
		auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		notifier,
		decimal.NewFromFloat(cfg.Users.InitialBalance),
		cfg.Auth.AdminSecret,
	)
	taskService := service.NewTaskService(
		dbPool.Pool,
		userRepo,
		taskRepo,
		userTaskRepo,
		events,
		userLock,
		notifier,
		service.TaskOptions{
			DefaultTimeLimit:  cfg.Tasks.DefaultTimeLimit(),
			ExpirationEnabled: cfg.Tasks.ExpirationEnabled,
		},
	)
	withdrawalService := service.NewWithdrawalService(dbPool.Pool, userRepo, withdrawalRepo, events, userLock, notifier)
	verificationService := service.NewVerificationService(dbPool.Pool, userRepo, verificationRepo, events, notifier)

	gin.SetMode(cfg.Server.Mode)
	router := server.NewRouter(&server.Dependencies{
		Config:        cfg,
		Health:        dbPool,
		Tokens:        auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer),
		Revoker:       auth.NewRevoker(rdb),
		Accounts:      accountService,
		Events:        events,
		Settings:      settings,
		Tasks:         taskService,
		Chat:          chatService,
		Withdrawals:   withdrawalService,
		Verifications: verificationService,
		News:          service.NewNewsService(userRepo, newsRepo),
		Rankings:      service.NewRankingService(rankingRepo),
		Store:         store,
		UploadDir:     uploadDir,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

// setupLogger configures the global zerolog logger.
func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
