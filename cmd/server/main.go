package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/roombook/internal/api"
	"github.com/hugh/roombook/internal/audit"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/calendar"
	"github.com/hugh/roombook/internal/database"
	"github.com/hugh/roombook/internal/mail"
	"github.com/hugh/roombook/internal/notifications"
	"github.com/hugh/roombook/internal/storage"
	"github.com/hugh/roombook/internal/tasks"
	"github.com/hugh/roombook/pkg/config"
	"github.com/hugh/roombook/pkg/crypto"
	"github.com/hugh/roombook/pkg/queue"
	"github.com/hugh/roombook/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// resetThrottleWindow is the minimum gap between password reset emails to one address.
const resetThrottleWindow = 15 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	loc, err := cfg.App.Location()
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.App.Timezone, "error", err)
		os.Exit(1)
	}

	logger.Info("starting roombook server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
		"timezone", loc.String(),
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis, background tasks disabled", "error", err)
		redisClient.Close()
		redisClient = nil
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - stored secrets will be unreadable after restart")
	}

	store, err := storage.New(context.Background(), cfg.Storage)
	if err != nil {
		logger.Error("failed to initialise attachment storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}

	recorder := audit.NewRecorder(db, logger)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())

	authOpts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithAuditRecorder(recorder),
		auth.WithTokenTTL(cfg.App.ActivationTTL()),
	}
	bookingOpts := []booking.Option{
		booking.WithLocation(loc),
		booking.WithAuditRecorder(recorder),
		booking.WithObjectStore(store),
		booking.WithMaxReminderLead(cfg.Reminder.MaxLead()),
		booking.WithMaxUpload(cfg.Storage.MaxUploadBytes()),
	}

	var asynqClient *asynq.Client
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
		dispatcher := tasks.NewDispatcher(asynqClient, cfg.App.BaseURL, cfg.App.ActivationTTL())
		authOpts = append(authOpts,
			auth.WithNotifier(dispatcher),
			auth.WithThrottle(auth.NewRedisThrottle(redisClient, resetThrottleWindow)),
		)
		bookingOpts = append(bookingOpts, booking.WithDispatcher(dispatcher))
	}

	authService := auth.NewService(db, jwtService, authOpts...)
	bookingService := booking.NewService(db, logger, bookingOpts...)

	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		JWTService:     jwtService,
		AuthService:    authService,
		Bookings:       bookingService,
		Notifications:  notifications.NewService(db),
		Audit:          recorder,
		EmailSettings:  mail.NewSettingsService(db, encryptor, recorder),
		Calendar:       calendar.NewCredentials(db, encryptor, recorder),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SecureCookies:  !cfg.Server.IsDevelopment(),
		SessionTTL:     cfg.JWT.Expiry(),
		MaxUpload:      cfg.Storage.MaxUploadBytes(),
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if asynqClient != nil {
		asynqClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if err := database.Close(db); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("server stopped")
}
