package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/roombook/internal/calendar"
	"github.com/hugh/roombook/internal/database"
	"github.com/hugh/roombook/internal/mail"
	"github.com/hugh/roombook/internal/reminders"
	"github.com/hugh/roombook/internal/tasks"
	"github.com/hugh/roombook/pkg/config"
	"github.com/hugh/roombook/pkg/crypto"
	"github.com/hugh/roombook/pkg/queue"
	"github.com/hugh/roombook/pkg/util"
	"github.com/joho/godotenv"
)

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

	logger.Info("starting roombook worker", "timezone", loc.String())

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}

	client := queue.NewClient(&cfg.Redis)
	defer client.Close()

	// Reminders go through the email queue so SMTP failures are retried.
	dispatcher := tasks.NewDispatcher(client, cfg.App.BaseURL, cfg.App.ActivationTTL())
	scanner := reminders.NewScanner(db, dispatcher, logger, cfg.Reminder.MaxLead(),
		reminders.WithLocation(loc),
		reminders.WithBaseURL(cfg.App.BaseURL),
	)

	smtp := mail.NewSMTPSender(db, encryptor, cfg.Mail, logger)
	creds := calendar.NewCredentials(db, encryptor, nil)
	syncer := calendar.NewSyncer(db, creds, calendar.OAuthConfig(cfg.Calendar), logger,
		calendar.WithLocation(loc),
	)

	handler := tasks.NewHandler(db, logger, smtp, scanner,
		tasks.WithCalendarSyncer(syncer),
		tasks.WithLocation(loc),
		tasks.WithBaseURL(cfg.App.BaseURL),
	)

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, 10)

	scheduler := queue.NewScheduler(&cfg.Redis, loc)
	entryID, err := tasks.RegisterSchedules(scheduler, cfg.Reminder.ScanCron)
	if err != nil {
		logger.Error("failed to register reminder schedule", "cron", cfg.Reminder.ScanCron, "error", err)
		os.Exit(1)
	}
	if next, err := util.NextCronTime(cfg.Reminder.ScanCron, time.Now(), loc); err == nil {
		logger.Info("reminder scan scheduled", "entry_id", entryID, "cron", cfg.Reminder.ScanCron, "next_run", next)
	}

	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
		scheduler.Shutdown()
		cancel()
	}

	<-ctx.Done()

	if err := database.Close(db); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("worker stopped")
}
