package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hray3182/MindIt/internal/bot"
	"github.com/hray3182/MindIt/internal/bot/handlers"
	"github.com/hray3182/MindIt/internal/config"
	"github.com/hray3182/MindIt/internal/database"
	"github.com/hray3182/MindIt/internal/delivery"
	"github.com/hray3182/MindIt/internal/logging"
	"github.com/hray3182/MindIt/internal/metrics"
	"github.com/hray3182/MindIt/internal/reminder"
	"github.com/hray3182/MindIt/internal/repository"
	"github.com/hray3182/MindIt/internal/scheduler"
	"github.com/hray3182/MindIt/internal/server"
	"github.com/hray3182/MindIt/internal/whatsapp"
	"go.uber.org/zap"
)

// store is what both store drivers provide.
type store interface {
	reminder.ReminderStore
	scheduler.Store
	Ping(ctx context.Context) error
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		users     reminder.UserStore
		reminders store
	)
	switch cfg.StoreDriver {
	case "memory":
		mem := repository.NewMemoryStore()
		users, reminders = mem, mem
		logger.Warn("using in-memory store, reminders are lost on restart")
	default:
		db, err := database.New(ctx, cfg.DatabaseURI)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		logger.Info("connected to database")

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("database migrations completed")

		users = repository.NewUserRepository(db.Pool)
		reminders = repository.NewReminderRepository(db.Pool)
	}

	collector := metrics.NewCollector()

	// Outbound channels
	var whatsappSender, telegramSender delivery.Sender
	waConfig := whatsapp.Config{
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		AccessToken:   cfg.WhatsAppAccessToken,
		APIVersion:    cfg.WhatsAppAPIVersion,
	}
	if waConfig.Enabled() {
		client := whatsapp.NewClient(waConfig, nil)
		whatsappSender = delivery.NewBreakerSender(client, delivery.DefaultBreakerConfig("whatsapp"), logger)
	} else {
		logger.Warn("WhatsApp credentials not configured, WhatsApp delivery disabled")
	}

	var tg *bot.Bot
	if cfg.TelegramToken != "" {
		tg, err = bot.New(cfg.TelegramToken, logger)
		if err != nil {
			logger.Fatal("failed to create telegram bot", zap.Error(err))
		}
		telegramSender = delivery.NewBreakerSender(tg, delivery.DefaultBreakerConfig("telegram"), logger)
	}
	sender := delivery.NewRouter(whatsappSender, telegramSender)

	// Dispatcher and its in-process trigger
	dispatcher := scheduler.NewDispatcher(reminders, sender, scheduler.Config{
		Window:          cfg.SweepWindow,
		RetryDelay:      cfg.RetryDelay,
		MaxRetries:      cfg.MaxDeliveryRetries,
		StaleAfter:      cfg.StaleAfter,
		DeliveryTimeout: cfg.DeliveryTimeout,
		Location:        cfg.Location,
	}, logger, collector)

	// Command router
	manager := reminder.NewManager(users, reminders, logger, reminder.Options{
		Scope:    reminder.ConfirmScope(cfg.ConfirmScope),
		Location: cfg.Location,
	})
	routerOpts := handlers.Options{
		Location:    cfg.Location,
		FollowUpTTL: cfg.FollowUpTTL,
		SoonWindow:  cfg.SweepWindow,
		Metrics:     collector,
	}
	if cfg.SchedulerEnabled {
		sched := scheduler.New(dispatcher, cfg.SweepInterval, logger)
		routerOpts.Notifier = sched
		go sched.Start(ctx)
	} else {
		logger.Info("in-process scheduler disabled, sweeps run through /cron/sweep only")
	}
	router := handlers.New(manager, logger, routerOpts)

	if tg != nil {
		go func() {
			if err := tg.Start(ctx, router); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("telegram bot stopped", zap.Error(err))
			}
		}()
	}

	// HTTP surface
	var webhook *whatsapp.Webhook
	var webhookRoutes server.Webhook
	if cfg.WhatsAppVerifyToken != "" || waConfig.Enabled() {
		webhook = whatsapp.NewWebhook(whatsapp.WebhookConfig{
			VerifyToken: cfg.WhatsAppVerifyToken,
			AppSecret:   cfg.WhatsAppAppSecret,
		}, router, sender, logger)
		webhookRoutes = webhook
	}
	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET not set, /cron/sweep is unauthenticated")
	}

	srv := server.New(server.Config{
		CronSecret:      cfg.CronSecret,
		WhatsAppEnabled: waConfig.Enabled(),
		TelegramEnabled: tg != nil,
	}, webhookRoutes, dispatcher, reminders, collector, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}
	if webhook != nil {
		webhook.Wait()
	}
}
