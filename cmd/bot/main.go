package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/artovix-tgbot-go/internal/handlers"
	"github.com/artovix-tgbot-go/internal/i18n"
	"github.com/artovix-tgbot-go/internal/middleware"
	"github.com/artovix-tgbot-go/internal/services/ai"
	"github.com/artovix-tgbot-go/internal/services/analytics"
	"github.com/artovix-tgbot-go/internal/services/cache"
	"github.com/artovix-tgbot-go/internal/services/imagegen"
	"github.com/artovix-tgbot-go/internal/services/storage"
	"github.com/artovix-tgbot-go/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	config.Watch(*configPath, func(updated *config.Config, err error) {
		if err != nil {
			log.WithError(err).Warn("Ignoring invalid config change")
			return
		}
		if err := logger.ApplyLevel(log, updated.Logging.Level); err != nil {
			log.WithError(err).Warn("Ignoring invalid log level")
			return
		}
		log.WithField("level", updated.Logging.Level).Info("Config reloaded")
	})

	features := cfg.Features()
	log.WithFields(logrus.Fields{
		"inference":   features.Inference,
		"flux_images": features.FluxImages,
	}).Info("Starting Artovix")

	if !features.Transport {
		log.Warn("BOT_TOKEN is not set; Telegram transport disabled, exiting")
		return
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		log.WithError(err).Fatal("Failed to create bot")
	}
	bot.Debug = cfg.Logging.Level == "debug"
	log.WithField("username", bot.Self.UserName).Info("Bot authorized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := middleware.NewMetrics()

	storageBackend, err := storage.NewBackend(ctx, &cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	storageManager := storage.NewManager(storageBackend, log, metrics.RecordStorageOperation)
	defer storageManager.Close()

	analyticsBackend, err := analytics.NewBackend(&cfg.Analytics)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize analytics")
	}
	recorder := analytics.NewRecorder(analyticsBackend, log)
	defer recorder.Close()

	aiService := ai.NewGroq(cfg.AI, log, metrics)
	if !aiService.Enabled() {
		log.Warn("GROQ_API_KEY is not set; chat, search, code, voice and vision are disabled")
	}

	providers := imagegen.DefaultProviders(&cfg.Images)
	imageChain := imagegen.NewChain(providers, aiService, log, metrics.RecordImageAttempt)

	cacheService := cache.NewCache(&cfg.Cache, log, metrics)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log, metrics)

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	var metricsServer *http.Server
	if cfg.Monitoring.Metrics.Enabled {
		metricsServer = middleware.NewMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path)
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	dispatcher := handlers.NewDispatcher(cfg, handlers.Services{
		Bot:            bot,
		Files:          handlers.NewTelegramFiles(bot, cfg.AI.Timeout),
		AI:             aiService,
		Images:         imageChain,
		ImageProviders: len(providers),
		Storage:        storageManager,
		Analytics:      recorder,
		Cache:          cacheService,
		Limiter:        rateLimiter,
		Localizer:      localizer,
		Metrics:        metrics,
		Logger:         log,
	})

	var updates tgbotapi.UpdatesChannel
	var webhookServer *http.Server

	if cfg.Bot.Webhook.Enabled {
		webhookURL := fmt.Sprintf("%s/%s", cfg.Bot.Webhook.URL, bot.Token)
		webhook, err := tgbotapi.NewWebhook(webhookURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to create webhook")
		}

		if _, err := bot.Request(webhook); err != nil {
			log.WithError(err).Fatal("Failed to set webhook")
		}

		updates = bot.ListenForWebhook("/" + bot.Token)
		webhookServer = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Bot.Webhook.Port)}
		go func() {
			if err := webhookServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Fatal("Webhook server failed")
			}
		}()
		log.WithField("port", cfg.Bot.Webhook.Port).Info("Webhook set")
	} else {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = cfg.Bot.UpdateTimeout

		updates = bot.GetUpdatesChan(u)
		log.Info("Using long polling")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	stop := make(chan struct{})
	var workers sync.WaitGroup
	for i := 0; i < cfg.Bot.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case <-stop:
					return
				case update, ok := <-updates:
					if !ok {
						return
					}
					dispatcher.HandleUpdate(ctx, update)
				}
			}
		}()
	}
	log.WithField("workers", cfg.Bot.Workers).Info("Update workers started")

	go startPeriodicTasks(ctx, storageManager, rateLimiter, metrics, log)

	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if cfg.Bot.Webhook.Enabled {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.WithError(err).Error("Failed to delete webhook")
		}
		webhookServer.Shutdown(shutdownCtx)
	} else {
		bot.StopReceivingUpdates()
	}

	close(stop)
	waitWithTimeout(&workers, shutdownTimeout, log)
	cancel()

	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}

	log.Info("Bot stopped")
}

// startPeriodicTasks keeps gauges current and drops idle rate-limit buckets
func startPeriodicTasks(ctx context.Context, storage *storage.Manager, limiter *middleware.UserRateLimiter, metrics *middleware.Metrics, log *logrus.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetActiveProfiles(storage.CountProfiles(ctx))
			if n := limiter.Sweep(); n > 0 {
				log.WithField("evicted", n).Debug("Swept idle rate limiters")
			}
		}
	}
}

func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration, log *logrus.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn("Timed out waiting for in-flight updates")
	}
}
