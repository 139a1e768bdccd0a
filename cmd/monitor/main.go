package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plantpulse/plant-server/internal/alerting"
	"github.com/plantpulse/plant-server/internal/assistant"
	"github.com/plantpulse/plant-server/internal/database"
	"github.com/plantpulse/plant-server/internal/httpapi"
	"github.com/plantpulse/plant-server/internal/logger"
	"github.com/plantpulse/plant-server/internal/poller"
	"github.com/plantpulse/plant-server/internal/profile"
	"github.com/plantpulse/plant-server/internal/queue"
	"github.com/plantpulse/plant-server/internal/telemetry"
	"github.com/plantpulse/plant-server/internal/threshold"
	"github.com/plantpulse/plant-server/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.LogLevel)
	lg := logger.WithComponent("monitor")
	lg.Info().Msg("Starting Plant Monitor Service")

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		lg.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations("migrations"); err != nil {
		lg.Fatal().Err(err).Msg("Failed to run migrations")
	}
	lg.Info().Msg("Connected to database")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	for _, topic := range []string{cfg.Kafka.TopicReadings, cfg.Kafka.TopicAlerts} {
		if err := queue.CreateTopic(cfg.Kafka.Brokers, topic, cfg.Kafka.NumPartitions, 1); err != nil {
			lg.Warn().Err(err).Str("topic", topic).Msg("Topic creation failed, assuming it exists")
		}
	}

	readingsProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReadings)
	defer readingsProducer.Close()
	alertsProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts)
	defer alertsProducer.Close()

	// One process-wide cooldown gate: alerts on any channel share the window.
	gate := alerting.NewCooldownGate(cfg.Alerting.Cooldown)
	dispatcher := alerting.NewDispatcher(gate, alerting.NewQueueNotifier(alertsProducer), logger.WithComponent("dispatcher"))

	fetcher := telemetry.NewClient(cfg.Telemetry, logger.WithComponent("telemetry"))
	notices := alerting.NewNoticeGate(redisClient, cfg.Alerting.NoticeTTL)
	profiles := profile.NewStore(db)

	bands := poller.Bands{
		Temperature: threshold.Band{Min: cfg.Thresholds.TempMin, Max: cfg.Thresholds.TempMax},
		Humidity:    threshold.Band{Min: cfg.Thresholds.HumidityMin, Max: cfg.Thresholds.HumidityMax},
	}

	registry := poller.NewRegistry(cfg.HTTP.MaxSessions)
	defer registry.CloseAll()

	factory := func(userID string) *poller.Controller {
		return poller.NewController(poller.Options{
			UserID:     userID,
			Fetcher:    fetcher,
			Dispatcher: dispatcher,
			Publisher:  readingsProducer,
			Notices:    notices,
			Bands:      bands,
			Target: func() alerting.Target {
				target := alerting.Target{UserID: userID}
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if prof, err := profiles.Get(ctx, userID); err == nil && prof != nil {
					target.Recipient = prof.AlertEmail
					target.PlantName = prof.PlantName
				}
				return target
			},
			Interval: cfg.Telemetry.PollInterval,
			Logger:   logger.WithComponent("poller"),
		})
	}

	chat := assistant.NewClient(cfg.Assistant, logger.WithComponent("assistant"))
	if !chat.Configured() {
		lg.Warn().Msg("Assistant API key not set, chat endpoint will return 503")
	}

	server := httpapi.NewServer(cfg.HTTP.Port, registry, profiles, chat, db, factory, logger.WithComponent("httpapi"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		lg.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		lg.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("HTTP shutdown failed")
	}
	lg.Info().Msg("Plant Monitor Service stopped")
}
