package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantpulse/plant-server/internal/database"
	"github.com/plantpulse/plant-server/internal/logger"
	"github.com/plantpulse/plant-server/internal/notification"
	"github.com/plantpulse/plant-server/internal/protocol"
	"github.com/plantpulse/plant-server/internal/queue"
	"github.com/plantpulse/plant-server/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.LogLevel)
	lg := logger.WithComponent("notification")
	lg.Info().Msg("Starting Notification Service")

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		lg.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	notifier := notification.NewEmailNotifier(&cfg.SMTP, logger.WithComponent("email"))
	if err := notifier.TestConnection(); err != nil {
		lg.Warn().Err(err).Msg("SMTP connection check failed, alerts may not deliver")
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, "notification-group")
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeAlerts(ctx, consumer, notifier, db, lg)
	}()

	lg.Info().Str("topic", cfg.Kafka.TopicAlerts).Msg("Consuming alert events")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	lg.Info().Msg("Shutting down")
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		lg.Warn().Msg("Consumer did not stop in time")
	}
	lg.Info().Msg("Notification Service stopped")
}

func consumeAlerts(ctx context.Context, consumer *queue.Consumer, notifier *notification.EmailNotifier, db *database.DB, lg zerolog.Logger) {
	for {
		msg, err := consumer.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lg.Error().Err(err).Msg("Consume failed")
			continue
		}

		event, err := protocol.DecodeAlertEvent(msg.Value)
		if err != nil {
			lg.Error().Err(err).Msg("Skipping undecodable alert event")
			consumer.Commit(ctx, msg)
			continue
		}

		status := database.AlertStatusDelivered
		if err := notifier.SendAlert(event); err != nil {
			lg.Error().Err(err).Str("alert_id", event.ID).Msg("Alert delivery failed")
			status = database.AlertStatusFailed
		} else {
			lg.Info().
				Str("alert_id", event.ID).
				Str("channel", string(event.Channel)).
				Str("direction", string(event.Direction)).
				Msg("Alert delivered")
		}

		if err := db.InsertAlertLog(&database.AlertLog{
			ID:        event.ID,
			UserID:    event.UserID,
			Channel:   string(event.Channel),
			Direction: string(event.Direction),
			Value:     event.Value,
			BandMin:   event.BandMin,
			BandMax:   event.BandMax,
			Recipient: event.Recipient,
			Status:    status,
			FiredAt:   event.FiredAt,
		}); err != nil {
			lg.Error().Err(err).Str("alert_id", event.ID).Msg("Failed to record alert log")
		}

		if err := consumer.Commit(ctx, msg); err != nil {
			lg.Error().Err(err).Msg("Failed to commit offset")
		}
	}
}
