package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plantpulse/plant-server/internal/database"
	"github.com/plantpulse/plant-server/internal/logger"
	"github.com/plantpulse/plant-server/internal/queue"
	"github.com/plantpulse/plant-server/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.LogLevel)
	lg := logger.WithComponent("dbwriter")
	lg.Info().Msg("Starting Database Writer Service")

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		lg.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations("migrations"); err != nil {
		lg.Fatal().Err(err).Msg("Failed to run migrations")
	}
	lg.Info().Msg("Connected to database")

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicReadings, "dbwriter-group")
	defer consumer.Close()

	// Batch size 100 or 5s flush, whichever comes first.
	batchWriter := queue.NewBatchWriter(consumer, db, 100, 5*time.Second, logger.WithComponent("batchwriter"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batchWriter.Start(ctx)

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := consumer.Stats()
			lg.Info().
				Int64("messages", stats.Messages).
				Int64("bytes", stats.Bytes).
				Int64("errors", stats.Errors).
				Msg("Consumer stats")
		}
	}()

	lg.Info().Str("topic", cfg.Kafka.TopicReadings).Msg("Consuming readings")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	lg.Info().Msg("Shutting down")
	batchWriter.Stop()
	lg.Info().Msg("Database Writer Service stopped")
}
