package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantpulse/plant-server/internal/aggregation"
	"github.com/plantpulse/plant-server/internal/database"
	"github.com/plantpulse/plant-server/internal/logger"
	"github.com/plantpulse/plant-server/internal/timer"
	"github.com/plantpulse/plant-server/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.LogLevel)
	lg := logger.WithComponent("aggregator")
	lg.Info().Msg("Starting Aggregation Service")

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		lg.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations("migrations"); err != nil {
		lg.Fatal().Err(err).Msg("Failed to run migrations")
	}
	lg.Info().Msg("Connected to database")

	hourly := aggregation.NewHourlyAggregator(db, logger.WithComponent("hourly"))
	daily := aggregation.NewDailyAggregator(db, logger.WithComponent("daily"))

	scheduler := timer.NewScheduler()
	scheduler.Start()
	defer scheduler.Stop()

	scheduleHourly(scheduler, hourly, cfg.Aggregation.HourlyDelay, lg)
	scheduleDaily(scheduler, daily, cfg.Aggregation.DailyTime, lg)

	lg.Info().
		Dur("hourly_delay", cfg.Aggregation.HourlyDelay).
		Str("daily_time", cfg.Aggregation.DailyTime).
		Msg("Aggregation jobs scheduled")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	lg.Info().Msg("Aggregation Service stopped")
}

// scheduleHourly runs the hourly rollup and re-schedules itself for the next
// hour boundary plus the configured delay.
func scheduleHourly(s *timer.Scheduler, hourly *aggregation.HourlyAggregator, delay time.Duration, lg zerolog.Logger) {
	next := hourly.CalculateNextRunTime(delay)
	err := s.Schedule("hourly-rollup", next, func() {
		if err := hourly.AggregatePreviousHour(); err != nil {
			lg.Error().Err(err).Msg("Hourly aggregation failed")
		}
		scheduleHourly(s, hourly, delay, lg)
	})
	if err != nil {
		lg.Error().Err(err).Msg("Failed to schedule hourly rollup")
		return
	}
	lg.Info().Time("next_run", next).Msg("Hourly rollup scheduled")
}

func scheduleDaily(s *timer.Scheduler, daily *aggregation.DailyAggregator, timeOfDay string, lg zerolog.Logger) {
	next, err := daily.CalculateNextRunTime(timeOfDay)
	if err != nil {
		lg.Error().Err(err).Str("daily_time", timeOfDay).Msg("Invalid daily aggregation time")
		return
	}
	err = s.Schedule("daily-summary", next, func() {
		if err := daily.AggregatePreviousDay(); err != nil {
			lg.Error().Err(err).Msg("Daily aggregation failed")
		}
		scheduleDaily(s, daily, timeOfDay, lg)
	})
	if err != nil {
		lg.Error().Err(err).Msg("Failed to schedule daily summary")
		return
	}
	lg.Info().Time("next_run", next).Msg("Daily summary scheduled")
}
