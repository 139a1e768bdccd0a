package aggregation

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantpulse/plant-server/internal/database"
)

// HourlyAggregator rolls raw plant readings up into per-user hourly rows.
type HourlyAggregator struct {
	db     *database.DB
	logger zerolog.Logger
}

// NewHourlyAggregator creates a new hourly aggregator
func NewHourlyAggregator(db *database.DB, logger zerolog.Logger) *HourlyAggregator {
	return &HourlyAggregator{db: db, logger: logger}
}

// Aggregate performs hourly aggregation for the specified hour
func (h *HourlyAggregator) Aggregate(targetHour time.Time) error {
	startTime := targetHour.Truncate(time.Hour)
	endTime := startTime.Add(time.Hour)

	query := `
		INSERT INTO hourly_readings (
			user_id, hour_timestamp, avg_temp, avg_humidity, online_ratio, sample_count
		)
		SELECT
			user_id,
			$1 AS hour_timestamp,
			AVG(temperature) AS avg_temp,
			AVG(humidity) AS avg_humidity,
			AVG(CASE WHEN online THEN 1.0 ELSE 0.0 END) AS online_ratio,
			COUNT(*) AS sample_count
		FROM
			plant_readings
		WHERE
			fetched_at >= $1 AND fetched_at < $2
		GROUP BY
			user_id
		ON CONFLICT (user_id, hour_timestamp) DO UPDATE
		SET
			avg_temp = EXCLUDED.avg_temp,
			avg_humidity = EXCLUDED.avg_humidity,
			online_ratio = EXCLUDED.online_ratio,
			sample_count = EXCLUDED.sample_count
	`

	result, err := h.db.Exec(query, startTime, endTime)
	if err != nil {
		return fmt.Errorf("failed to aggregate hourly data: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	h.logger.Info().
		Time("hour", startTime).
		Int64("users", rowsAffected).
		Msg("hourly aggregation completed")

	return nil
}

// AggregatePreviousHour aggregates the previous full hour
func (h *HourlyAggregator) AggregatePreviousHour() error {
	previousHour := time.Now().Add(-1 * time.Hour).Truncate(time.Hour)
	return h.Aggregate(previousHour)
}

// CalculateNextRunTime calculates when the hourly aggregation should next
// run: a fixed delay past each hour so late readings are included.
func (h *HourlyAggregator) CalculateNextRunTime(delay time.Duration) time.Time {
	now := time.Now()

	nextRun := now.Truncate(time.Hour).Add(time.Hour).Add(delay)
	if now.After(nextRun) {
		nextRun = nextRun.Add(time.Hour)
	}

	return nextRun
}
