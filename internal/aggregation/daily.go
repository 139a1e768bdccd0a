package aggregation

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantpulse/plant-server/internal/database"
)

// DailyAggregator derives per-day extremes from the hourly rollups.
type DailyAggregator struct {
	db     *database.DB
	logger zerolog.Logger
}

// NewDailyAggregator creates a new daily aggregator
func NewDailyAggregator(db *database.DB, logger zerolog.Logger) *DailyAggregator {
	return &DailyAggregator{db: db, logger: logger}
}

// Aggregate performs daily aggregation for the specified date
func (d *DailyAggregator) Aggregate(targetDate time.Time) error {
	date := targetDate.Truncate(24 * time.Hour)

	query := `
		INSERT INTO daily_summaries (
			user_id, date,
			min_temp, max_temp,
			min_humidity, max_humidity
		)
		SELECT
			user_id,
			$1::date AS date,
			MIN(avg_temp) AS min_temp,
			MAX(avg_temp) AS max_temp,
			MIN(avg_humidity) AS min_humidity,
			MAX(avg_humidity) AS max_humidity
		FROM
			hourly_readings
		WHERE
			DATE(hour_timestamp) = $1::date
		GROUP BY
			user_id
		ON CONFLICT (user_id, date) DO UPDATE
		SET
			min_temp = EXCLUDED.min_temp,
			max_temp = EXCLUDED.max_temp,
			min_humidity = EXCLUDED.min_humidity,
			max_humidity = EXCLUDED.max_humidity
	`

	result, err := d.db.Exec(query, date)
	if err != nil {
		return fmt.Errorf("failed to aggregate daily data: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	d.logger.Info().
		Str("date", date.Format("2006-01-02")).
		Int64("users", rowsAffected).
		Msg("daily aggregation completed")

	return nil
}

// AggregatePreviousDay aggregates the previous full day
func (d *DailyAggregator) AggregatePreviousDay() error {
	yesterday := time.Now().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	return d.Aggregate(yesterday)
}

// CalculateNextRunTime calculates when the daily aggregation should next run
// (a fixed "HH:MM" time of day).
func (d *DailyAggregator) CalculateNextRunTime(timeOfDay string) (time.Time, error) {
	now := time.Now()

	var hour, minute int
	if _, err := fmt.Sscanf(timeOfDay, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, fmt.Errorf("invalid time format: %s (expected HH:MM)", timeOfDay)
	}

	todayRun := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(todayRun) {
		return todayRun.AddDate(0, 0, 1), nil
	}

	return todayRun, nil
}
