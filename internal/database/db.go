package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		filePath := filepath.Join(migrationsDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	return nil
}

// InsertReadingsBatch writes readings in a single transaction
func (db *DB) InsertReadingsBatch(readings []*PlantReading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO plant_readings (
			user_id, online, temperature, humidity, fetched_at, received_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, reading := range readings {
		if _, err := stmt.Exec(
			reading.UserID,
			reading.Online,
			reading.Temperature,
			reading.Humidity,
			reading.FetchedAt,
			reading.ReceivedAt,
		); err != nil {
			return fmt.Errorf("failed to insert reading: %w", err)
		}
	}

	return tx.Commit()
}

// GetLatestReading retrieves the most recent stored reading for a user
func (db *DB) GetLatestReading(userID string) (*PlantReading, error) {
	query := `
		SELECT id, user_id, online, temperature, humidity, fetched_at, received_at
		FROM plant_readings
		WHERE user_id = $1
		ORDER BY fetched_at DESC
		LIMIT 1
	`

	var r PlantReading
	err := db.QueryRow(query, userID).Scan(
		&r.ID,
		&r.UserID,
		&r.Online,
		&r.Temperature,
		&r.Humidity,
		&r.FetchedAt,
		&r.ReceivedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// GetHourlyReadings retrieves hourly aggregates for a user within a range
func (db *DB) GetHourlyReadings(userID string, start, end time.Time) ([]*HourlyReading, error) {
	query := `
		SELECT id, user_id, hour_timestamp, avg_temp, avg_humidity,
		       online_ratio, sample_count, created_at
		FROM hourly_readings
		WHERE user_id = $1 AND hour_timestamp >= $2 AND hour_timestamp < $3
		ORDER BY hour_timestamp
	`

	rows, err := db.Query(query, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []*HourlyReading
	for rows.Next() {
		var r HourlyReading
		if err := rows.Scan(
			&r.ID,
			&r.UserID,
			&r.HourTimestamp,
			&r.AvgTemp,
			&r.AvgHumidity,
			&r.OnlineRatio,
			&r.SampleCount,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		readings = append(readings, &r)
	}

	return readings, rows.Err()
}

// InsertAlertLog records a delivery attempt outcome
func (db *DB) InsertAlertLog(alert *AlertLog) error {
	query := `
		INSERT INTO alert_log (
			id, user_id, channel, direction, value, band_min, band_max,
			recipient, status, fired_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := db.Exec(
		query,
		alert.ID,
		alert.UserID,
		alert.Channel,
		alert.Direction,
		alert.Value,
		alert.BandMin,
		alert.BandMax,
		alert.Recipient,
		alert.Status,
		alert.FiredAt,
	)
	return err
}
