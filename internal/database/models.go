package database

import (
	"time"
)

// PlantReading is one stored sensor snapshot.
type PlantReading struct {
	ID          int64
	UserID      string
	Online      bool
	Temperature *float64
	Humidity    *float64
	FetchedAt   time.Time
	ReceivedAt  time.Time
}

// HourlyReading is an hourly aggregate per user. Served as-is by the
// history endpoint, hence the JSON tags.
type HourlyReading struct {
	ID            int64     `json:"-"`
	UserID        string    `json:"user_id"`
	HourTimestamp time.Time `json:"hour"`
	AvgTemp       *float64  `json:"avg_temperature"`
	AvgHumidity   *float64  `json:"avg_humidity"`
	OnlineRatio   *float64  `json:"online_ratio"`
	SampleCount   int       `json:"sample_count"`
	CreatedAt     time.Time `json:"-"`
}

// DailySummary holds per-day extremes per user.
type DailySummary struct {
	ID          int64
	UserID      string
	Date        time.Time
	MinTemp     *float64
	MaxTemp     *float64
	MinHumidity *float64
	MaxHumidity *float64
	CreatedAt   time.Time
}

// AlertLog records one alert that reached the delivery channel.
type AlertLog struct {
	ID        string // uuid assigned at dispatch
	UserID    string
	Channel   string
	Direction string
	Value     float64
	BandMin   float64
	BandMax   float64
	Recipient string
	Status    string
	FiredAt   time.Time
	CreatedAt time.Time
}

const (
	AlertStatusDelivered = "DELIVERED"
	AlertStatusFailed    = "FAILED"
)
