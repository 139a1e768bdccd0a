package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel    string
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Telemetry   TelemetryConfig
	Thresholds  ThresholdConfig
	Alerting    AlertingConfig
	Assistant   AssistantConfig
	HTTP        HTTPConfig
	Aggregation AggregationConfig
	SMTP        SMTPConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicReadings string
	TopicAlerts   string
	NumPartitions int
}

// TelemetryConfig describes the remote telemetry cloud that device tokens
// authenticate against.
type TelemetryConfig struct {
	BaseURL        string
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

// ThresholdConfig holds the normal [min, max] band per sensor channel.
type ThresholdConfig struct {
	TempMin     float64
	TempMax     float64
	HumidityMin float64
	HumidityMax float64
}

type AlertingConfig struct {
	Cooldown  time.Duration
	NoticeTTL time.Duration
}

type AssistantConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Prompt      string
}

type HTTPConfig struct {
	Port        int
	MaxSessions int
}

type AggregationConfig struct {
	HourlyDelay time.Duration
	DailyTime   string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "plant_user"),
			Password: getEnv("DB_PASSWORD", "plant_pass"),
			DBName:   getEnv("DB_NAME", "plant_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicReadings: getEnv("KAFKA_TOPIC_READINGS", "plant.readings.raw"),
			TopicAlerts:   getEnv("KAFKA_TOPIC_ALERTS", "plant.alerts"),
			NumPartitions: getEnvAsInt("KAFKA_NUM_PARTITIONS", 10),
		},
		Telemetry: TelemetryConfig{
			BaseURL:        getEnv("TELEMETRY_BASE_URL", "https://blynk.cloud/external/api"),
			PollInterval:   getEnvAsDuration("TELEMETRY_POLL_INTERVAL", 5*time.Second),
			RequestTimeout: getEnvAsDuration("TELEMETRY_REQUEST_TIMEOUT", 10*time.Second),
		},
		Thresholds: ThresholdConfig{
			TempMin:     getEnvAsFloat("THRESHOLD_TEMP_MIN", 15),
			TempMax:     getEnvAsFloat("THRESHOLD_TEMP_MAX", 73),
			HumidityMin: getEnvAsFloat("THRESHOLD_HUMIDITY_MIN", 30),
			HumidityMax: getEnvAsFloat("THRESHOLD_HUMIDITY_MAX", 80),
		},
		Alerting: AlertingConfig{
			Cooldown:  getEnvAsDuration("ALERT_COOLDOWN", 10*time.Minute),
			NoticeTTL: getEnvAsDuration("NOTICE_TTL", 10*time.Minute),
		},
		Assistant: AssistantConfig{
			BaseURL:     getEnv("ASSISTANT_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			APIKey:      getEnv("ASSISTANT_API_KEY", ""),
			Model:       getEnv("ASSISTANT_MODEL", "gemini-1.5-flash"),
			Temperature: getEnvAsFloat("ASSISTANT_TEMPERATURE", 0.7),
			Prompt:      getEnv("ASSISTANT_PROMPT", "You are a plant-care assistant for a monitored greenhouse."),
		},
		HTTP: HTTPConfig{
			Port:        getEnvAsInt("HTTP_PORT", 8080),
			MaxSessions: getEnvAsInt("MAX_SESSIONS", 1000),
		},
		Aggregation: AggregationConfig{
			HourlyDelay: getEnvAsDuration("AGGREGATION_HOURLY_DELAY", 5*time.Minute),
			DailyTime:   getEnv("AGGREGATION_DAILY_TIME", "00:05"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "plant-server@example.com"),
		},
	}

	if err := config.Thresholds.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects inverted bands before any evaluator can see them.
func (t ThresholdConfig) Validate() error {
	if t.TempMin >= t.TempMax {
		return fmt.Errorf("temperature band invalid: min %.2f must be below max %.2f", t.TempMin, t.TempMax)
	}
	if t.HumidityMin >= t.HumidityMax {
		return fmt.Errorf("humidity band invalid: min %.2f must be below max %.2f", t.HumidityMin, t.HumidityMax)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
