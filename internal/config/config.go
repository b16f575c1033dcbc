package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all runtime settings, loaded once at startup
type Config struct {
	Port     string
	BasePath string

	DB DatabaseConfig

	RabbitMQ RabbitMQConfig

	// Automation backend that drives the browser profiles
	AutomationBaseURL string
	SendTimeout       time.Duration

	// Worker behavior
	WorkerPollInterval time.Duration

	// Scheduler cadences
	ScheduleTickInterval time.Duration
	WindowTickInterval   time.Duration
	ArchiveTickInterval  time.Duration

	// Retention
	ArchiveAfterDays  int
	LogRetentionDays  int
	StaleItemTimeout  time.Duration
	AutoResumeMaxAge  time.Duration
	ProgressPushEvery time.Duration
}

// DatabaseConfig holds PostgreSQL connection parameters
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RabbitMQConfig holds the notification broker connection parameters
type RabbitMQConfig struct {
	Host string
	Port string
	User string
	Pass string
}

// URL builds the AMQP connection string
func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Pass, r.Host, r.Port)
}

// Load reads configuration from the environment (.env supported)
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	return &Config{
		Port:     getEnv("PORT", "8080"),
		BasePath: getEnv("BASE_PATH", "/nova-sender-api"),
		DB: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnv("DB_PORT", ""),
			User:     getEnv("DB_USER", ""),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", ""),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RabbitMQ: RabbitMQConfig{
			Host: getEnv("RABBITMQ_HOST", "localhost"),
			Port: getEnv("RABBITMQ_PORT", "5672"),
			User: getEnv("RABBITMQ_USER", "guest"),
			Pass: getEnv("RABBITMQ_PASS", "guest"),
		},
		AutomationBaseURL:    getEnv("AUTOMATION_BASE_URL", "http://localhost:3555"),
		SendTimeout:          getEnvAsDuration("SEND_TIMEOUT", 5*time.Minute),
		WorkerPollInterval:   getEnvAsDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		ScheduleTickInterval: getEnvAsDuration("SCHEDULE_TICK_INTERVAL", time.Minute),
		WindowTickInterval:   getEnvAsDuration("WINDOW_TICK_INTERVAL", time.Minute),
		ArchiveTickInterval:  getEnvAsDuration("ARCHIVE_TICK_INTERVAL", 6*time.Hour),
		ArchiveAfterDays:     getEnvAsInt("ARCHIVE_AFTER_DAYS", 30),
		LogRetentionDays:     getEnvAsInt("LOG_RETENTION_DAYS", 7),
		StaleItemTimeout:     getEnvAsDuration("STALE_ITEM_TIMEOUT", 15*time.Minute),
		AutoResumeMaxAge:     getEnvAsDuration("AUTO_RESUME_MAX_AGE", 12*time.Hour),
		ProgressPushEvery:    getEnvAsDuration("PROGRESS_PUSH_EVERY", 5*time.Second),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
