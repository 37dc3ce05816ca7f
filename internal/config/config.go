package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN             string
	Environment       string
	HTTPAddr          string
	MigrationsDir     string
	TaskPollEvery     time.Duration
	HorizonDays       int
	MaxDailyBatch     int
	MaxWeeklyBatch    int
	MaxMonthlyBatch   int
	TaskRetentionDays int
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work the same.
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		DBDSN:             os.Getenv("DB_DSN"),
		Environment:       getEnv("ENV", "development"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		MigrationsDir:     getEnv("MIGRATIONS_DIR", "migrations"),
		TaskPollEvery:     getEnvDuration("TASK_POLL_INTERVAL", 15*time.Second),
		HorizonDays:       getEnvInt("GENERATION_HORIZON_DAYS", 28),
		MaxDailyBatch:     getEnvInt("MAX_DAILY_BATCH", 31),
		MaxWeeklyBatch:    getEnvInt("MAX_WEEKLY_BATCH", 8),
		MaxMonthlyBatch:   getEnvInt("MAX_MONTHLY_BATCH", 3),
		TaskRetentionDays: getEnvInt("TASK_RETENTION_DAYS", 30),
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
