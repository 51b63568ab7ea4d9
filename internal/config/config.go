package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	ListenAddr               string
	DatabaseURL              string
	RedisAddr                string
	RetentionAlertStream     string
	CORSAllowedOrigins       []string
	AgentAPIKey              string
	TicketsPerHour           int
	MessagesPerMinute        int
	MistralAPIURL            string
	MistralAPIKey            string
	MistralModel             string
	MistralFallbackModels    []string
	AIMaxConcurrency         int
	AIMaxRetries             int
	AIBackoffBase            time.Duration
	AIFailureThreshold       int
	AIRecoveryWindow         time.Duration
	S3Region                 string
	S3Endpoint               string
	S3AccessKey              string
	S3SecretKey              string
	S3ExportBucket           string
	ExportRetentionDays      int
	AutoCloseIntervalMinutes int
	AutoCloseIdleDays        int
}

func Load() Config {
	port := envOrDefault("PORT", "8080")

	return Config{
		ListenAddr:               ":" + port,
		DatabaseURL:              databaseURL(),
		RedisAddr:                redisAddr(),
		RetentionAlertStream:     envOrDefault("RETENTION_ALERT_STREAM", "retention-alerts"),
		CORSAllowedOrigins:       parseCSV(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		AgentAPIKey:              os.Getenv("AGENT_API_KEY"),
		TicketsPerHour:           envOrDefaultInt("TICKETS_PER_HOUR", 5),
		MessagesPerMinute:        envOrDefaultInt("MESSAGES_PER_MINUTE", 20),
		MistralAPIURL:            envOrDefault("MISTRAL_API_URL", "https://api.mistral.ai"),
		MistralAPIKey:            os.Getenv("MISTRAL_API_KEY"),
		MistralModel:             envOrDefault("MISTRAL_MODEL", "mistral-medium"),
		MistralFallbackModels:    parseCSV(envOrDefault("MISTRAL_FALLBACK_MODELS", "mistral-small,mistral-tiny")),
		AIMaxConcurrency:         envOrDefaultInt("AI_MAX_CONCURRENCY", 3),
		AIMaxRetries:             envOrDefaultInt("AI_MAX_RETRIES", 2),
		AIBackoffBase:            time.Duration(envOrDefaultFloat("AI_BACKOFF_BASE_SECONDS", 1) * float64(time.Second)),
		AIFailureThreshold:       envOrDefaultInt("AI_FAILURE_THRESHOLD", 4),
		AIRecoveryWindow:         time.Duration(envOrDefaultInt("AI_RECOVERY_SECONDS", 60)) * time.Second,
		S3Region:                 envOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:               os.Getenv("S3_ENDPOINT"),
		S3AccessKey:              envOrDefault("S3_ACCESS_KEY", ""),
		S3SecretKey:              envOrDefault("S3_SECRET_KEY", ""),
		S3ExportBucket:           envOrDefault("S3_EXPORT_BUCKET", ""),
		ExportRetentionDays:      envOrDefaultInt("EXPORT_RETENTION_DAYS", 30),
		AutoCloseIntervalMinutes: envOrDefaultInt("AUTO_CLOSE_INTERVAL_MINUTES", 0),
		AutoCloseIdleDays:        envOrDefaultInt("AUTO_CLOSE_IDLE_DAYS", 7),
	}
}

func databaseURL() string {
	if value := os.Getenv("DATABASE_URL"); value != "" {
		return value
	}

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		// No database configured at all; the caller falls back to the
		// in-memory store.
		return ""
	}

	port := envOrDefault("POSTGRES_PORT", "5432")
	user := envOrDefault("POSTGRES_USER", "freedesk")
	password := envOrDefault("POSTGRES_PASSWORD", "freedesk")
	database := envOrDefault("POSTGRES_DB", "freedesk")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, database)
}

func redisAddr() string {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return ""
	}
	port := envOrDefault("REDIS_PORT", "6379")
	return fmt.Sprintf("%s:%s", host, port)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseCSV(value string) []string {
	values := strings.Split(value, ",")
	result := make([]string, 0, len(values))
	for _, item := range values {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}

	if len(result) == 0 {
		return []string{"*"}
	}
	return result
}

func envOrDefaultInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	var parsed int
	if _, err := fmt.Sscanf(value, "%d", &parsed); err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	var parsed float64
	if _, err := fmt.Sscanf(value, "%f", &parsed); err != nil {
		return fallback
	}
	return parsed
}
