package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort   string
	LogLevel  string
	LogFormat string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	KafkaBrokers           string
	KafkaClientID          string
	KafkaGroupID           string
	KafkaResponseGroupID   string
	KafkaTopicPartitions   string
	KafkaReplicationFactor string
	EventDrivenEnabled     string

	EngineConcurrency   string
	GatewayPollInterval string
	GatewayMaxAttempts  string
	CorrelationTTL      string
	ReaperInterval      string

	IPAPIBaseURL string
	IPAPITimeout string
}

func Load() *Config {
	return &Config{
		AppPort:   getEnv("APP_PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "coupondb"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		KafkaBrokers:           getEnv("KAFKA_BROKERS", "kafka:9092"),
		KafkaClientID:          getEnv("KAFKA_CLIENT_ID", "coupon-service"),
		KafkaGroupID:           getEnv("KAFKA_GROUP_ID", "coupon-engine"),
		KafkaResponseGroupID:   getEnv("KAFKA_RESPONSE_GROUP_ID", "coupon-gateway"),
		KafkaTopicPartitions:   getEnv("KAFKA_TOPIC_PARTITIONS", "3"),
		KafkaReplicationFactor: getEnv("KAFKA_REPLICATION_FACTOR", "1"),
		EventDrivenEnabled:     getEnv("EVENT_DRIVEN_ENABLED", "true"),

		EngineConcurrency:   getEnv("ENGINE_CONCURRENCY", "3"),
		GatewayPollInterval: getEnv("GATEWAY_POLL_INTERVAL", "100ms"),
		GatewayMaxAttempts:  getEnv("GATEWAY_MAX_ATTEMPTS", "50"),
		CorrelationTTL:      getEnv("CORRELATION_TTL", "24h"),
		ReaperInterval:      getEnv("REAPER_INTERVAL", "1h"),

		IPAPIBaseURL: getEnv("IP_API_BASE_URL", "http://ip-api.com"),
		IPAPITimeout: getEnv("IP_API_TIMEOUT", "3s"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) TopicPartitions() int {
	return parseInt(c.KafkaTopicPartitions, 3)
}

func (c *Config) ReplicationFactor() int16 {
	value := parseInt(c.KafkaReplicationFactor, 1)
	return int16(value)
}

func (c *Config) Concurrency() int {
	return parseInt(c.EngineConcurrency, 3)
}

func (c *Config) PollInterval() time.Duration {
	return parseDuration(c.GatewayPollInterval, 100*time.Millisecond)
}

func (c *Config) MaxAttempts() int {
	return parseInt(c.GatewayMaxAttempts, 50)
}

func (c *Config) TTL() time.Duration {
	return parseDuration(c.CorrelationTTL, 24*time.Hour)
}

func (c *Config) Reaper() time.Duration {
	return parseDuration(c.ReaperInterval, time.Hour)
}

func (c *Config) LookupTimeout() time.Duration {
	return parseDuration(c.IPAPITimeout, 3*time.Second)
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
