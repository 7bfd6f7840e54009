package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Gateway  GatewayConfig
	Sweep    SweepConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	TicketPaid    string
	TicketFailed  string
	TicketExpired string
	TicketReview  string
}

// GatewayConfig selects and configures the payment gateway adapter.
// Provider is "hosted" (HMAC hosted-checkout client) or "stripe".
type GatewayConfig struct {
	Provider       string
	BaseURL        string
	ClientID       string
	Secret         string
	RequestTimeout time.Duration
	RetryMax       int
	RetryBackoff   time.Duration
}

type SweepConfig struct {
	Interval        time.Duration
	CheckoutTimeout time.Duration
	LockTTL         time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "registration_user"),
			Password:     getEnv("DB_PASSWORD", "registration_pass"),
			Database:     getEnv("DB_NAME", "registration"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				TicketPaid:    getEnv("KAFKA_TOPIC_PAID", "ticket-paid"),
				TicketFailed:  getEnv("KAFKA_TOPIC_FAILED", "ticket-failed"),
				TicketExpired: getEnv("KAFKA_TOPIC_EXPIRED", "ticket-expired"),
				TicketReview:  getEnv("KAFKA_TOPIC_REVIEW", "ticket-review"),
			},
		},
		Gateway: GatewayConfig{
			Provider:       getEnv("GATEWAY_PROVIDER", "hosted"),
			BaseURL:        getEnv("GATEWAY_BASE_URL", "http://localhost:9090"),
			ClientID:       getEnv("GATEWAY_CLIENT_ID", ""),
			Secret:         getEnv("GATEWAY_SECRET", ""),
			RequestTimeout: time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 10)) * time.Second,
			RetryMax:       getEnvInt("GATEWAY_RETRY_MAX", 3),
			RetryBackoff:   time.Duration(getEnvInt("GATEWAY_RETRY_BACKOFF_MS", 200)) * time.Millisecond,
		},
		Sweep: SweepConfig{
			Interval:        time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
			CheckoutTimeout: time.Duration(getEnvInt("CHECKOUT_TIMEOUT_MINUTES", 30)) * time.Minute,
			LockTTL:         time.Duration(getEnvInt("SWEEP_LOCK_TTL_SECONDS", 55)) * time.Second,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
