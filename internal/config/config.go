package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	PostgresURL      string
	DBSchema         string
	MigrationsPath   string
	KafkaBrokers     []string
	OrderEventsTopic string
	RedisURL         string
	RedisPassword    string
	RedisDB          int
	CatalogCacheTTL  time.Duration
	JWTSecret        string
	TokenTTL         time.Duration
	EmailServiceURL  string
	OTLPEndpoint     string
	TraceSampleRatio float64
	ServiceVersion   string
}

// Load reads the environment, seeded from a .env file when one exists.
func Load(defaultPort string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return &Config{
		Port:             getEnv("PORT", defaultPort),
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		DBSchema:         getEnv("DB_SCHEMA", "bookstore"),
		MigrationsPath:   getEnv("MIGRATIONS_PATH", "file://migrations"),
		KafkaBrokers:     getEnvAsList("KAFKA_BROKERS"),
		OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order.placed"),
		RedisURL:         os.Getenv("REDIS_URL"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),
		CatalogCacheTTL:  getEnvAsDuration("CATALOG_CACHE_TTL", 5*time.Minute),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		TokenTTL:         getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		EmailServiceURL:  os.Getenv("EMAIL_SERVICE_URL"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio: getEnvAsFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		ServiceVersion:   getEnv("SERVICE_VERSION", "0.1.0"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
