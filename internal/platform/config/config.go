package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process-wide configuration assembled from the environment.
type Config struct {
	Environment string
	LogLevel    string
	Server      Server
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Registry    RegistryConfig
	Reverify    ReverifyConfig
	SearchCache SearchCacheConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the Postgres store. An empty URL means in-memory storage.
type DatabaseConfig struct {
	URL string
}

// RedisConfig selects the Redis search cache. An empty URL means an in-process cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables verification event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// RegistryConfig tunes outbound calls to government registries.
type RegistryConfig struct {
	Timeout       time.Duration
	MaxRetries    int
	RatePerSecond float64
	RateBurst     int
	VABaseURL     string
	NCBaseURL     string
}

// ReverifyConfig drives the scheduled batch re-verification.
type ReverifyConfig struct {
	Interval    time.Duration
	Concurrency int
}

type SearchCacheConfig struct {
	TTL time.Duration
}

const (
	DefaultVABaseURL = "https://dporweb.dpor.virginia.gov"
	DefaultNCBaseURL = "https://portal.nclbgc.org"
)

// FromEnv builds a Config from environment variables so main stays lean.
// Malformed values fall back to their defaults.
func FromEnv() Config {
	return Config{
		Environment: envString("ENVIRONMENT", "development"),
		LogLevel:    envString("LOG_LEVEL", "info"),
		Server: Server{
			Addr:            envString("BOBINATOR_ADDR", ":8080"),
			RequestTimeout:  envDuration("REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_VERIFICATION_TOPIC", "verification.events"),
		},
		Registry: RegistryConfig{
			Timeout:       envDuration("REGISTRY_TIMEOUT", 15*time.Second),
			MaxRetries:    envInt("REGISTRY_MAX_RETRIES", 3),
			RatePerSecond: envFloat("REGISTRY_RATE_PER_SECOND", 1),
			RateBurst:     envInt("REGISTRY_RATE_BURST", 2),
			VABaseURL:     envString("VA_BASE_URL", DefaultVABaseURL),
			NCBaseURL:     envString("NC_BASE_URL", DefaultNCBaseURL),
		},
		Reverify: ReverifyConfig{
			Interval:    envDuration("REVERIFY_INTERVAL", 24*time.Hour),
			Concurrency: envInt("REVERIFY_CONCURRENCY", 4),
		},
		SearchCache: SearchCacheConfig{
			TTL: envDuration("SEARCH_CACHE_TTL", 10*time.Minute),
		},
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}
