package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every runtime setting so main stays lean. All values come
// from environment variables with development defaults.
type Config struct {
	Server    Server
	Postgres  Postgres
	Redis     Redis
	Kafka     Kafka
	Orders    Orders
	Scheduler Scheduler
	Barcode   Barcode
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Postgres captures database connection configuration. An empty DSN means the
// service runs on in-memory stores (development and unit-test mode).
type Postgres struct {
	DSN string
}

// Redis captures the dedupe-cache connection. Empty URL disables the cache;
// the listener then relies solely on the database idempotency constraint.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DedupeTTL    time.Duration
}

// Kafka captures broker addresses and the topics the core publishes and
// consumes.
type Kafka struct {
	Brokers       []string
	ConsumerGroup string
	ResultsTopic  string
	EventsTopic   string
	ResyncTopic   string
}

// Orders configures the upstream order-service collaborator and the fallback
// policy when it is unreachable: skip the sample or proceed with an
// auto-created placeholder order.
type Orders struct {
	BaseURL        string
	RequestTimeout time.Duration
	AutoCreate     bool
}

// Scheduler configures the stuck-order reconciliation loop.
type Scheduler struct {
	Interval     time.Duration
	StuckTimeout time.Duration
	BatchLimit   int
}

// Barcode bounds the accepted sample barcode length window.
type Barcode struct {
	MinLength int
	MaxLength int
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envOr("LABFLOW_ADDR", ":8080"),
			JWTSigningKey: envOr("LABFLOW_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: Postgres{
			DSN: os.Getenv("LABFLOW_POSTGRES_DSN"),
		},
		Redis: Redis{
			URL:          os.Getenv("LABFLOW_REDIS_URL"),
			PoolSize:     envInt("LABFLOW_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("LABFLOW_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("LABFLOW_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("LABFLOW_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("LABFLOW_REDIS_WRITE_TIMEOUT", 3*time.Second),
			DedupeTTL:    envDuration("LABFLOW_REDIS_DEDUPE_TTL", 24*time.Hour),
		},
		Kafka: Kafka{
			Brokers:       splitList(envOr("LABFLOW_KAFKA_BROKERS", "localhost:9092")),
			ConsumerGroup: envOr("LABFLOW_KAFKA_CONSUMER_GROUP", "labflow-result-ingestion"),
			ResultsTopic:  envOr("LABFLOW_KAFKA_RESULTS_TOPIC", "lab.results.published"),
			EventsTopic:   envOr("LABFLOW_KAFKA_EVENTS_TOPIC", "lab.workflow.events"),
			ResyncTopic:   envOr("LABFLOW_KAFKA_RESYNC_TOPIC", "lab.results.resync"),
		},
		Orders: Orders{
			BaseURL:        envOr("LABFLOW_ORDER_SERVICE_URL", "http://localhost:8081"),
			RequestTimeout: envDuration("LABFLOW_ORDER_SERVICE_TIMEOUT", 3*time.Second),
			AutoCreate:     envOr("LABFLOW_ORDER_AUTOCREATE_POLICY", "placeholder") == "placeholder",
		},
		Scheduler: Scheduler{
			Interval:     envDuration("LABFLOW_RESYNC_INTERVAL", time.Minute),
			StuckTimeout: envDuration("LABFLOW_RESYNC_STUCK_TIMEOUT", 30*time.Minute),
			BatchLimit:   envInt("LABFLOW_RESYNC_BATCH_LIMIT", 100),
		},
		Barcode: Barcode{
			MinLength: envInt("LABFLOW_BARCODE_MIN_LENGTH", 6),
			MaxLength: envInt("LABFLOW_BARCODE_MAX_LENGTH", 32),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
