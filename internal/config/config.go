package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	RabbitMQ  RabbitMQConfig
	Worker    WorkerConfig
	Poller    PollerConfig
	Retention RetentionConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RabbitMQConfig configures the optional event ingress. The ingress is
// enabled when URL or Host is set; without it events only arrive through the
// in-process trigger path.
type RabbitMQConfig struct {
	URL           string
	Host          string
	Port          string
	User          string
	Password      string
	VHost         string
	SourceQueue   string
	PrefetchCount int
}

type WorkerConfig struct {
	PoolSize            int
	HTTPTimeout         time.Duration
	MaxResponseBodySize int
	LeaseTTL            time.Duration
}

type PollerConfig struct {
	Interval  time.Duration
	BatchSize int
}

type RetentionConfig struct {
	CronSpec string
	MaxAge   time.Duration
}

func Load() (*Config, error) {
	var missing []string

	get := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	config := &Config{
		Server: ServerConfig{
			Port: get("SERVER_PORT"),
			Host: get("SERVER_HOST"),
		},
		Database: DatabaseConfig{
			Host:     get("DB_HOST"),
			Port:     get("DB_PORT"),
			User:     get("DB_USER"),
			Password: get("DB_PASSWORD"),
			DBName:   get("DB_NAME"),
			SSLMode:  get("DB_SSLMODE"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:           os.Getenv("RABBITMQ_URL"),
			Host:          os.Getenv("RABBITMQ_HOST"),
			Port:          os.Getenv("RABBITMQ_PORT"),
			User:          os.Getenv("RABBITMQ_USER"),
			Password:      os.Getenv("RABBITMQ_PASSWORD"),
			VHost:         os.Getenv("RABBITMQ_VHOST"),
			SourceQueue:   getDefault("RABBITMQ_SOURCE_QUEUE", "platform.events"),
			PrefetchCount: getInt("RABBITMQ_PREFETCH_COUNT", 32),
		},
		Worker: WorkerConfig{
			PoolSize:            getInt("WORKER_POOL_SIZE", 16),
			HTTPTimeout:         getDuration("WORKER_HTTP_TIMEOUT_SECONDS", 30*time.Second),
			MaxResponseBodySize: getInt("WORKER_MAX_RESPONSE_BODY_SIZE", 4096),
			LeaseTTL:            getDuration("WORKER_LEASE_TTL_SECONDS", 120*time.Second),
		},
		Poller: PollerConfig{
			Interval:  getDuration("POLLER_INTERVAL_SECONDS", 5*time.Second),
			BatchSize: getInt("POLLER_BATCH_SIZE", 100),
		},
		Retention: RetentionConfig{
			CronSpec: getDefault("RETENTION_CRON", "0 3 * * *"),
			MaxAge:   getDuration("RETENTION_MAX_AGE_SECONDS", 30*24*time.Hour),
		},
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	// A lease must outlive the longest possible attempt, or another poller
	// instance could reclaim a row whose HTTP request is still on the wire
	// and double-dispatch it.
	if config.Worker.LeaseTTL <= config.Worker.HTTPTimeout {
		return nil, fmt.Errorf("worker lease TTL (%s) must exceed the HTTP timeout (%s)",
			config.Worker.LeaseTTL, config.Worker.HTTPTimeout)
	}

	return config, nil
}

// IngressEnabled reports whether the message-queue event ingress should run.
func (c *RabbitMQConfig) IngressEnabled() bool {
	return c.URL != "" || c.Host != ""
}

func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s%s",
		c.User, c.Password, c.Host, c.Port, c.VHost)
}

// ConnectionString returns a DSN string for GORM.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

// MigrationURL returns the postgres URL the migration runner dials.
func (c *DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func getDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(val)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
