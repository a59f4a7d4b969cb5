package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort          = "8080"
	defaultStore         = "postgres"
	defaultDispatchDelay = time.Second
	defaultMaxWorkers    = 4
	defaultBatchSize     = 50
	defaultMaxQueueSize  = 100
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
)

type Config struct {
	DBSource     string
	Port         string
	StoreBackend string // postgres|memory

	DispatchDelay time.Duration
	MaxWorkers    int
	BatchSize     int
	MaxQueueSize  int

	KafkaBrokers []string

	LogLevel  string
	LogFormat string // text|json
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DBSource:     os.Getenv("DB_SOURCE"),
		Port:         valueOrDefault("SERVER_PORT", defaultPort),
		StoreBackend: strings.ToLower(valueOrDefault("STORE", defaultStore)),
		LogLevel:     valueOrDefault("LOG_LEVEL", defaultLogLevel),
		LogFormat:    valueOrDefault("LOG_FORMAT", defaultLogFormat),
	}

	switch cfg.StoreBackend {
	case "postgres":
		if cfg.DBSource == "" {
			return nil, fmt.Errorf("DB_SOURCE environment variable is required")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unknown STORE value %q", cfg.StoreBackend)
	}

	delay, err := parseDurationWithDefault("DISPATCH_DELAY", defaultDispatchDelay)
	if err != nil {
		return nil, err
	}
	cfg.DispatchDelay = delay

	if cfg.MaxWorkers, err = parsePositiveInt("MAX_WORKERS", defaultMaxWorkers); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = parsePositiveInt("BATCH_SIZE", defaultBatchSize); err != nil {
		return nil, err
	}
	if cfg.MaxQueueSize, err = parsePositiveInt("MAX_QUEUE_SIZE", defaultMaxQueueSize); err != nil {
		return nil, err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return n, nil
}
