// Package config parses service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Service is the configuration surface shared by every service binary.
type Service struct {
	ServiceName string `env:"SERVICE_NAME"`
	Port        int    `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL,notEmpty"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"waypoint.events"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID"`

	OutboxBatchSize  int `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxPollingMS  int `env:"OUTBOX_POLLING_MS" envDefault:"500"`
	CacheConcurrency int `env:"CACHE_MAX_CONCURRENCY" envDefault:"500"`

	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"db/migrations"`
}

// Load parses the environment into a Service config for the named service.
// SERVICE_NAME and KAFKA_GROUP_ID default to the binary's service name.
func Load(service string) (*Service, error) {
	cfg := &Service{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = service
	}
	if cfg.KafkaGroupID == "" {
		cfg.KafkaGroupID = service
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Service) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be a valid TCP port (got %d)", c.Port)
	}
	if c.OutboxBatchSize < 1 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive (got %d)", c.OutboxBatchSize)
	}
	if c.OutboxPollingMS < 1 {
		return fmt.Errorf("OUTBOX_POLLING_MS must be positive (got %d)", c.OutboxPollingMS)
	}
	if c.CacheConcurrency < 1 {
		return fmt.Errorf("CACHE_MAX_CONCURRENCY must be positive (got %d)", c.CacheConcurrency)
	}
	return nil
}

// OutboxPolling is OUTBOX_POLLING_MS as a duration.
func (c *Service) OutboxPolling() time.Duration {
	return time.Duration(c.OutboxPollingMS) * time.Millisecond
}
