package bridge

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// RedisConfig holds connection settings for the Redis pub/sub bridge.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Prefix   string `env:"REDIS_RELAY_PREFIX" envDefault:"sosnet:relay:"`
}

// DefaultRedisConfig points at a local Redis.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "sosnet:relay:",
	}
}

// LoadRedisConfig reads the bridge settings from the environment.
func LoadRedisConfig() (*RedisConfig, error) {
	var cfg RedisConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse redis env: %w", err)
	}
	return &cfg, nil
}
