package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// RelayConfig holds realtime relay server configuration.
type RelayConfig struct {
	Addr            string        `env:"RELAY_ADDR" envDefault:":8000"`
	MaxConnections  int           `env:"RELAY_MAX_CONNECTIONS" envDefault:"1000"`
	WriteTimeout    time.Duration `env:"RELAY_WRITE_TIMEOUT" envDefault:"10s"`
	ReadBufferSize  int           `env:"RELAY_READ_BUFFER" envDefault:"1024"`
	WriteBufferSize int           `env:"RELAY_WRITE_BUFFER" envDefault:"1024"`
	SendBuffer      int           `env:"RELAY_SEND_BUFFER" envDefault:"256"`
	FramesPerSecond int           `env:"RELAY_FRAMES_PER_SECOND" envDefault:"40"`
	FrameBurst      int           `env:"RELAY_FRAME_BURST" envDefault:"80"`
	EnableBridge    bool          `env:"RELAY_ENABLE_BRIDGE" envDefault:"true"`
}

// DefaultRelayConfig returns the default relay configuration.
func DefaultRelayConfig() *RelayConfig {
	return &RelayConfig{
		Addr:            ":8000",
		MaxConnections:  1000,
		WriteTimeout:    10 * time.Second,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		FramesPerSecond: 40,
		FrameBurst:      80,
		EnableBridge:    true,
	}
}

// LoadRelay reads relay configuration from the environment.
func LoadRelay() (*RelayConfig, error) {
	var cfg RelayConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse relay env: %w", err)
	}
	return &cfg, nil
}
