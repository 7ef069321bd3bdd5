package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ClientConfig holds the endpoints and timings used by a chat session.
type ClientConfig struct {
	APIURL            string        `env:"API_URL" envDefault:"http://localhost:8000/api"`
	SocketURL         string        `env:"SOCKET_URL" envDefault:"ws://localhost:8000/ws"`
	ReconnectAttempts int           `env:"SOCKET_RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectDelay    time.Duration `env:"SOCKET_RECONNECT_DELAY" envDefault:"1s"`
	RequestTimeout    time.Duration `env:"API_REQUEST_TIMEOUT" envDefault:"15s"`
	ScrollDelay       time.Duration `env:"CHAT_SCROLL_DELAY" envDefault:"100ms"`
}

// DefaultClientConfig returns the local development configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		APIURL:            "http://localhost:8000/api",
		SocketURL:         "ws://localhost:8000/ws",
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		RequestTimeout:    15 * time.Second,
		ScrollDelay:       100 * time.Millisecond,
	}
}

// LoadClient reads client configuration from the environment.
// Unset variables fall back to the local development endpoints.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse client env: %w", err)
	}
	return &cfg, nil
}
