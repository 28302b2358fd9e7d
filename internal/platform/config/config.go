package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Server captures process-level configuration; main stays lean.
type Server struct {
	Addr        string `env:"TERRANE_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"TERRANE_METRICS_ADDR" envDefault:":9090"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/terrane?sslmode=disable"`
	LogDebug    bool   `env:"TERRANE_LOG_DEBUG"`

	// After-hook executor sizing.
	DispatchWorkers int `env:"TERRANE_DISPATCH_WORKERS" envDefault:"4"`
	DispatchQueue   int `env:"TERRANE_DISPATCH_QUEUE" envDefault:"256"`
}

// FromEnv parses the server configuration from environment variables.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
