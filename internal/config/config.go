// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the server reads from its environment.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr string `env:"ADDR" envDefault:":8080"`

	// DBPath is the SQLite database file. Parent directories are created
	// on startup if missing.
	DBPath string `env:"DB_PATH" envDefault:"data/receipts.db"`

	// TokenSecret signs identity tokens. Required.
	TokenSecret string `env:"TOKEN_SECRET,required"`

	// TokenDuration is how long identity tokens stay valid.
	TokenDuration time.Duration `env:"TOKEN_DURATION" envDefault:"720h"`

	// GatewaySecret authorizes the token-minting endpoint. The gateway in
	// front of the server is what actually authenticates people. Required.
	GatewaySecret string `env:"GATEWAY_SECRET,required"`

	// StaticDir holds receipt item images served under /static/.
	StaticDir string `env:"STATIC_DIR" envDefault:"static"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
