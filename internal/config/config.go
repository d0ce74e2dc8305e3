// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr     string        `env:"LISTEN_ADDR" envDefault:":8080"`
	CodeforcesBase string        `env:"CODEFORCES_API_BASE" envDefault:"https://codeforces.com/api"`
	VerifyTimeout  time.Duration `env:"VERIFY_TIMEOUT" envDefault:"15s"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1s"`
	Debug          bool          `env:"DEBUG" envDefault:"false"`
}

func Load() (Config, error) {
	// Real env vars win over .env; a missing file is fine.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
