package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Env is the serving configuration read from the environment.
type Env struct {
	Model         string        `env:"SHOPNLP_MODEL" envDefault:"models/best"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"LOG_FORMAT" envDefault:"json"`
	Port          int           `env:"PORT" envDefault:"5001"`
	MaxConcurrent int           `env:"SHOPNLP_MAX_CONCURRENT" envDefault:"64"`
	CacheSize     int           `env:"SHOPNLP_CACHE_SIZE" envDefault:"500"`
	CacheTTL      time.Duration `env:"SHOPNLP_CACHE_TTL" envDefault:"60s"`
}

// LoadEnv parses the environment, after loading envFile when it is set.
func LoadEnv(envFile string) (*Env, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Env{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
