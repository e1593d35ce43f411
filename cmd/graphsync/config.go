package main

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the connection settings of the command. Settings come from
// an optional YAML file; environment variables override them.
type Config struct {
	Dialect   string        `yaml:"dialect" env:"GRAPHSYNC_DIALECT" env-default:"postgres"`
	DSN       string        `yaml:"dsn" env:"GRAPHSYNC_DSN"`
	SlowQuery time.Duration `yaml:"slow_query" env:"GRAPHSYNC_SLOW_QUERY" env-default:"200ms"`
	Debug     bool          `yaml:"debug" env:"GRAPHSYNC_DEBUG"`
}

func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}
