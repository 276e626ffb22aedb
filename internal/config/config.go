// Package config loads the engine configuration from YAML with production
// defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stridelabs/trainpulse/internal/engine/guardrails"
	"github.com/stridelabs/trainpulse/internal/engine/snapshot"
	"github.com/stridelabs/trainpulse/internal/engine/stats"
	"github.com/stridelabs/trainpulse/internal/events"
	"github.com/stridelabs/trainpulse/internal/persistence"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig holds postgres settings. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN          string        `yaml:"dsn"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// RedisConfig holds cache settings. An empty address disables caching.
type RedisConfig struct {
	Addr string        `yaml:"addr"`
	TTL  time.Duration `yaml:"ttl"`
}

// Config is the root configuration.
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Database   DatabaseConfig       `yaml:"database"`
	Redis      RedisConfig          `yaml:"redis"`
	Webhook    events.WebhookConfig `yaml:"webhook"`
	Snapshot   snapshot.Config      `yaml:"snapshot"`
	Guardrails guardrails.Config    `yaml:"guardrails"`
	Stats      stats.Config         `yaml:"stats"`
	// TrendWindow is the number of estimates regressed for the performance
	// trend.
	TrendWindow int `yaml:"trend_window"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			QueryTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			TTL: 60 * time.Second,
		},
		Webhook:     events.DefaultWebhookConfig(""),
		Snapshot:    snapshot.DefaultConfig(),
		Guardrails:  guardrails.DefaultConfig(),
		Stats:       stats.DefaultConfig(),
		TrendWindow: 8,
	}
}

// Load reads path over the defaults. A missing path returns the defaults
// unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Stats.HighPriorityRisk < 0 || c.Stats.HighPriorityRisk > 1 {
		return fmt.Errorf("high priority risk %.2f out of [0,1]", c.Stats.HighPriorityRisk)
	}
	for action := range c.Stats.SLAWindows {
		switch action {
		case persistence.ActionReduceVolume, persistence.ActionFlagPain,
			persistence.ActionMissedCheckin, persistence.ActionRecoveryFocus:
		default:
			return fmt.Errorf("unknown action type %q in sla_windows", action)
		}
	}
	return nil
}
