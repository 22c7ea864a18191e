package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "raffle.config"

const envPrefix = "RAFFLE"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" envconfig:"RAFFLE_DATABASE_DRIVER"`
	Dsn    string `yaml:"dsn"    envconfig:"RAFFLE_DATABASE_DSN"`
}

type Config struct {
	BindAddr       string         `yaml:"bindAddr"       split_words:"true"`
	Port           uint           `yaml:"port"`
	Database       DatabaseConfig `yaml:"database"`
	SeedSealingKey string         `yaml:"seedSealingKey" split_words:"true"`
	Actor          string         `yaml:"actor"`
	Verbose        bool           `yaml:"verbose"`
	MetricsEnabled bool           `yaml:"metricsEnabled" split_words:"true"`
}

var globalConfig = &Config{
	BindAddr: "0.0.0.0",
	Port:     8080,
	Database: DatabaseConfig{
		Driver: "sqlite",
		Dsn:    ".raffle/raffle.sqlite",
	},
	Actor:          "system",
	MetricsEnabled: true,
}

// LoadConfig layers the defaults, the optional YAML file and the RAFFLE_*
// environment, in that order.
func LoadConfig(configFile string) (*Config, error) {
	cfg := *globalConfig
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.Dsn == "" {
		return errors.New("postgres driver requires a dsn")
	}
	if c.Port == 0 {
		return errors.New("port must be set")
	}
	if c.Actor == "" {
		c.Actor = "system"
	}
	return nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}
