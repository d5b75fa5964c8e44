// Package config loads the server configuration from a YAML file and
// environment variables. The loaded value is passed explicitly to the
// components that need it; there is no process-wide settings singleton.
package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`

	// BaseURL prefixes the access links printed by create-admin and shown in
	// the admin views.
	BaseURL string `yaml:"base_url" env:"CLASSVOTE_BASE_URL" env-default:"http://localhost:8080"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"CLASSVOTE_ADDR" env-default:":8080"`
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	Driver     string `yaml:"driver"      env:"CLASSVOTE_STORE_DRIVER" env-default:"memory"`
	MongoURL   string `yaml:"mongo_url"   env:"CLASSVOTE_MONGO_URL"`
	MongoDB    string `yaml:"mongo_db"    env:"CLASSVOTE_MONGO_DB"    env-default:"equential"`
	SQLitePath string `yaml:"sqlite_path" env:"CLASSVOTE_SQLITE_PATH" env-default:"./classvote.db"`
}

// AuthConfig holds the admin session settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"CLASSVOTE_JWT_SECRET" env-default:"classvote-dev-secret"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Mode string `yaml:"mode" env:"CLASSVOTE_LOG_MODE" env-default:"dev"`
}

// Load reads configuration with priority ENV > YAML > defaults. The YAML path
// comes from CONFIG_PATH (fallback "./config.yaml"); a missing default file
// means ENV + defaults only.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "mongo":
		if c.Store.MongoURL == "" {
			return fmt.Errorf("store.mongo_url is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}
