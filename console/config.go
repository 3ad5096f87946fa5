package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the console daemon's configuration. A YAML file provides
// the base; MQDECK_* environment variables override individual fields
// so container deployments do not need a templated file.
type Config struct {
	Listen string `yaml:"listen"`

	Broker struct {
		GraphQLEndpoint string `yaml:"graphqlEndpoint"`
	} `yaml:"broker"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Assist struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"assist"`

	Poll struct {
		Fast time.Duration `yaml:"fast"`
		Slow time.Duration `yaml:"slow"`
	} `yaml:"poll"`
}

func defaultConfig() Config {
	var c Config
	c.Listen = ":8085"
	c.Broker.GraphQLEndpoint = "http://localhost:4000/graphql"
	c.Poll.Fast = 5 * time.Second
	c.Poll.Slow = 30 * time.Second
	return c
}

// LoadConfig reads path (optional) and applies environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("MQDECK_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("MQDECK_GRAPHQL_ENDPOINT"); v != "" {
		cfg.Broker.GraphQLEndpoint = v
	}
	if v := os.Getenv("MQDECK_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MQDECK_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MQDECK_ASSIST_ENDPOINT"); v != "" {
		cfg.Assist.Endpoint = v
	}

	if cfg.Poll.Fast <= 0 || cfg.Poll.Slow <= 0 {
		return cfg, fmt.Errorf("poll intervals must be positive")
	}
	if cfg.Broker.GraphQLEndpoint == "" {
		return cfg, fmt.Errorf("broker.graphqlEndpoint is required")
	}
	return cfg, nil
}
