package main

import (
	"fmt"
	"os"

	"joddb/internal/metrics"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML config file. Flags override Port and DBPath;
// metrics tunables fall back to defaults when zero.
type Config struct {
	Port    int                `yaml:"port"`
	DBPath  string             `yaml:"db"`
	Metrics metrics.Thresholds `yaml:"metrics"`
}

func loadConfig(path string) (Config, error) {
	cfg := Config{
		Port:    9000,
		DBPath:  "joddb.db",
		Metrics: metrics.DefaultThresholds(),
	}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Port <= 0 {
		cfg.Port = 9000
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "joddb.db"
	}
	return cfg, nil
}
