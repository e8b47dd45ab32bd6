package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          int      `yaml:"port"`
	ExchangeURL   string   `yaml:"exchange_url"`
	Books         []string `yaml:"books"`
	DepthLevels   int      `yaml:"depth_levels"`
	ActivityLimit int      `yaml:"activity_limit"`
	SoundFile     string   `yaml:"sound_file"`
	LogLevel      string   `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		Port:          8087,
		ExchangeURL:   "http://localhost:8000",
		Books:         []string{"L1_C1", "L2_C1", "L3_C1", "contract:C1"},
		DepthLevels:   20,
		ActivityLimit: 50,
		SoundFile:     "./web/sounds/fill.mp3",
		LogLevel:      "info",
	}
}

func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	// Environment wins over the file for the upstream address.
	if v := os.Getenv("EXCHANGE_URL"); v != "" {
		cfg.ExchangeURL = v
	}
	// Validation & normalization
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, errors.New("invalid port")
	}
	if cfg.ExchangeURL == "" {
		return cfg, errors.New("exchange_url required")
	}
	if cfg.DepthLevels < 1 {
		return cfg, errors.New("depth_levels must be >=1")
	}
	if cfg.ActivityLimit < 1 {
		return cfg, errors.New("activity_limit must be >=1")
	}
	if len(cfg.Books) == 0 {
		return cfg, errors.New("at least one book required")
	}
	return cfg, nil
}

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
