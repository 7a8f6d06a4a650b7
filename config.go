package gtfsgeneral

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries environment-level defaults. Command line flags override it.
type Config struct {
	Cores    int    `validate:"omitempty,min=1"`
	LogLevel string `validate:"omitempty,oneof=debug info warn error"`
}

// LoadConfig reads an optional .env file and the GTFS_GENERAL_* environment
// variables. A missing .env file is fine.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{LogLevel: "info"}
	if v := os.Getenv("GTFS_GENERAL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GTFS_GENERAL_CORES"); v != "" {
		cores, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("GTFS_GENERAL_CORES: %w", err)
		}
		cfg.Cores = cores
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
