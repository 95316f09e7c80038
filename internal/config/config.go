// Package config reads arena settings from a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"arena-server/internal/server"
)

type Config struct {
	Server server.Config

	AdminAddr string
	LogLevel  slog.Level

	DBDriver string
	DBDSN    string

	S3Bucket   string
	S3Prefix   string
	S3Region   string
	S3Endpoint string
}

// Load reads files (default ".env") into the environment without overriding
// variables already set, then builds the config. Missing files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("CONFIG_INVALID: loading %s: %w", f, err)
		}
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Server:   server.DefaultConfig(),
		LogLevel: slog.LevelInfo,
	}

	var err error
	if cfg.Server.Port, err = envInt("ARENA_PORT", cfg.Server.Port); err != nil {
		return Config{}, err
	}
	if cfg.Server.BroadcastPort, err = envInt("ARENA_BROADCAST_PORT", cfg.Server.BroadcastPort); err != nil {
		return Config{}, err
	}
	if cfg.Server.SweepInterval, err = envDuration("ARENA_SWEEP_INTERVAL", cfg.Server.SweepInterval); err != nil {
		return Config{}, err
	}
	cfg.Server.Host = os.Getenv("ARENA_HOST")
	cfg.Server.Password = os.Getenv("ARENA_PASSWORD")
	cfg.Server.StatsDir = envString("ARENA_STATS_DIR", cfg.Server.StatsDir)

	if v := os.Getenv("ARENA_LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("CONFIG_INVALID: ARENA_LOG_LEVEL: %w", err)
		}
	}

	cfg.AdminAddr = os.Getenv("ARENA_ADMIN_ADDR")
	cfg.DBDriver = os.Getenv("ARENA_DB_DRIVER")
	cfg.DBDSN = os.Getenv("ARENA_DB_DSN")
	cfg.S3Bucket = os.Getenv("ARENA_S3_BUCKET")
	cfg.S3Prefix = os.Getenv("ARENA_S3_PREFIX")
	cfg.S3Region = envString("ARENA_S3_REGION", "us-east-1")
	cfg.S3Endpoint = os.Getenv("ARENA_S3_ENDPOINT")

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("CONFIG_INVALID: port %d out of range", c.Server.Port)
	}
	if c.Server.BroadcastPort > 65535 {
		return fmt.Errorf("CONFIG_INVALID: broadcast port %d out of range", c.Server.BroadcastPort)
	}
	if c.Server.SweepInterval <= 0 {
		return errors.New("CONFIG_INVALID: sweep interval must be positive")
	}
	if c.DBDriver != "" && c.DBDSN == "" {
		return fmt.Errorf("CONFIG_INVALID: ARENA_DB_DSN is required for driver %s", c.DBDriver)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("CONFIG_INVALID: %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("CONFIG_INVALID: %s: %w", key, err)
	}
	return d, nil
}
