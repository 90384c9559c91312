// Package config loads the bot configuration.
//
// Precedence, lowest to highest: built-in defaults, the optional YAML config
// file, CASTLEBOT_* environment variables. A .env file in the working
// directory is folded into the environment first, so local deployments don't
// have to export anything.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultName           = "castlerobot"
	defaultDBPath         = "data/castlebot.db"
	defaultRefreshSeconds = 300
	defaultFetchTimeout   = 30
)

// Config holds everything the bot needs to run.
type Config struct {
	// Token is the chat-platform bot token (CASTLEBOT_API_KEY).
	Token string `yaml:"token"`

	// Name is the bot's display name.
	Name string `yaml:"name"`

	// Channel is the channel name the bot posts to (without '#').
	Channel string `yaml:"channel"`

	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`

	// Campaign is the GoFundMe campaign URL or slug to monitor.
	Campaign string `yaml:"campaign"`

	// RefreshSeconds is the sync cycle interval.
	RefreshSeconds int `yaml:"refresh_seconds"`

	// FetchTimeoutSeconds bounds one snapshot fetch.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`

	// HealthAddr, when non-empty, binds the liveness endpoint (e.g. ":8080").
	HealthAddr string `yaml:"health_addr"`
}

// Load builds the configuration. path names the YAML config file and may be
// empty to use defaults plus environment only.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Name:                defaultName,
		DBPath:              defaultDBPath,
		RefreshSeconds:      defaultRefreshSeconds,
		FetchTimeoutSeconds: defaultFetchTimeout,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	cfg.Token = getEnv("CASTLEBOT_API_KEY", cfg.Token)
	cfg.Name = getEnv("CASTLEBOT_NAME", cfg.Name)
	cfg.Channel = getEnv("CASTLEBOT_CHANNEL", cfg.Channel)
	cfg.DBPath = getEnv("CASTLEBOT_DB_PATH", cfg.DBPath)
	cfg.Campaign = getEnv("CASTLEBOT_GO_FUND_ME", cfg.Campaign)
	refresh, err := getEnvInt("CASTLEBOT_REFRESH_RATE", cfg.RefreshSeconds)
	if err != nil {
		return nil, err
	}
	cfg.RefreshSeconds = refresh
	timeout, err := getEnvInt("CASTLEBOT_FETCH_TIMEOUT", cfg.FetchTimeoutSeconds)
	if err != nil {
		return nil, err
	}
	cfg.FetchTimeoutSeconds = timeout
	cfg.HealthAddr = getEnv("CASTLEBOT_HEALTH_ADDR", cfg.HealthAddr)

	if cfg.RefreshSeconds <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %d", cfg.RefreshSeconds)
	}
	if cfg.FetchTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("fetch timeout must be positive, got %d", cfg.FetchTimeoutSeconds)
	}

	return cfg, nil
}

// ValidateForRun checks the fields the long-running bot requires.
// The init command validates less; it only needs the campaign and db path.
func (c *Config) ValidateForRun() error {
	if c.Token == "" {
		return errors.New("missing bot token (CASTLEBOT_API_KEY)")
	}
	if c.Channel == "" {
		return errors.New("missing channel (CASTLEBOT_CHANNEL)")
	}
	if c.Campaign == "" {
		return errors.New("missing campaign reference (CASTLEBOT_GO_FUND_ME)")
	}
	return nil
}

// RefreshInterval returns the cycle interval as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}

// FetchTimeout returns the per-fetch deadline as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt reads an integer env var. A set-but-malformed value is an error,
// not a silent fallback: a typo'd refresh rate should stop startup, not run
// the bot on a default the operator didn't choose.
func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}
