package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"queuectl/internal/models"
)

const configFileName = "config.json"

// Config holds the settings the queue core consumes: retry policy,
// backoff growth, and the data directory every process shares.
type Config struct {
	DataDir           string  `json:"data_dir"`
	MaxRetries        int     `json:"max_retries"`
	BackoffBase       float64 `json:"backoff_base"`
	EnqueueRatePerMin int     `json:"enqueue_rate_per_min"`
}

// Default returns a config with default values. The data directory lives
// under the user config dir; EnqueueRatePerMin zero means unlimited.
func Default() (*Config, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user config dir: %w", err)
	}
	return &Config{
		DataDir:           filepath.Join(base, "queuectl"),
		MaxRetries:        models.DefaultMaxRetries,
		BackoffBase:       2.0,
		EnqueueRatePerMin: 0,
	}, nil
}

func (c *Config) path() string {
	return filepath.Join(c.DataDir, configFileName)
}

// Load reads the config from dataDir, or creates it with defaults on
// first run. A non-empty dataDir overrides the default location.
func Load(dataDir string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	data, err := os.ReadFile(cfg.path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, Save(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if dataDir != "" {
		// A --data-dir override wins over whatever the file recorded.
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// Save persists the config into its data directory.
func Save(cfg *Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(cfg.path(), data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
