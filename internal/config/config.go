package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig   `json:"basic_config"`
	Webhook     WebhookConfig `json:"webhook"`
}

type BasicConfig struct {
	ServerAddress        string `json:"server_address"`
	FileBaseDir          string `json:"file_base_dir"`
	AuthToken            string `json:"auth_token"`
	LogLevel             string `json:"log_level"`
	SessionIdleMinutes   int    `json:"session_idle_minutes"`
	SweepIntervalMinutes int    `json:"sweep_interval_minutes"`
}

// WebhookConfig points at the external OCR+AI extraction endpoint.
type WebhookConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxRetries     int    `json:"max_retries"`
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error; environment variables still apply.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			cfg.applyEnv()
			return &cfg, nil
		}
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.BasicConfig.FileBaseDir != "" && !filepath.IsAbs(cfg.BasicConfig.FileBaseDir) {
		cfg.BasicConfig.FileBaseDir = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.FileBaseDir)
	}

	cfg.applyEnv()
	return &cfg, nil
}

// applyEnv lets deployment environments override the file-based settings.
func (c *Config) applyEnv() {
	if v := os.Getenv("OCRCHAT_WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv("OCRCHAT_TOKEN"); v != "" {
		c.BasicConfig.AuthToken = v
	}
	if v := os.Getenv("OCRCHAT_LOG_LEVEL"); v != "" {
		c.BasicConfig.LogLevel = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.BasicConfig.ServerAddress = ":" + v
	}
}
