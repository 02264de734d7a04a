// Package config holds the daemon's YAML configuration: where state
// lives, how the watcher is tuned, and how the OCR engine is set up.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full daemon configuration.
type Config struct {
	DataDir string        `yaml:"data_dir"`
	LogDir  string        `yaml:"log_dir"`
	Listen  string        `yaml:"listen"`
	Watcher WatcherConfig `yaml:"watcher"`
	OCR     OCRConfig     `yaml:"ocr"`
	History HistoryConfig `yaml:"history"`
}

// WatcherConfig tunes detection timing and concurrency.
type WatcherConfig struct {
	DebounceSeconds      int `yaml:"debounce_seconds"`
	StabilityMaxSeconds  int `yaml:"stability_max_seconds"`
	StabilityPollSeconds int `yaml:"stability_poll_seconds"`
	MaxConcurrent        int `yaml:"max_concurrent"`
	StopTimeoutSeconds   int `yaml:"stop_timeout_seconds"`
}

// OCRConfig configures the Tesseract engine.
type OCRConfig struct {
	TessdataPrefix string            `yaml:"tessdata_prefix"`
	DefaultLang    string            `yaml:"default_lang"`
	Variables      map[string]string `yaml:"variables"`
}

// HistoryConfig configures the processing-history database.
type HistoryConfig struct {
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		LogDir:  "logs",
		Listen:  "127.0.0.1:8090",
		Watcher: WatcherConfig{
			DebounceSeconds:      5,
			StabilityMaxSeconds:  30,
			StabilityPollSeconds: 1,
			MaxConcurrent:        4,
			StopTimeoutSeconds:   60,
		},
		OCR: OCRConfig{
			DefaultLang: "fra",
		},
		History: HistoryConfig{
			RetentionDays: 90,
		},
	}
}

// LoadConfig reads and parses a YAML config file merged over defaults.
// A missing file is not an error; defaults apply.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.LogDir == "" {
		return fmt.Errorf("log_dir is required")
	}
	if c.Watcher.DebounceSeconds < 0 {
		return fmt.Errorf("debounce_seconds must be >= 0")
	}
	if c.Watcher.StabilityMaxSeconds <= 0 {
		return fmt.Errorf("stability_max_seconds must be > 0")
	}
	if c.Watcher.StabilityPollSeconds <= 0 {
		return fmt.Errorf("stability_poll_seconds must be > 0")
	}
	if c.Watcher.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be > 0")
	}
	if c.OCR.DefaultLang == "" {
		return fmt.Errorf("default_lang is required")
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("retention_days must be >= 0")
	}
	return nil
}

// RulesFile is the per-folder rule store path.
func (c *Config) RulesFile() string { return filepath.Join(c.DataDir, "config.json") }

// StateFile is the counter state path.
func (c *Config) StateFile() string { return filepath.Join(c.DataDir, "state.json") }

// LogFile is the rotating log path.
func (c *Config) LogFile() string { return filepath.Join(c.LogDir, "socrate.log") }

// HistoryDB is the processing-history database path.
func (c *Config) HistoryDB() string {
	if c.History.DBPath != "" {
		return c.History.DBPath
	}
	return filepath.Join(c.DataDir, "history.db")
}

// Debounce returns the watcher debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watcher.DebounceSeconds) * time.Second
}

// StabilityMaxWait bounds the whole stability check.
func (c *Config) StabilityMaxWait() time.Duration {
	return time.Duration(c.Watcher.StabilityMaxSeconds) * time.Second
}

// StabilityPoll is the stability re-read interval.
func (c *Config) StabilityPoll() time.Duration {
	return time.Duration(c.Watcher.StabilityPollSeconds) * time.Second
}

// StopTimeout bounds graceful shutdown of running jobs.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Watcher.StopTimeoutSeconds) * time.Second
}
