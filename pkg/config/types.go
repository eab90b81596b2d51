package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Logging  LoggingConfig  `yaml:"logging"`
	Persist  PersistConfig  `yaml:"persist"`
	Backup   BackupConfig   `yaml:"backup"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
	CORS    struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// ModelConfig holds upstream language-model endpoint settings.
type ModelConfig struct {
	Endpoint string   `yaml:"endpoint"`
	APIKey   string   `yaml:"api_key"`
	Model    string   `yaml:"model"`
	Timeout  Duration `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// PersistConfig holds snapshot persistence tunables.
type PersistConfig struct {
	// Debounce is the quiet period before coalesced saves hit disk.
	Debounce Duration `yaml:"debounce"`
}

// BackupConfig holds configuration for the checkpoint scheduler.
type BackupConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	Retain  int    `yaml:"retain"`
}

// DefaultsConfig seeds the persisted settings for fresh stores.
type DefaultsConfig struct {
	Temperature        *float64 `yaml:"temperature"`
	MaxTokens          *int     `yaml:"max_tokens"`
	MaxContextMessages *int     `yaml:"max_context_messages"`
	ShowThinkingMode   *bool    `yaml:"show_thinking_mode"`
	ShowInlineForks    *bool    `yaml:"show_inline_forks"`
}

// Duration wraps time.Duration and supports YAML parsing from strings like
// "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
