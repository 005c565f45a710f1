// Package config handles configuration loading and saving.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/linanwx/triptych/logger"
)

const (
	configFileName = "config.yaml"
	configDirName  = ".triptych"
)

var configDirOverride string

// SetConfigDir overrides the config directory for the current process.
// Empty value clears the override.
func SetConfigDir(dir string) {
	configDirOverride = strings.TrimSpace(dir)
}

// Config is the root configuration structure.
type Config struct {
	Panels  []PanelConfig `json:"panels,omitempty" yaml:"panels,omitempty"`
	HTTP    HTTPConfig    `json:"http,omitempty" yaml:"http,omitempty"`
	Web     WebConfig     `json:"web,omitempty" yaml:"web,omitempty"`
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// PanelConfig describes one panel slot.
type PanelConfig struct {
	Slot         int      `json:"slot" yaml:"slot"`                                     // 1..3
	Provider     string   `json:"provider,omitempty" yaml:"provider,omitempty"`         // openai, anthropic, google; detected from apiKey when empty
	APIKey       string   `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`             // falls back to the vendor env var
	APIBase      string   `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`           // optional custom base URL
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`               // defaults to the vendor's first catalog model
	MaxTokens    int      `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`       // defaults to 2000
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`   // defaults to 0.7
	SystemPrompt string   `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"` // optional
}

// HTTPConfig contains transport settings.
type HTTPConfig struct {
	TimeoutSeconds int `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"` // 0 leaves it to the transport
}

// Timeout returns the configured client timeout.
func (h HTTPConfig) Timeout() time.Duration {
	if h.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// WebConfig contains websocket channel configuration.
type WebConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"` // default: 127.0.0.1:8787
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Level   string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error
	Stdout  bool   `json:"stdout,omitempty" yaml:"stdout,omitempty"` // log to stderr
	File    string `json:"file,omitempty" yaml:"file,omitempty"`     // relative to the config dir
}

// ConfigDir returns the directory holding config.yaml, logs and .env.
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

// ConfigPath returns the path of config.yaml.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads config.yaml. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to config.yaml. The file holds API keys, so it is
// readable by the owner only.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path atomically.
func (c *Config) SaveFile(path string) error {
	sort.Slice(c.Panels, func(i, j int) bool { return c.Panels[i].Slot < c.Panels[j].Slot })

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	logger.Debug("config saved", "path", path, "panels", len(c.Panels))
	return nil
}

// Panel returns the entry for slot.
func (c *Config) Panel(slot int) (PanelConfig, bool) {
	for _, p := range c.Panels {
		if p.Slot == slot {
			return p, true
		}
	}
	return PanelConfig{}, false
}

// SetPanel adds or replaces the entry for p.Slot.
func (c *Config) SetPanel(p PanelConfig) {
	for i := range c.Panels {
		if c.Panels[i].Slot == p.Slot {
			c.Panels[i] = p
			return
		}
	}
	c.Panels = append(c.Panels, p)
}

// RemovePanel deletes the entry for slot and reports whether it existed.
func (c *Config) RemovePanel(slot int) bool {
	for i := range c.Panels {
		if c.Panels[i].Slot == slot {
			c.Panels = append(c.Panels[:i], c.Panels[i+1:]...)
			return true
		}
	}
	return false
}

// BuildLoggerConfig converts the logging section for logger.Init.
func (c *Config) BuildLoggerConfig() logger.Config {
	enabled := true
	if c.Logging.Enabled != nil {
		enabled = *c.Logging.Enabled
	}
	return logger.Config{
		Enabled: enabled,
		Level:   c.Logging.Level,
		Stdout:  c.Logging.Stdout,
		File:    c.Logging.File,
	}
}
