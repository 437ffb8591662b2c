// Package config loads finsight settings from YAML files, .env files and
// FINSIGHT_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds the complete client configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Auth    AuthConfig    `yaml:"auth" json:"auth"`
	Insight InsightConfig `yaml:"insight" json:"insight"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig points the client at the dashboard API
type ServerConfig struct {
	URL     string        `yaml:"url" json:"url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"` // non-streaming requests only
}

// AuthConfig configures the sign-in flow
type AuthConfig struct {
	SSOFallback time.Duration `yaml:"sso_fallback" json:"sso_fallback"`
	TokenPath   string        `yaml:"token_path" json:"token_path"`
}

// InsightConfig configures the insight stream reader
type InsightConfig struct {
	DoneMode       string `yaml:"done_mode" json:"done_mode"` // continue|stop
	ReadBufferSize int    `yaml:"read_buffer_size" json:"read_buffer_size"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug|info|warn|error
	Format string `yaml:"format" json:"format"` // text|json
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:     "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			SSOFallback: 5 * time.Second,
			TokenPath:   "~/.config/finsight/token",
		},
		Insight: InsightConfig{
			DoneMode:       "continue",
			ReadBufferSize: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "~/.cache/finsight/finsight.log",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateServerConfig(); err != nil {
		return err
	}
	if err := c.validateAuthConfig(); err != nil {
		return err
	}
	if err := c.validateInsightConfig(); err != nil {
		return err
	}
	return c.validateLoggingConfig()
}

func (c *Config) validateServerConfig() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid server url scheme: %s (must be http or https)", u.Scheme)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server timeout must be greater than 0")
	}
	return nil
}

func (c *Config) validateAuthConfig() error {
	if c.Auth.SSOFallback <= 0 {
		return fmt.Errorf("sso_fallback must be greater than 0")
	}
	return nil
}

func (c *Config) validateInsightConfig() error {
	if c.Insight.DoneMode != "" {
		validModes := map[string]bool{
			"continue": true,
			"stop":     true,
		}
		if !validModes[c.Insight.DoneMode] {
			return fmt.Errorf("invalid done mode: %s (must be one of: continue, stop)", c.Insight.DoneMode)
		}
	}
	if c.Insight.ReadBufferSize < 1 {
		return fmt.Errorf("read_buffer_size must be greater than 0")
	}
	return nil
}

func (c *Config) validateLoggingConfig() error {
	if c.Logging.Level != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[c.Logging.Level] {
			return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.Logging.Level)
		}
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be one of: text, json)", c.Logging.Format)
	}
	return nil
}
