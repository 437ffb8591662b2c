package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPaths defines the config file search paths in priority order
var ConfigPaths = []string{
	"./.finsight.yaml",               // Project-specific config (highest priority)
	"~/.config/finsight/config.yaml", // User config
}

// EnvFiles are loaded into the process environment before overrides apply.
// Variables already set win.
var EnvFiles = []string{".env"}

// Loader handles configuration loading with priority merging
type Loader struct {
	configPaths []string
	envFiles    []string
}

// NewLoader creates a new config loader
func NewLoader() *Loader {
	return &Loader{
		configPaths: ConfigPaths,
		envFiles:    EnvFiles,
	}
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Command line flags (handled by caller)
// 2. Environment variables (including .env)
// 3. ./.finsight.yaml
// 4. ~/.config/finsight/config.yaml
// 5. Built-in defaults
func (l *Loader) LoadConfig(customPath string) (*Config, error) {
	config := DefaultConfig()

	if customPath != "" {
		if err := validateConfigPath(customPath); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		if err := l.loadFromFile(config, expandPath(customPath)); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", customPath, err)
		}
	} else {
		// Lowest priority first so higher ones overwrite.
		for i := len(l.configPaths) - 1; i >= 0; i-- {
			path := expandPath(l.configPaths[i])
			if !fileExists(path) {
				continue
			}
			if err := l.loadFromFile(config, path); err != nil {
				return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
			}
		}
	}

	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config.Auth.TokenPath = expandPath(config.Auth.TokenPath)
	config.Logging.File = expandPath(config.Logging.File)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// FindConfigFile returns the highest-priority config file that exists.
func (l *Loader) FindConfigFile(customPath string) (string, bool) {
	if customPath != "" {
		path := expandPath(customPath)
		return path, fileExists(path)
	}
	for _, path := range l.configPaths {
		expanded := expandPath(path)
		if fileExists(expanded) {
			return expanded, true
		}
	}
	return "", false
}

func (l *Loader) loadFromFile(config *Config, path string) error {
	// #nosec G304 - path is validated or comes from the fixed search list
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var fileConfig Config
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	mergeConfigs(config, &fileConfig)
	return nil
}

func (l *Loader) loadEnvFiles() error {
	for _, path := range l.envFiles {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func applyEnvOverrides(config *Config) error {
	envMappings := map[string]func(string) error{
		"FINSIGHT_SERVER_URL":     func(v string) error { config.Server.URL = v; return nil },
		"FINSIGHT_SERVER_TIMEOUT": func(v string) error { return parseDuration(v, &config.Server.Timeout) },

		"FINSIGHT_AUTH_SSO_FALLBACK": func(v string) error { return parseDuration(v, &config.Auth.SSOFallback) },
		"FINSIGHT_AUTH_TOKEN_PATH":   func(v string) error { config.Auth.TokenPath = v; return nil },

		"FINSIGHT_INSIGHT_DONE_MODE":        func(v string) error { config.Insight.DoneMode = v; return nil },
		"FINSIGHT_INSIGHT_READ_BUFFER_SIZE": func(v string) error { return parseInt(v, &config.Insight.ReadBufferSize) },

		"FINSIGHT_LOG_LEVEL":  func(v string) error { config.Logging.Level = strings.ToLower(v); return nil },
		"FINSIGHT_LOG_FORMAT": func(v string) error { config.Logging.Format = strings.ToLower(v); return nil },
		"FINSIGHT_LOG_FILE":   func(v string) error { config.Logging.File = v; return nil },
	}

	for envVar, setter := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			if err := setter(value); err != nil {
				return fmt.Errorf("invalid value for %s: %w", envVar, err)
			}
		}
	}
	return nil
}

func validateConfigPath(path string) error {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path traversal not allowed")
	}
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("config file must have .yaml or .yml extension")
	}
	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// mergeConfigs merges source config into destination config.
// Only non-zero values from source overwrite destination.
func mergeConfigs(dst, src *Config) {
	if src.Server.URL != "" {
		dst.Server.URL = src.Server.URL
	}
	if src.Server.Timeout != 0 {
		dst.Server.Timeout = src.Server.Timeout
	}
	if src.Auth.SSOFallback != 0 {
		dst.Auth.SSOFallback = src.Auth.SSOFallback
	}
	if src.Auth.TokenPath != "" {
		dst.Auth.TokenPath = src.Auth.TokenPath
	}
	if src.Insight.DoneMode != "" {
		dst.Insight.DoneMode = src.Insight.DoneMode
	}
	if src.Insight.ReadBufferSize != 0 {
		dst.Insight.ReadBufferSize = src.Insight.ReadBufferSize
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}
	if src.Logging.File != "" {
		dst.Logging.File = src.Logging.File
	}
}

func parseInt(s string, dst *int) error {
	val, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func parseDuration(s string, dst *time.Duration) error {
	val, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}
