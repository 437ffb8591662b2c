// Package auth provides dashboard session token management.
// It implements a simple interface with multiple providers following the
// "deep modules" principle - simple interface, complex implementation hidden.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TokenEnvVar is the environment variable consulted by EnvProvider.
const TokenEnvVar = "FINSIGHT_TOKEN"

// ErrNoToken indicates that a provider has no token available.
var ErrNoToken = errors.New("no session token available")

// TokenProvider defines the interface for obtaining a dashboard session token.
// Implementations may use different sources (environment variables, token files, etc).
type TokenProvider interface {
	GetToken() (string, error)
}

// EnvProvider obtains tokens from the FINSIGHT_TOKEN environment variable.
type EnvProvider struct{}

// GetToken reads the FINSIGHT_TOKEN environment variable.
func (e *EnvProvider) GetToken() (string, error) {
	token := strings.TrimSpace(os.Getenv(TokenEnvVar))
	if token == "" {
		return "", fmt.Errorf("%w: %s environment variable not set or empty", ErrNoToken, TokenEnvVar)
	}
	return token, nil
}

// FileProvider obtains tokens from a file written by a previous login.
type FileProvider struct {
	Path string
}

// GetToken reads and trims the token file.
func (f *FileProvider) GetToken() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: token file %s does not exist", ErrNoToken, f.Path)
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: token file %s is empty", ErrNoToken, f.Path)
	}
	return token, nil
}

// StaticProvider returns a fixed token. Used after an interactive login.
type StaticProvider struct {
	Token string
}

// GetToken returns the configured token.
func (s StaticProvider) GetToken() (string, error) {
	if s.Token == "" {
		return "", ErrNoToken
	}
	return s.Token, nil
}

// Chain tries each provider in order and returns the first token found.
type Chain []TokenProvider

// GetToken walks the chain. If every provider fails the errors are joined.
func (c Chain) GetToken() (string, error) {
	var errs []error
	for _, p := range c {
		token, err := p.GetToken()
		if err == nil {
			return token, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrNoToken
	}
	return "", errors.Join(errs...)
}

// DefaultTokenPath returns ~/.config/finsight/token, honouring XDG_CONFIG_HOME.
func DefaultTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".finsight", "token")
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "finsight", "token")
}

// GetToken obtains a session token using the following strategy:
// 1. FINSIGHT_TOKEN environment variable
// 2. The token file at path (DefaultTokenPath when empty)
//
// This is the main entry point for token retrieval in the application.
func GetToken(path string) (string, error) {
	if path == "" {
		path = DefaultTokenPath()
	}
	return Chain{&EnvProvider{}, &FileProvider{Path: path}}.GetToken()
}

// SaveToken writes the token to path with owner-only permissions.
func SaveToken(path, token string) error {
	if path == "" {
		path = DefaultTokenPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// ClearToken removes the token file at path. A missing file is not an error.
func ClearToken(path string) error {
	if path == "" {
		path = DefaultTokenPath()
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
