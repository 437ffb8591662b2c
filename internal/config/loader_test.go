package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadConfig_DefaultsWhenNoFiles(t *testing.T) {
	dir := t.TempDir()
	l := &Loader{configPaths: []string{filepath.Join(dir, "missing.yaml")}}

	cfg, err := l.LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.Server.URL)
}

func TestLoadConfig_PriorityOrder(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "project.yaml")
	user := filepath.Join(dir, "user.yaml")
	writeFile(t, user, "server:\n  url: https://user.example.com\n  timeout: 10s\nauth:\n  sso_fallback: 2s\n")
	writeFile(t, project, "server:\n  url: https://project.example.com\n")
	l := &Loader{configPaths: []string{project, user}}

	cfg, err := l.LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, "https://project.example.com", cfg.Server.URL)
	assert.Equal(t, 10*time.Second, cfg.Server.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Auth.SSOFallback)
}

func TestLoadConfig_CustomPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finsight.yml")
	writeFile(t, path, "insight:\n  done_mode: stop\n  read_buffer_size: 512\nlogging:\n  level: debug\n  format: json\n")

	cfg, err := NewLoader().LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "stop", cfg.Insight.DoneMode)
	assert.Equal(t, 512, cfg.Insight.ReadBufferSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_RejectsBadPaths(t *testing.T) {
	_, err := NewLoader().LoadConfig("config.toml")
	assert.ErrorContains(t, err, "must have .yaml or .yml extension")

	_, err = NewLoader().LoadConfig("../secrets.yaml")
	assert.ErrorContains(t, err, "path traversal not allowed")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	writeFile(t, path, "server: [unterminated\n")

	_, err := NewLoader().LoadConfig(path)

	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("FINSIGHT_SERVER_URL", "https://env.example.com")
	t.Setenv("FINSIGHT_AUTH_SSO_FALLBACK", "750ms")
	t.Setenv("FINSIGHT_INSIGHT_DONE_MODE", "stop")
	t.Setenv("FINSIGHT_LOG_LEVEL", "WARN")
	l := &Loader{configPaths: nil}

	cfg, err := l.LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Server.URL)
	assert.Equal(t, 750*time.Millisecond, cfg.Auth.SSOFallback)
	assert.Equal(t, "stop", cfg.Insight.DoneMode)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_InvalidEnvOverride(t *testing.T) {
	t.Setenv("FINSIGHT_SERVER_TIMEOUT", "soon")

	_, err := (&Loader{}).LoadConfig("")

	assert.ErrorContains(t, err, "invalid value for FINSIGHT_SERVER_TIMEOUT")
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	writeFile(t, envFile, "FINSIGHT_INSIGHT_READ_BUFFER_SIZE=1024\n")
	// Registers cleanup, then clears it so the .env value applies.
	t.Setenv("FINSIGHT_INSIGHT_READ_BUFFER_SIZE", "")
	require.NoError(t, os.Unsetenv("FINSIGHT_INSIGHT_READ_BUFFER_SIZE"))
	l := &Loader{envFiles: []string{envFile, filepath.Join(dir, "absent.env")}}

	cfg, err := l.LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Insight.ReadBufferSize)
}

func TestLoadConfig_ExpandsHomePaths(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := (&Loader{}).LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config/finsight/token"), cfg.Auth.TokenPath)
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.yaml")
	second := filepath.Join(dir, "b.yaml")
	writeFile(t, second, "server:\n  url: http://b\n")
	l := &Loader{configPaths: []string{first, second}}

	path, ok := l.FindConfigFile("")
	assert.True(t, ok)
	assert.Equal(t, second, path)

	_, ok = l.FindConfigFile(filepath.Join(dir, "nope.yaml"))
	assert.False(t, ok)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "server:\n  url: http://first.example.com\n")

	var (
		mu   sync.Mutex
		seen []string
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- (&Loader{}).Watch(ctx, path, func(cfg *Config) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, cfg.Server.URL)
		}, nil)
	}()

	// Keep rewriting until the watcher has been registered and reports the change.
	assert.Eventually(t, func() bool {
		writeFile(t, path, "server:\n  url: http://second.example.com\n")
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == "http://second.example.com"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-errCh)
}
