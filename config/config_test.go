package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Correlation.Transport)
	assert.Equal(t, "push", cfg.Correlation.WaitMode)
	assert.Equal(t, 2*time.Second, cfg.Correlation.Timeouts.Interaction)
	assert.Equal(t, 5*time.Second, cfg.Correlation.Timeouts.UserValidation)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
correlation:
  transport: redis
  result_store: redis
  timeouts:
    comment: 4s
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("APP_SERVER_PORT", "9090")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Correlation.Transport)
	assert.Equal(t, 4*time.Second, cfg.Correlation.Timeouts.Comment)
	assert.Equal(t, 3*time.Second, cfg.Correlation.Timeouts.User)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("correlation:\n  wait_mode: spin\n"), 0o600))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadRejectsRedisTransportWithLocalResults(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("correlation:\n  transport: redis\n  result_store: memory\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ResultStore")

	// 单进程内存组合仍然允许
	t.Setenv("APP_CORRELATION_TRANSPORT", "memory")
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Correlation.ResultStore)
}
