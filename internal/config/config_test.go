package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditorDurations(t *testing.T) {
	tests := []struct {
		name     string
		cfg      EditorConfig
		throttle time.Duration
		settle   time.Duration
	}{
		{"defaults", EditorConfig{}, 100 * time.Millisecond, time.Second},
		{"invalid", EditorConfig{ThrottleWindow: "soon", SettleDelay: "-1s"}, 100 * time.Millisecond, time.Second},
		{"custom", EditorConfig{ThrottleWindow: "250ms", SettleDelay: "2s"}, 250 * time.Millisecond, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.throttle, tt.cfg.GetThrottleWindow())
			assert.Equal(t, tt.settle, tt.cfg.GetSettleDelay())
		})
	}
}

func TestPreviewRateLimit(t *testing.T) {
	var p PreviewConfig
	assert.Equal(t, 20.0, p.GetRateLimitRPS())
	assert.Equal(t, 40, p.GetRateLimitBurst())

	p.RateLimit = &RateLimitConfig{RequestsPerSecond: 5, Burst: 7}
	assert.Equal(t, 5.0, p.GetRateLimitRPS())
	assert.Equal(t, 7, p.GetRateLimitBurst())
}

func TestAuth(t *testing.T) {
	var api *APIConfig
	assert.False(t, api.IsAuthEnabled())

	t.Setenv("PAGEPATCH_TEST_KEY", "secret")
	api = &APIConfig{Auth: &AuthConfig{APIKey: "${PAGEPATCH_TEST_KEY}"}}
	assert.True(t, api.IsAuthEnabled())
	assert.Equal(t, "secret", api.Auth.GetAPIKey())
	assert.Equal(t, "X-API-Key", api.Auth.GetHeaderName())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	yml := `
title: Landing
server:
  port: 9090
editor:
  throttle_window: 50ms
project:
  dir: pages
  current: home
  watch: false
store:
  driver: sqlite
  dsn: pages.db
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(yml), 0644))

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "Landing", cfg.Title)
	assert.Equal(t, "localhost:9090", cfg.Server.Addr())
	assert.Equal(t, 50*time.Millisecond, cfg.Editor.GetThrottleWindow())
	assert.Equal(t, filepath.Join(dir, "pages"), cfg.Project.Dir)
	assert.Equal(t, "home", cfg.Project.Current)
	assert.False(t, cfg.Project.Watch)
	assert.True(t, cfg.Store.Enabled())
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: mongo\n  dsn: x\n"), 0644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "store.driver")

	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "store.dsn")

	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := DefaultConfig()
	cfg.Editor.SettleDelay = "3s"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, loaded.Editor.GetSettleDelay())
}
