package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/fsutil"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultBaseURL, cfg.Repository.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Settings.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Settings.ReadTimeout)
	assert.Equal(t, 3, cfg.Settings.DownloadConcurrency)
	assert.Equal(t, 20, cfg.Settings.SessionCapacity)
	assert.Equal(t, int64(500_000_000), cfg.Settings.CacheMaxSize)
	assert.Equal(t, 48*time.Hour, cfg.Settings.CacheMaxAge)
	assert.Equal(t, "stable", cfg.Settings.DefaultChannel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	content := `repository:
  base_url: https://apps.example.org/
  key_version: 2
device:
  sdk: 34
  abi: amd64
  density_dpi: 480
  locales: [en, de]
settings:
  log_level: debug
  cache_max_size: 1000
  cache_max_age: 1h
  default_channel: beta
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), fsutil.FileModeDefault))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://apps.example.org", cfg.Repository.BaseURL, "trailing slash trimmed")
	assert.Equal(t, 2, cfg.Repository.KeyVersion)
	assert.Equal(t, DefaultPublicKey, cfg.Repository.PublicKey)
	assert.Equal(t, 34, cfg.Device.SDK)
	assert.Equal(t, "x86_64", cfg.Device.PrimaryABI)
	assert.Equal(t, []string{"en", "de"}, cfg.Device.Locales)
	assert.Equal(t, "debug", cfg.Settings.LogLevel)
	assert.Equal(t, int64(1000), cfg.Settings.CacheMaxSize)
	assert.Equal(t, time.Hour, cfg.Settings.CacheMaxAge)
	assert.Equal(t, "beta", cfg.Settings.DefaultChannel)
	assert.Equal(t, DefaultUpdateLoopInterval, cfg.Settings.UpdateLoopInterval)
}

func TestLoadConfig_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Settings, cfg.Settings)
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	assert.ErrorIs(t, err, errors.ErrEmptyConfigPath)
}

func TestLoadConfigFromReader_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"bad yaml", "settings: [", errors.ErrConfigParse},
		{"bad channel", "settings:\n  default_channel: nightly\n", errors.ErrConfigValidation},
		{"bad abi", "device:\n  abi: mips\n", errors.ErrConfigValidation},
		{"bad url", "repository:\n  base_url: ftp://x\n", errors.ErrConfigValidation},
		{"bad level", "settings:\n  log_level: loud\n", errors.ErrConfigValidation},
		{"bad auth type", "repository:\n  auth:\n    type: digest\n", errors.ErrConfigValidation},
		{"bearer without token", "repository:\n  auth:\n    type: bearer\n", errors.ErrConfigValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromReader(strings.NewReader(tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.LogLevel = "warn"
	cfg.Device.Name = "tokay"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.SaveConfig(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(fsutil.FileModeSecure), info.Mode().Perm())

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", loaded.Settings.LogLevel)
	assert.Equal(t, "tokay", loaded.Device.Name)
}

func TestSetGetValue(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.SetValue("settings.prune_interval", "2h"))
	require.NoError(t, cfg.SetValue("device.locales", "fr,it"))
	require.NoError(t, cfg.SetValue("settings.auto_update", "false"))

	v, err := cfg.GetValue("settings.prune_interval")
	require.NoError(t, err)
	assert.Equal(t, "2h0m0s", v)
	assert.Equal(t, []string{"fr", "it"}, cfg.Device.Locales)
	assert.False(t, cfg.Settings.AutoUpdate)

	assert.Error(t, cfg.SetValue("settings.download_concurrency", "many"))
	assert.Error(t, cfg.SetValue("nope", "1"))
	_, err = cfg.GetValue("nope")
	assert.Error(t, err)

	assert.Contains(t, cfg.ToMap(), "repository.base_url")
	assert.Equal(t, len(Keys()), len(cfg.ToMap()))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("APPSTORE_REPOSITORY_BASE_URL", "http://127.0.0.1:8080")
	t.Setenv("APPSTORE_SETTINGS_DOWNLOAD_CONCURRENCY", "5")
	t.Setenv("APPSTORE_DEVICE_SDK", "33")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "http://127.0.0.1:8080", cfg.Repository.BaseURL)
	assert.Equal(t, 5, cfg.Settings.DownloadConcurrency)
	assert.Equal(t, 33, cfg.Device.SDK)
}

func TestApplyEnv_Auth(t *testing.T) {
	t.Setenv("APPSTORE_REPOSITORY_AUTH_TYPE", "bearer")
	t.Setenv("APPSTORE_REPOSITORY_AUTH_TOKEN", "mirror-token")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "bearer", string(cfg.Repository.Auth.Type))
	assert.Equal(t, "mirror-token", cfg.Repository.Auth.Token)
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("APPSTORE_SETTINGS_DEFAULT_CHANNEL", "nightly")
	cfg := DefaultConfig()
	assert.ErrorIs(t, cfg.ApplyEnv(), errors.ErrConfigValidation)
}

func TestPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.CacheDir = "/c"
	cfg.Settings.StateDir = "/s"
	assert.Equal(t, filepath.Join("/c", "packages"), cfg.PackageCacheDir())
	assert.Equal(t, filepath.Join("/s", "repo"), cfg.RepoCachePath())
	assert.Equal(t, filepath.Join("/s", "appstore.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join("/s", "device"), cfg.DeviceRoot())
	assert.Equal(t, filepath.Join("/c", "tmp"), cfg.TempDir())
	assert.Equal(t, []string{filepath.Join("/c", "downloads")}, cfg.LegacyCachePaths())
	assert.Equal(t, filepath.Join("/s", "hooks"), cfg.HooksDir())
	cfg.Settings.HooksDir = "/h"
	assert.Equal(t, "/h", cfg.HooksDir())

	p, err := GetDefaultConfigPath()
	if err == nil {
		assert.True(t, strings.HasSuffix(p, filepath.Join(AppName, "config.yaml")))
	}
}
