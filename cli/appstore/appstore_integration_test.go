//go:build integration

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grapheneos/appstore/pkg/config"
	"github.com/grapheneos/appstore/pkg/repository"
	"github.com/grapheneos/appstore/test/testutil"
)

type syncOutput struct {
	Timestamp int64 `json:"timestamp"`
	Packages  int   `json:"packages"`
	Outdated  int   `json:"outdated"`
}

type jobOutput struct {
	Packages []string `json:"packages"`
	Error    string   `json:"error"`
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "appstore version")
	assert.Contains(t, out, "Git commit:")
}

func TestSyncInstallUpdateUninstall(t *testing.T) {
	srv, cfg := setupRepo(t)

	publish(t, srv, baseTimestamp, map[string]int64{appName: 1})
	var synced syncOutput
	runJSON(t, cfg, &synced, "sync")
	assert.Equal(t, baseTimestamp, synced.Timestamp)
	assert.Equal(t, 1, synced.Packages)
	assert.Zero(t, synced.Outdated)

	pkgs := listPackages(t, cfg)
	require.Contains(t, pkgs, appName)
	assert.Zero(t, pkgs[appName].Installed)
	assert.Equal(t, int64(1), pkgs[appName].Available)
	assert.Equal(t, "stable", pkgs[appName].Channel)

	var installed []jobOutput
	runJSON(t, cfg, &installed, "install", "--no-sync", appName)
	require.Len(t, installed, 1)
	assert.Empty(t, installed[0].Error)
	assert.Equal(t, []string{appName}, installed[0].Packages)
	assert.Equal(t, int64(1), listPackages(t, cfg, "--installed")[appName].Installed)

	publish(t, srv, baseTimestamp+1, map[string]int64{appName: 2})
	runJSON(t, cfg, &synced, "sync")
	assert.Equal(t, 1, synced.Outdated)

	var check struct {
		Count  int        `json:"count"`
		Groups [][]string `json:"groups"`
	}
	runJSON(t, cfg, &check, "update", "--check", "--no-sync")
	assert.Equal(t, 1, check.Count)
	assert.Equal(t, [][]string{{appName}}, check.Groups)

	var updated []jobOutput
	runJSON(t, cfg, &updated, "update", "--no-sync")
	require.Len(t, updated, 1)
	assert.Empty(t, updated[0].Error)
	assert.Equal(t, int64(2), listPackages(t, cfg, "--installed")[appName].Installed)
	assert.Empty(t, listPackages(t, cfg, "--updates"))

	out, err := runCLI(t, "--config", cfg, "uninstall", appName)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
	assert.Empty(t, listPackages(t, cfg, "--installed"))

	out, err = runCLI(t, "--config", cfg, "cache", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache Information:")

	// Pruning after each commit may already have emptied the cache.
	_, err = runCLI(t, "--config", cfg, "cache", "clean")
	require.NoError(t, err)
	out, err = runCLI(t, "--config", cfg, "cache", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "(0 files)")
}

func TestInstallUnknownPackage(t *testing.T) {
	srv, cfg := setupRepo(t)
	publish(t, srv, baseTimestamp, map[string]int64{appName: 1})

	_, err := runCLI(t, "--config", cfg, "install", "org.example.missing")
	require.Error(t, err)

	_, err = runCLI(t, "--config", cfg, "info", "org.example.missing")
	require.Error(t, err)
}

func TestSyncRejectsTamperedMetadata(t *testing.T) {
	srv, cfg := setupRepo(t)
	publish(t, srv, baseTimestamp, map[string]int64{appName: 1})

	other := testutil.NewRepoServer(t)
	srv.SetRawMetadata(other.Signer.SignedBody(testutil.NewCatalogJSON(baseTimestamp + 1).Bytes()))

	_, err := runCLI(t, "--config", cfg, "sync")
	require.Error(t, err)

	var status struct {
		Placeholder bool `json:"placeholder"`
	}
	runJSON(t, cfg, &status, "status")
	assert.True(t, status.Placeholder)
}

func TestStatus(t *testing.T) {
	srv, cfg := setupRepo(t)
	publish(t, srv, baseTimestamp, map[string]int64{appName: 1, libName: 3})

	var status struct {
		Repository     string `json:"repository"`
		Placeholder    bool   `json:"placeholder"`
		Packages       int    `json:"packages"`
		DefaultChannel string `json:"default_channel"`
	}
	runJSON(t, cfg, &status, "status")
	assert.True(t, status.Placeholder)
	assert.True(t, strings.HasPrefix(status.Repository, srv.URL))

	_, err := runCLI(t, "--config", cfg, "sync")
	require.NoError(t, err)
	runJSON(t, cfg, &status, "status")
	assert.False(t, status.Placeholder)
	assert.Equal(t, 2, status.Packages)
	assert.Equal(t, "stable", status.DefaultChannel)

	var sessions []map[string]interface{}
	runJSON(t, cfg, &sessions, "sessions")
	assert.Empty(t, sessions)
}

func TestChannelCommands(t *testing.T) {
	srv, cfg := setupRepo(t)
	publish(t, srv, baseTimestamp, map[string]int64{appName: 1})
	_, err := runCLI(t, "--config", cfg, "sync")
	require.NoError(t, err)

	out, err := runCLI(t, "--config", cfg, "channel", "default")
	require.NoError(t, err)
	assert.Equal(t, "stable\n", out)

	_, err = runCLI(t, "--config", cfg, "channel", "default", "beta")
	require.NoError(t, err)
	out, err = runCLI(t, "--config", cfg, "channel", "default")
	require.NoError(t, err)
	assert.Equal(t, "beta\n", out)

	_, err = runCLI(t, "--config", cfg, "channel", "set", appName, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", listPackages(t, cfg)[appName].Channel)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown channel", []string{"channel", "default", "nightly"}},
		{"unknown package", []string{"channel", "set", "org.example.missing", "beta"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append([]string{"--config", cfg}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestConfigCommands(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")

	_, err := runCLI(t, "--config", cfg, "config", "init")
	require.NoError(t, err)
	_, err = os.Stat(cfg)
	require.NoError(t, err)

	_, err = runCLI(t, "--config", cfg, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	_, err = runCLI(t, "--config", cfg, "config", "init", "--force")
	require.NoError(t, err)

	_, err = runCLI(t, "--config", cfg, "config", "set", "settings.default_channel", "beta")
	require.NoError(t, err)
	out, err := runCLI(t, "--config", cfg, "config", "get", "settings.default_channel")
	require.NoError(t, err)
	assert.Equal(t, "beta\n", out)

	out, err = runCLI(t, "--config", cfg, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "settings.default_channel")
	assert.Contains(t, out, "repository.base_url")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"config", "set", "settings.nope", "1"}},
		{"bad duration", []string{"config", "set", "settings.install_timeout", "soon"}},
		{"get unknown key", []string{"config", "get", "settings.nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append([]string{"--config", cfg}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestRepoSignAndSync(t *testing.T) {
	useFakeApks(t)
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "repo.key")

	out, err := runCLI(t, "repo", "keygen", "--out", keyPath)
	require.NoError(t, err)
	publicKey := strings.TrimSpace(strings.TrimPrefix(out, "public key:"))
	require.NotEmpty(t, publicKey)

	srv := testutil.NewRepoServer(t)
	doc := testutil.NewCatalogJSON(baseTimestamp)
	content := testutil.FakeApk(appName, 4)
	gzSize := srv.AddApk(t, appName, 4, "base.apk", content)
	doc.Package(appName).Variant(4, content).Apks([]string{"base.apk"}, [][]byte{content}, []int64{gzSize})
	metadata := filepath.Join(dir, "metadata.json")
	require.NoError(t, os.WriteFile(metadata, doc.Bytes(), 0o600))

	repoDir := filepath.Join(dir, "repo")
	out, err = runCLI(t, "repo", "sign", metadata, "--key", keyPath, "--out", repoDir)
	require.NoError(t, err)
	signed := filepath.Join(repoDir, repository.MetadataFileName(0))
	assert.Equal(t, signed, strings.TrimSpace(out))
	body, err := os.ReadFile(signed)
	require.NoError(t, err)
	srv.SetRawMetadata(body)

	cfg := testutil.SetupTestConfig(t, srv.URL, publicKey)
	var synced syncOutput
	runJSON(t, cfg, &synced, "sync")
	assert.Equal(t, 1, synced.Packages)

	var installed []jobOutput
	runJSON(t, cfg, &installed, "install", "--no-sync", appName)
	require.Len(t, installed, 1)
	assert.Empty(t, installed[0].Error)
}

func TestHooksCommands(t *testing.T) {
	srv, cfgPath := setupRepo(t)
	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)

	var listed struct {
		Directory string   `json:"directory"`
		Events    []string `json:"events"`
	}
	runJSON(t, cfgPath, &listed, "hooks", "list")
	assert.Equal(t, cfg.HooksDir(), listed.Directory)
	assert.Empty(t, listed.Events)

	script, err := runCLI(t, "hooks", "template", "installed")
	require.NoError(t, err)
	assert.Contains(t, script, "Installed hook")
	require.NoError(t, os.MkdirAll(cfg.HooksDir(), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.HooksDir(), "installed.tengo"), []byte(script), 0o600))
	// A failing script is logged and does not fail the job.
	require.NoError(t, os.WriteFile(filepath.Join(cfg.HooksDir(), "staging.tengo"), []byte(`err = "refused"`), 0o600))

	runJSON(t, cfgPath, &listed, "hooks", "list")
	assert.Equal(t, []string{"staging", "installed"}, listed.Events)

	_, err = runCLI(t, "hooks", "template", "pre-install")
	assert.Error(t, err)

	publish(t, srv, baseTimestamp, map[string]int64{appName: 1})
	var installed []jobOutput
	runJSON(t, cfgPath, &installed, "install", appName)
	require.Len(t, installed, 1)
	assert.Empty(t, installed[0].Error)
}
