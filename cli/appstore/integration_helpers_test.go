//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grapheneos/appstore/internal/cli"
	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/test/testutil"
)

const (
	appName = "org.example.notes"
	libName = "org.example.notes.lib"
)

// baseTimestamp is the publication time of the first fixture catalog.
const baseTimestamp = catalog.MinTimestamp + 1000

// useFakeApks makes the local device accept testutil.FakeApk payloads.
func useFakeApks(t *testing.T) {
	t.Helper()
	prev := cli.ReadManifest
	cli.ReadManifest = testutil.ReadFakeManifest
	t.Cleanup(func() { cli.ReadManifest = prev })
}

// publish serves a catalog with one variant per entry of versions and the
// matching gzip artifacts.
func publish(t *testing.T, srv *testutil.RepoServer, ts int64, versions map[string]int64) {
	t.Helper()
	doc := testutil.NewCatalogJSON(ts)
	for name, vc := range versions {
		content := testutil.FakeApk(name, vc)
		gzSize := srv.AddApk(t, name, vc, "base.apk", content)
		doc.Package(name).Variant(vc, content).Apks([]string{"base.apk"}, [][]byte{content}, []int64{gzSize})
	}
	srv.SetMetadata(doc.Bytes())
}

// setupRepo starts a repository server and writes a config for it.
func setupRepo(t *testing.T) (*testutil.RepoServer, string) {
	t.Helper()
	useFakeApks(t)
	srv := testutil.NewRepoServer(t)
	return srv, testutil.SetupTestConfig(t, srv.URL, srv.Signer.PublicKey())
}

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		t.Logf("stderr: %s", errOut.String())
	}
	return out.String(), err
}

// runJSON runs a command with JSON output and decodes it into v.
func runJSON(t *testing.T, cfgPath string, v interface{}, args ...string) {
	t.Helper()
	out, err := runCLI(t, append([]string{"--config", cfgPath, "-o", "json"}, args...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), v), "output: %s", out)
}

type listedPackage struct {
	Name      string `json:"name"`
	Installed int64  `json:"installed_version"`
	Available int64  `json:"available_version"`
	Channel   string `json:"channel"`
}

func listPackages(t *testing.T, cfgPath string, flags ...string) map[string]listedPackage {
	t.Helper()
	var rows []listedPackage
	runJSON(t, cfgPath, &rows, append([]string{"list"}, flags...)...)
	byName := make(map[string]listedPackage, len(rows))
	for _, r := range rows {
		byName[r.Name] = r
	}
	return byName
}
