package repository

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grapheneos/appstore/pkg/apkcheck"
	"github.com/grapheneos/appstore/pkg/archive"
	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/signature"
	"github.com/grapheneos/appstore/test/testutil"
)

func TestSignMetadataRoundTrip(t *testing.T) {
	srv := testutil.NewRepoServer(t)
	var indented bytes.Buffer
	require.NoError(t, json.Indent(&indented, sampleMetadata(1_800_000_000), "", "    "))

	body, err := SignMetadata(srv.Signer, indented.Bytes())
	require.NoError(t, err)
	msg, _, err := signature.SplitSignedBody(body)
	require.NoError(t, err)
	assert.NotContains(t, string(msg), "\n", "canonical form has no whitespace")

	srv.SetRawMetadata(body)
	cat, err := newTestFetcher(t, srv, true).Fetch(context.Background(), catalog.Placeholder(srv.URL), true)
	require.NoError(t, err)
	assert.NotNil(t, cat.Container("org.example.app"))
}

func TestSignMetadataRejectsInvalidJSON(t *testing.T) {
	srv := testutil.NewRepoServer(t)
	_, err := SignMetadata(srv.Signer, []byte("{not json"))
	assert.ErrorIs(t, err, errors.ErrMetadataCanonical)
}

func TestMetadataFileName(t *testing.T) {
	assert.Equal(t, "metadata.1.0.sjson", MetadataFileName(0))
	assert.Equal(t, "metadata.1.3.sjson", MetadataFileName(3))
}

func writeApk(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func TestPackVariant(t *testing.T) {
	src := t.TempDir()
	root := t.TempDir()
	base := writeApk(t, src, "base.apk", []byte("base payload"))
	split := writeApk(t, src, "split_config.arm64_v8a.apk", []byte("native payload"))

	read := func(r io.ReaderAt, size int64) (*apkcheck.Manifest, error) {
		return &apkcheck.Manifest{Package: "org.example.app", VersionCode: 7, VersionName: "1.7", HasCode: true}, nil
	}
	am := archive.NewManager()
	packed, err := PackVariant(context.Background(), am, root, []string{base, split}, PackOptions{ReadManifest: read})
	require.NoError(t, err)

	assert.Equal(t, "org.example.app", packed.ManifestName)
	assert.Equal(t, int64(7), packed.VersionCode)
	assert.Equal(t, "1.7", packed.VersionName)
	assert.Equal(t, []string{"base.apk", "split_config.arm64_v8a.apk"}, packed.Apks)
	assert.Equal(t, []int64{12, 14}, packed.ApkSizes)
	sum := testutil.Digest([]byte("base payload"))
	assert.Equal(t, hex.EncodeToString(sum[:]), packed.ApkHashes[0])

	gz, err := os.ReadFile(filepath.Join(root, "packages", "org.example.app", "7", "base.apk.gz"))
	require.NoError(t, err)
	assert.Equal(t, int64(len(gz)), packed.ApkGzSizes[0])
	var out bytes.Buffer
	_, err = am.Decompress(context.Background(), bytes.NewReader(gz), &out)
	require.NoError(t, err)
	assert.Equal(t, "base payload", out.String())
}

func TestPackVariantErrors(t *testing.T) {
	src := t.TempDir()
	tests := []struct {
		name string
		apks []string
		opts PackOptions
	}{
		{name: "not an apk", apks: []string{writeApk(t, src, "notes.txt", []byte("x"))}, opts: PackOptions{ManifestName: "a", VersionCode: 1}},
		{name: "no base and no explicit values", apks: []string{writeApk(t, src, "split.apk", []byte("x"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PackVariant(context.Background(), archive.NewManager(), t.TempDir(), tt.apks, tt.opts)
			assert.ErrorIs(t, err, errors.ErrApkName)
		})
	}
}
