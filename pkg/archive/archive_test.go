package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grapheneos/appstore/pkg/errors"
)

func compressed(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := NewManager().Compress(context.Background(), bytes.NewReader(data), &buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("apk payload "), 10_000)
	gz := compressed(t, data)
	assert.Less(t, len(gz), len(data))

	var out bytes.Buffer
	n, err := NewManager().Decompress(context.Background(), bytes.NewReader(gz), &out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, out.Bytes())
}

func TestDecompressVerified(t *testing.T) {
	data := []byte("hello apk")
	gz := compressed(t, data)
	digest := sha256.Sum256(data)

	tests := []struct {
		name    string
		size    int64
		digest  [32]byte
		wantErr error
	}{
		{name: "valid", size: int64(len(data)), digest: digest},
		{name: "size mismatch", size: int64(len(data)) + 1, digest: digest, wantErr: errors.ErrSizeMismatch},
		{name: "digest mismatch", size: int64(len(data)), digest: sha256.Sum256([]byte("other")), wantErr: errors.ErrDigestMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := NewManager().DecompressVerified(context.Background(), bytes.NewReader(gz), &out, tt.size, tt.digest)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, data, out.Bytes())
		})
	}
}

func TestDecompressInvalidStream(t *testing.T) {
	var out bytes.Buffer
	_, err := NewManager().Decompress(context.Background(), bytes.NewReader([]byte("not gzip")), &out)
	assert.Error(t, err)
}

func TestDecompressCancelled(t *testing.T) {
	gz := compressed(t, bytes.Repeat([]byte("x"), 1<<20))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := NewManager().Decompress(ctx, bytes.NewReader(gz), &out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContextReader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := ContextReader(ctx, bytes.NewReader([]byte("abcdef")))

	buf := make([]byte, 3)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	cancel()
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompressFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "base.apk")
	dst := filepath.Join(dir, "base.apk.gz")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte("a"), 4096), 0o644))

	size, err := NewManager().CompressFile(context.Background(), src, dst)
	require.NoError(t, err)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), size)
	assert.NoFileExists(t, dst+".tmp")

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	var out bytes.Buffer
	_, err = NewManager().Decompress(context.Background(), f, &out)
	require.NoError(t, err)
	assert.Equal(t, 4096, out.Len())
}
