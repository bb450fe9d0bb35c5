package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "repo.bin")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), FileModeSecure))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), FileModeSecure))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FileModeSecure), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestMove_File(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.gz.tmp")
	dst := filepath.Join(dir, "sub", "a.gz")
	require.NoError(t, os.WriteFile(src, []byte("payload"), FileModeDefault))

	require.NoError(t, Move(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestMove_EmptyPaths(t *testing.T) {
	assert.Error(t, Move("", "x"))
	assert.Error(t, Move("x", ""))
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("abc"), FileModeDefault))
	require.NoError(t, os.WriteFile(dst, []byte("longer old content"), FileModeDefault))

	require.NoError(t, Copy(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestRemoveEmptyDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "1"), DirModeSecure))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b", "2"), DirModeSecure))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "2", "keep.gz"), []byte("x"), FileModeDefault))

	require.NoError(t, RemoveEmptyDirs(root))

	_, err := os.Stat(filepath.Join(root, "a"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "b", "2", "keep.gz"))
	assert.NoError(t, err)
	_, err = os.Stat(root)
	assert.NoError(t, err)
}

func TestRemoveEmptyDirs_MissingRoot(t *testing.T) {
	assert.NoError(t, RemoveEmptyDirs(filepath.Join(t.TempDir(), "missing")))
}
