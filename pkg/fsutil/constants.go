// Package fsutil holds file system helpers shared by the repository cache,
// the artifact cache and the persisted stores.
package fsutil

// Permission constants used for every file and directory the client creates.
const (
	FileModeDefault = 0o644 // -rw-r--r--
	FileModeSecure  = 0o640 // -rw-r-----
	FileModePrivate = 0o600 // -rw-------

	DirModeDefault = 0o755 // drwxr-xr-x
	DirModeSecure  = 0o750 // drwxr-x---
	DirModePrivate = 0o700 // drwx------
)
