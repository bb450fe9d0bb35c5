package cache

import (
	"time"

	"github.com/grapheneos/appstore/pkg/fsutil"
)

// CacheDirPerm is the permission mode of cache directories (rwx------).
const CacheDirPerm = fsutil.DirModePrivate

const (
	// DefaultMaxSize is the size the cache is pruned down to.
	DefaultMaxSize int64 = 500_000_000
	// DefaultMaxAge is the age after which a version dir is always removed.
	DefaultMaxAge = 48 * time.Hour
)
