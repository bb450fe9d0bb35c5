package cache

import (
	"context"
	"time"

	"github.com/grapheneos/appstore/pkg/platform"
)

// Pruner bounds the package cache.
type Pruner interface {
	Prune(ctx context.Context) (*PruneResult, error)
	Info() (*Info, error)
	Clean() (*CleanResult, error)
	Directory() string
}

// Flags persists one-time migrations.
type Flags interface {
	Bool(key string) bool
	SetBool(key string, value bool) error
}

// InstalledPackages is the view of the OS used to drop stale versions.
type InstalledPackages interface {
	GetPackageInfo(name string) (*platform.PackageInfo, error)
}

// Options configure a Manager.
type Options struct {
	MaxSize int64
	MaxAge  time.Duration
	// LegacyPaths are removed once, on the first pruning run.
	LegacyPaths []string
}

// PruneResult summarizes one pruning pass.
type PruneResult struct {
	// Obsolete counts version dirs not newer than the installed version.
	Obsolete int
	// Evicted counts version dirs removed for age or size.
	Evicted        int
	FreedBytes     int64
	RemainingBytes int64
	LegacyRemoved  bool
}

// CleanResult contains information about what was cleaned.
type CleanResult struct {
	FreedBytes   int64
	RemovedFiles int
}

// Info describes the package cache.
type Info struct {
	Directory   string
	TotalSize   int64
	Files       int
	Packages    int
	VersionDirs int
	LastPruned  time.Time
}
