// Package cache manages the compressed package cache, laid out as
// <dir>/<package>/<versionCode>/<apk>.gz, and keeps it small.
package cache

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/fsutil"
	"github.com/grapheneos/appstore/pkg/metrics"
	"github.com/grapheneos/appstore/pkg/prefs"
)

// VersionDir is the cache directory of one package version.
func VersionDir(dir, pkgName string, versionCode int64) string {
	return filepath.Join(dir, pkgName, strconv.FormatInt(versionCode, 10))
}

// ApkPath is the cache file of a compressed apk.
func ApkPath(dir, pkgName string, versionCode int64, apkName string) string {
	return filepath.Join(VersionDir(dir, pkgName, versionCode), apkName+".gz")
}

// DefaultManager implements Pruner on a directory.
type DefaultManager struct {
	directory string
	opts      Options
	installed InstalledPackages
	flags     Flags
	now       func() time.Time

	mu         sync.Mutex
	lastPruned time.Time
}

var _ Pruner = (*DefaultManager)(nil)

// NewManager creates a cache manager. flags may be nil, which skips the
// legacy cleanup.
func NewManager(directory string, opts Options, installed InstalledPackages, flags Flags) *DefaultManager {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	return &DefaultManager{
		directory: directory,
		opts:      opts,
		installed: installed,
		flags:     flags,
		now:       time.Now,
	}
}

// Directory returns the cache directory path.
func (cm *DefaultManager) Directory() string {
	return cm.directory
}

type versionDir struct {
	path  string
	size  int64
	mtime time.Time
}

// Prune removes versions that are not newer than the installed one, then
// evicts the least recently written versions: everything older than
// MaxAge, and more until the cache is below MaxSize.
func (cm *DefaultManager) Prune(ctx context.Context) (*PruneResult, error) {
	if cm.directory == "" {
		return nil, errors.ErrCacheDirectory
	}
	result := &PruneResult{LegacyRemoved: cm.maybeRemoveLegacy()}

	obsolete, freed, err := cm.removeObsolete(ctx)
	if err != nil {
		return nil, err
	}
	result.Obsolete = obsolete
	result.FreedBytes = freed

	dirs, err := cm.collect()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(dirs, func(i, j int) bool { return dirs[i].mtime.Before(dirs[j].mtime) })

	var total int64
	for _, d := range dirs {
		total += d.size
	}
	minMtime := cm.now().Add(-cm.opts.MaxAge)
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !d.mtime.Before(minMtime) && total < cm.opts.MaxSize {
			break
		}
		if err := os.RemoveAll(d.path); err != nil {
			return nil, errors.Wrapf(err, "failed to remove %s", d.path)
		}
		total -= d.size
		result.Evicted++
		result.FreedBytes += d.size
	}
	result.RemainingBytes = total

	if err := fsutil.RemoveEmptyDirs(cm.directory); err != nil {
		return nil, errors.Wrap(err, "failed to remove empty cache directories")
	}

	cm.mu.Lock()
	cm.lastPruned = cm.now()
	cm.mu.Unlock()
	metrics.CacheRemovedBytes.Add(float64(result.FreedBytes))
	logger.Info("Pruned package cache", logger.Fields{
		"obsolete":  result.Obsolete,
		"evicted":   result.Evicted,
		"freed":     result.FreedBytes,
		"remaining": result.RemainingBytes,
	})
	return result, nil
}

// Run adapts Prune to the state store's pruning hook.
func (cm *DefaultManager) Run(ctx context.Context) error {
	_, err := cm.Prune(ctx)
	return err
}

func (cm *DefaultManager) maybeRemoveLegacy() bool {
	if cm.flags == nil || cm.flags.Bool(prefs.KeyLegacyCacheRemoved) {
		return false
	}
	for _, p := range cm.opts.LegacyPaths {
		if err := os.RemoveAll(p); err != nil {
			logger.Warn("Unable to remove legacy files", logger.Fields{"path": p, "error": err.Error()})
		}
	}
	if err := cm.flags.SetBool(prefs.KeyLegacyCacheRemoved, true); err != nil {
		logger.Warn("Unable to persist legacy cleanup", logger.Fields{"error": err.Error()})
	}
	return true
}

func (cm *DefaultManager) removeObsolete(ctx context.Context) (int, int64, error) {
	pkgDirs, err := os.ReadDir(cm.directory)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, errors.Wrapf(err, "failed to read %s", cm.directory)
	}
	var removed int
	var freed int64
	for _, pkg := range pkgDirs {
		if !pkg.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		info, err := cm.installed.GetPackageInfo(pkg.Name())
		if err != nil {
			continue
		}
		pkgPath := filepath.Join(cm.directory, pkg.Name())
		versions, err := os.ReadDir(pkgPath)
		if err != nil {
			continue
		}
		for _, v := range versions {
			code, err := strconv.ParseInt(v.Name(), 10, 64)
			if err != nil || code > info.VersionCode {
				continue
			}
			path := filepath.Join(pkgPath, v.Name())
			size, _, _ := getDirSizeAndFiles(path)
			if err := os.RemoveAll(path); err != nil {
				return 0, 0, errors.Wrapf(err, "failed to remove %s", path)
			}
			removed++
			freed += size
		}
	}
	return removed, freed, nil
}

// collect sums the regular files of every version dir and takes their
// latest mtime.
func (cm *DefaultManager) collect() ([]versionDir, error) {
	pkgDirs, err := os.ReadDir(cm.directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", cm.directory)
	}
	var dirs []versionDir
	for _, pkg := range pkgDirs {
		if !pkg.IsDir() {
			continue
		}
		pkgPath := filepath.Join(cm.directory, pkg.Name())
		versions, err := os.ReadDir(pkgPath)
		if err != nil {
			continue
		}
		for _, v := range versions {
			if !v.IsDir() {
				continue
			}
			d := versionDir{path: filepath.Join(pkgPath, v.Name())}
			_ = filepath.Walk(d.path, func(_ string, fi os.FileInfo, err error) error {
				if err != nil || !fi.Mode().IsRegular() {
					return nil
				}
				d.size += fi.Size()
				if fi.ModTime().After(d.mtime) {
					d.mtime = fi.ModTime()
				}
				return nil
			})
			dirs = append(dirs, d)
		}
	}
	return dirs, nil
}

// Clean removes every cached file.
func (cm *DefaultManager) Clean() (*CleanResult, error) {
	if cm.directory == "" {
		return nil, errors.ErrCacheDirectory
	}
	size, files, err := cleanDirectory(cm.directory)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCacheClean, err.Error())
	}
	metrics.CacheRemovedBytes.Add(float64(size))
	return &CleanResult{FreedBytes: size, RemovedFiles: files}, nil
}

// Info returns information about the cache.
func (cm *DefaultManager) Info() (*Info, error) {
	info := &Info{Directory: cm.directory}
	cm.mu.Lock()
	info.LastPruned = cm.lastPruned
	cm.mu.Unlock()

	size, files, err := getDirSizeAndFiles(cm.directory)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCacheInfo, err.Error())
	}
	info.TotalSize = size
	info.Files = files

	dirs, err := cm.collect()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCacheInfo, err.Error())
	}
	info.VersionDirs = len(dirs)
	pkgs := make(map[string]struct{})
	for _, d := range dirs {
		pkgs[filepath.Dir(d.path)] = struct{}{}
	}
	info.Packages = len(pkgs)
	return info, nil
}

// cleanDirectory empties a directory and returns bytes and files freed.
func cleanDirectory(dir string) (int64, int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, 0, nil
	}
	totalSize, files, err := getDirSizeAndFiles(dir)
	if err != nil {
		return 0, 0, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, 0, errors.Wrapf(err, "failed to remove directory %s", dir)
	}
	if err := os.MkdirAll(dir, os.FileMode(CacheDirPerm)); err != nil {
		return totalSize, files, errors.Wrapf(err, "failed to recreate directory %s", dir)
	}
	return totalSize, files, nil
}

// getDirSizeAndFiles sums the size and count of regular files below dir.
func getDirSizeAndFiles(dir string) (size int64, count int, err error) {
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		return 0, 0, nil
	}
	err = filepath.Walk(dir, func(_ string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.Mode().IsRegular() {
			size += info.Size()
			count++
		}
		return nil
	})
	if err != nil {
		err = errors.Wrapf(err, "error walking directory %s", dir)
	}
	return size, count, err
}
