// Package device is a local implementation of the platform capabilities.
// Installed packages, installer sessions and busy markers live in a sqlite
// database under a root directory; staged and installed apks are plain
// files next to it. The command line client uses it as its "device", and
// integration tests use it as a stand-in for the OS installer.
package device

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/apkcheck"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/fsutil"
	"github.com/grapheneos/appstore/pkg/platform"
)

const (
	databaseName = "device.db"
	packagesDir  = "packages"
	sessionsDir  = "sessions"
	baseApk      = "base.apk"
)

// InstalledPackage is a row of the installed package table.
type InstalledPackage struct {
	Name        string `gorm:"primaryKey"`
	VersionCode int64
	VersionName string
	Enabled     bool
	System      bool
	InstalledAt time.Time
}

// SharedLibrary is a row of the shared library table.
type SharedLibrary struct {
	PackageName string `gorm:"primaryKey"`
	VersionCode int64  `gorm:"primaryKey"`
}

// InstallerSession is a row of the session table.
type InstallerSession struct {
	ID                     int `gorm:"primaryKey;autoIncrement"`
	AppPackageName         string
	AppLabel               string
	MultiPackage           bool
	ParentID               int
	RequireUserAction      int
	Scenario               int
	Size                   int64
	RequestUpdateOwnership bool
	Committed              bool
	Progress               float32
	CreatedAt              time.Time
}

// BusyPackage marks a package another installer is working on.
type BusyPackage struct {
	Name       string `gorm:"primaryKey"`
	AcquiredAt time.Time
}

// Options configure a System.
type Options struct {
	// Root holds the database and the apk files.
	Root   string
	Device platform.Device
	// Features maps system feature names to their versions.
	Features map[string]int64
	// Restricted makes InstallationAllowed fail.
	Restricted bool
	// SingleSessionOnly disables multi-package sessions.
	SingleSessionOnly bool
	// ReadManifest parses committed base apks. Defaults to
	// apkcheck.ReadManifest.
	ReadManifest apkcheck.ManifestReader
	Debug        bool
}

// System implements platform.System, platform.BusyRegistrar and
// platform.PackageFinder.
type System struct {
	opts Options
	db   *gorm.DB
	// mu serializes database access and session file mutation.
	mu sync.Mutex

	cbMu      sync.Mutex
	callbacks []platform.SessionCallback
}

var (
	_ platform.System        = (*System)(nil)
	_ platform.BusyRegistrar = (*System)(nil)
	_ platform.PackageFinder = (*System)(nil)
)

// Open opens or creates the device at opts.Root.
func Open(opts Options) (*System, error) {
	if opts.Root == "" {
		return nil, errors.ErrDeviceRoot
	}
	if opts.ReadManifest == nil {
		opts.ReadManifest = apkcheck.ReadManifest
	}
	for _, dir := range []string{opts.Root, filepath.Join(opts.Root, packagesDir), filepath.Join(opts.Root, sessionsDir)} {
		if err := os.MkdirAll(dir, fsutil.DirModePrivate); err != nil {
			return nil, errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	conf := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if opts.Debug {
		conf.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}
	db, err := gorm.Open(sqlite.Open(filepath.Join(opts.Root, databaseName)), conf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open device database")
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&InstalledPackage{}, &SharedLibrary{}, &InstallerSession{}, &BusyPackage{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate device database")
	}
	logger.Debug("Opened device", logger.Fields{"root": opts.Root, "sdk": opts.Device.SDK, "abi": opts.Device.PrimaryABI})
	return &System{opts: opts, db: db}, nil
}

// Close releases the database.
func (s *System) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Device implements platform.System.
func (s *System) Device() platform.Device { return s.opts.Device }

// InstallationAllowed implements platform.Policy.
func (s *System) InstallationAllowed() error {
	if s.opts.Restricted {
		return platform.ErrUserRestricted
	}
	return nil
}

func (s *System) packageDir(name string) string {
	return filepath.Join(s.opts.Root, packagesDir, name)
}

func (s *System) sessionDir(id int) string {
	return filepath.Join(s.opts.Root, sessionsDir, strconv.Itoa(id))
}

// GetPackageInfo implements platform.PackageQuery.
func (s *System) GetPackageInfo(name string) (*platform.PackageInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packageInfo(name)
}

func (s *System) packageInfo(name string) (*platform.PackageInfo, error) {
	var row InstalledPackage
	err := s.db.Where("name = ?", name).Take(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, platform.ErrPackageNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s", name)
	}
	return &platform.PackageInfo{
		Name:        row.Name,
		VersionCode: row.VersionCode,
		VersionName: row.VersionName,
		Enabled:     row.Enabled,
		System:      row.System,
		APKPaths:    apkPaths(s.packageDir(name)),
	}, nil
}

// apkPaths lists the apks of dir, base apk first.
func apkPaths(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".apk") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.SliceStable(paths, func(i, j int) bool {
		bi, bj := filepath.Base(paths[i]) == baseApk, filepath.Base(paths[j]) == baseApk
		if bi != bj {
			return bi
		}
		return paths[i] < paths[j]
	})
	return paths
}

// Packages lists every installed package in name order.
func (s *System) Packages() ([]platform.PackageInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []InstalledPackage
	if err := s.db.Order("name").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list packages")
	}
	out := make([]platform.PackageInfo, len(rows))
	for i, row := range rows {
		out[i] = platform.PackageInfo{
			Name:        row.Name,
			VersionCode: row.VersionCode,
			VersionName: row.VersionName,
			Enabled:     row.Enabled,
			System:      row.System,
			APKPaths:    apkPaths(s.packageDir(row.Name)),
		}
	}
	return out, nil
}

// Register records an installed package without staging files, the way
// preinstalled system packages appear on a device.
func (s *System) Register(info platform.PackageInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Save(&InstalledPackage{
		Name:        info.Name,
		VersionCode: info.VersionCode,
		VersionName: info.VersionName,
		Enabled:     info.Enabled,
		System:      info.System,
		InstalledAt: time.Now(),
	}).Error
}

// SetEnabled toggles the enabled flag of an installed package.
func (s *System) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.db.Model(&InstalledPackage{}).Where("name = ?", name).Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return platform.ErrPackageNotFound
	}
	return nil
}

// RegisterLibrary records a shared library declared by pkgName.
func (s *System) RegisterLibrary(pkgName string, versionCode int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Save(&SharedLibrary{PackageName: pkgName, VersionCode: versionCode}).Error
}

// SharedLibraries implements platform.PackageQuery.
func (s *System) SharedLibraries() ([]platform.SharedLibrary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []SharedLibrary
	if err := s.db.Order("package_name, version_code").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list shared libraries")
	}
	out := make([]platform.SharedLibrary, len(rows))
	for i, r := range rows {
		out[i] = platform.SharedLibrary{PackageName: r.PackageName, VersionCode: r.VersionCode}
	}
	return out, nil
}

// SystemFeatureVersion implements platform.PackageQuery.
func (s *System) SystemFeatureVersion(name string) (int64, bool) {
	v, ok := s.opts.Features[name]
	return v, ok
}

// FindPackage implements platform.PackageFinder. Apks of other user
// profiles are not visible to a local device.
func (s *System) FindPackage(string, int64, [][32]byte) (*platform.PackageInfo, error) {
	return nil, platform.ErrUnsupported
}

// Acquire implements platform.BusyRegistrar. The markers are shared by
// every process using the same root.
func (s *System) Acquire(names []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var busy []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rows []BusyPackage
		if err := tx.Where("name IN ?", names).Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			busy = append(busy, r.Name)
		}
		if len(busy) > 0 {
			return nil
		}
		now := time.Now()
		for _, n := range names {
			if err := tx.Create(&BusyPackage{Name: n, AcquiredAt: now}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to mark packages busy")
	}
	sort.Strings(busy)
	return busy, nil
}

// Release implements platform.BusyRegistrar.
func (s *System) Release(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(names) == 0 {
		return nil
	}
	return s.db.Where("name IN ?", names).Delete(&BusyPackage{}).Error
}

// RegisterSessionCallback implements platform.Installer.
func (s *System) RegisterSessionCallback(cb platform.SessionCallback) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

func (s *System) sessionCallbacks() []platform.SessionCallback {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	return append([]platform.SessionCallback(nil), s.callbacks...)
}

func (s *System) notifyFinished(ids []int, success bool) {
	cbs := s.sessionCallbacks()
	for _, id := range ids {
		for _, cb := range cbs {
			cb.OnFinished(id, success)
		}
	}
}

func (s *System) notifyProgress(id int, progress float32) {
	for _, cb := range s.sessionCallbacks() {
		cb.OnProgressChanged(id, progress)
	}
}

// SupportsMultiPackage implements platform.Installer.
func (s *System) SupportsMultiPackage() bool { return !s.opts.SingleSessionOnly }

// Uninstall implements platform.Installer.
func (s *System) Uninstall(name string, target platform.StatusTarget) error {
	ev := platform.StatusEvent{SessionID: platform.InvalidSessionID, Status: platform.StatusSuccess}
	switch {
	case s.opts.Restricted:
		ev.Status = platform.StatusFailureBlocked
		ev.LegacyStatus = platform.LegacyDeleteFailedUserRestricted
		ev.Message = "uninstall is restricted for this user"
	default:
		if err := s.remove(name); err != nil {
			ev.Status = platform.StatusFailure
			ev.Message = err.Error()
		}
	}
	logger.Debug("Uninstall finished", logger.Fields{"package": name, "status": int(ev.Status)})
	go target.OnStatus(ev)
	return nil
}

func (s *System) remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.db.Where("name = ?", name).Delete(&InstalledPackage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return platform.ErrPackageNotFound
	}
	if err := s.db.Where("package_name = ?", name).Delete(&SharedLibrary{}).Error; err != nil {
		return err
	}
	return os.RemoveAll(s.packageDir(name))
}
