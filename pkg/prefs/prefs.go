// Package prefs persists user preferences: release channel overrides,
// the default channel, per-package locales and one-time migration flags.
package prefs

import (
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/clause"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/errors"
)

// Preference keys.
const (
	KeyDefaultChannel     = "default_release_channel"
	KeyLegacyCacheRemoved = "legacy_cache_removed"
)

// Override scopes.
const (
	ScopePackage = "package"
	ScopeGroup   = "group"
)

// ChannelOverride is a persisted release channel choice.
type ChannelOverride struct {
	Scope     string `gorm:"primaryKey"`
	Name      string `gorm:"primaryKey"`
	Channel   string `gorm:"not null"`
	UpdatedAt time.Time
}

// Setting is a key/value preference.
type Setting struct {
	Name  string `gorm:"primaryKey"`
	Value string
}

// PackageLocales holds the app-specific locales of a package.
type PackageLocales struct {
	Package string `gorm:"primaryKey"`
	Locales string
}

// Store is safe for concurrent use.
type Store struct {
	mu sync.Mutex
	db *gorm.DB
}

// Open opens or creates the preferences database at path. ":memory:" is
// accepted for tests.
func Open(path string, debug bool) (*Store, error) {
	conf := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if debug {
		conf.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}
	db, err := gorm.Open(sqlite.Open(path), conf)
	if err != nil {
		logger.Error("db open error", logger.Fields{"path": path, "error": err.Error()})
		return nil, errors.Wrap(err, "failed to open preferences")
	}
	return New(db)
}

// New wraps an open database and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	// a single connection keeps ":memory:" databases shared
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&ChannelOverride{}, &Setting{}, &PackageLocales{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate preferences")
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Channel returns the override for name in scope.
func (s *Store) Channel(scope, name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var o ChannelOverride
	if err := s.db.Where("scope = ? AND name = ?", scope, name).Take(&o).Error; err != nil {
		return "", false
	}
	return o.Channel, true
}

// SetChannel stores the override for name in scope.
func (s *Store) SetChannel(scope, name, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := ChannelOverride{Scope: scope, Name: name, Channel: channel}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"channel", "updated_at"}),
	}).Create(&o).Error
	if err != nil {
		return errors.Wrapf(err, "failed to store %s channel of %s", scope, name)
	}
	return nil
}

// ClearChannel removes the override for name in scope.
func (s *Store) ClearChannel(scope, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Where("scope = ? AND name = ?", scope, name).Delete(&ChannelOverride{}).Error
}

// Channels returns every override in scope.
func (s *Store) Channels(scope string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []ChannelOverride
	if err := s.db.Where("scope = ?", scope).Find(&rows).Error; err != nil {
		logger.Warn("unable to read channel overrides", logger.Fields{"scope": scope, "error": err.Error()})
		return map[string]string{}
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Channel
	}
	return out
}

// String returns a setting.
func (s *Store) String(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var row Setting
	if err := s.db.Where("name = ?", key).Take(&row).Error; err != nil {
		return "", false
	}
	return row.Value, true
}

// SetString stores a setting.
func (s *Store) SetString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Save(&Setting{Name: key, Value: value}).Error
}

// Bool returns a boolean setting, false when unset.
func (s *Store) Bool(key string) bool {
	v, ok := s.String(key)
	return ok && v == "true"
}

// SetBool stores a boolean setting.
func (s *Store) SetBool(key string, value bool) error {
	v := "false"
	if value {
		v = "true"
	}
	return s.SetString(key, v)
}

// Locales returns the app-specific locales of pkg.
func (s *Store) Locales(pkg string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var row PackageLocales
	if err := s.db.Where("package = ?", pkg).Take(&row).Error; err != nil || row.Locales == "" {
		return nil
	}
	return strings.Split(row.Locales, ",")
}

// SetLocales stores the app-specific locales of pkg. An empty list
// removes them.
func (s *Store) SetLocales(pkg string, locales []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(locales) == 0 {
		return s.db.Where("package = ?", pkg).Delete(&PackageLocales{}).Error
	}
	return s.db.Save(&PackageLocales{Package: pkg, Locales: strings.Join(locales, ",")}).Error
}
