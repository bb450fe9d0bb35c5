// Package platform describes the operating-system capabilities the client
// consumes: package queries, installer sessions, installation policy and
// the optional cross-profile helpers. Implementations live outside this
// package; pkg/device provides a local one.
package platform

//go:generate mockgen -destination=./mocks/platform.go -package=mocks . PackageQuery,Installer,Session,Policy,PackageFinder,BusyRegistrar

import (
	"errors"
	"io"
)

// InvalidSessionID marks the absence of an installer session.
const InvalidSessionID = -1

var (
	// ErrUnsupported is returned by optional capabilities the platform lacks.
	// Callers treat it as a normal branch, not a failure.
	ErrUnsupported = errors.New("operation not supported by platform")
	// ErrPackageNotFound is returned when a package is not installed.
	ErrPackageNotFound = errors.New("package not found")
	// ErrSessionNotFound is returned for unknown installer session ids.
	ErrSessionNotFound = errors.New("installer session not found")
	// ErrUserRestricted is returned when installing apps is disallowed for
	// the current user.
	ErrUserRestricted = errors.New("installation of apps is restricted for this user")
)

// PackageInfo is the OS view of an installed package.
type PackageInfo struct {
	Name        string
	VersionCode int64
	VersionName string
	Enabled     bool
	System      bool
	// APKPaths lists the base apk followed by split apks.
	APKPaths []string
}

// SharedLibrary identifies a shared library by its declaring package.
type SharedLibrary struct {
	PackageName string
	VersionCode int64
}

// PackageQuery reads installed-package state.
type PackageQuery interface {
	// GetPackageInfo returns ErrPackageNotFound when name is not installed.
	GetPackageInfo(name string) (*PackageInfo, error)
	SharedLibraries() ([]SharedLibrary, error)
	// SystemFeatureVersion reports whether the feature exists and its version.
	SystemFeatureVersion(name string) (int64, bool)
}

// PackageFinder locates apks of a package installed in another user profile.
type PackageFinder interface {
	// FindPackage returns a package of at least minVersion signed by one
	// of signatures, ErrPackageNotFound, or ErrUnsupported.
	FindPackage(name string, minVersion int64, signatures [][32]byte) (*PackageInfo, error)
}

// BusyRegistrar is the OS-level registry of packages other installers are
// working on.
type BusyRegistrar interface {
	// Acquire marks names busy. It returns the subset that is already busy
	// elsewhere, in which case nothing is marked.
	Acquire(names []string) ([]string, error)
	Release(names []string) error
}

// Policy gates installation.
type Policy interface {
	// InstallationAllowed returns ErrUserRestricted or nil.
	InstallationAllowed() error
}

// UserAction is the session's confirmation requirement.
type UserAction int

const (
	UserActionUnspecified UserAction = iota
	UserActionRequired
	UserActionNotRequired
)

// InstallScenario hints how the OS should optimize the install.
type InstallScenario int

const (
	ScenarioDefault InstallScenario = iota
	ScenarioFast
	ScenarioBulk
)

// SessionParams configures a new installer session.
type SessionParams struct {
	// AppPackageName must be the manifest package name.
	AppPackageName         string
	AppLabel               string
	MultiPackage           bool
	RequireUserAction      UserAction
	Scenario               InstallScenario
	SourceStore            bool
	Size                   int64
	RequestUpdateOwnership bool
}

// SessionInfo describes an existing installer session.
type SessionInfo struct {
	ID              int
	AppPackageName  string
	Committed       bool
	MultiPackage    bool
	ChildSessionIDs []int
	ParentSessionID int
	// Progress 0.8 means pending user action, 0.9 means resumed after it.
	Progress float32
}

// Status is the coarse outcome of a committed session.
type Status int

const (
	StatusPendingUserAction   Status = -1
	StatusSuccess             Status = 0
	StatusFailure             Status = 1
	StatusFailureBlocked      Status = 2
	StatusFailureAborted      Status = 3
	StatusFailureInvalid      Status = 4
	StatusFailureConflict     Status = 5
	StatusFailureStorage      Status = 6
	StatusFailureIncompatible Status = 7
	StatusFailureTimeout      Status = 8
)

// Detailed legacy status codes used for message selection.
const (
	LegacyInstallFailedInsufficientStorage = -4
	LegacyInstallFailedVersionDowngrade    = -25
	LegacyDeleteFailedUserRestricted       = -3
)

// StatusEvent is delivered to a StatusTarget once per status change.
type StatusEvent struct {
	SessionID    int
	Status       Status
	LegacyStatus int
	Message      string
	// UserAction is an opaque handle for the confirmation UI, set only
	// with StatusPendingUserAction.
	UserAction interface{}
}

// StatusTarget receives the outcome of a commit or uninstall.
type StatusTarget interface {
	OnStatus(ev StatusEvent)
}

// SessionCallback observes every session of this installer. Calls may
// arrive on any goroutine.
type SessionCallback interface {
	OnProgressChanged(sessionID int, progress float32)
	OnFinished(sessionID int, success bool)
}

// Session is an open installer session.
type Session interface {
	OpenWrite(name string, size int64) (io.WriteCloser, error)
	AddChildSession(childID int) error
	Commit(target StatusTarget) error
	Close() error
}

// Installer is the OS package-installer transaction API.
type Installer interface {
	CreateSession(params SessionParams) (int, error)
	OpenSession(id int) (Session, error)
	AbandonSession(id int) error
	SessionInfo(id int) (*SessionInfo, error)
	MySessions() ([]SessionInfo, error)
	RegisterSessionCallback(cb SessionCallback)
	// SupportsMultiPackage reports whether atomic multi-package sessions
	// work for this installer.
	SupportsMultiPackage() bool
	Uninstall(packageName string, target StatusTarget) error
}

// System bundles the mandatory capabilities.
type System interface {
	PackageQuery
	Installer
	Policy
	Device() Device
}
