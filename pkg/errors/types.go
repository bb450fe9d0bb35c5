package errors

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/grapheneos/appstore/pkg/platform"
)

// RepoUpdateError reports a failed catalog refresh.
type RepoUpdateError struct {
	Err    error
	Manual bool
}

func (e *RepoUpdateError) Error() string {
	return "unable to fetch app list: " + e.Err.Error()
}

func (e *RepoUpdateError) Unwrap() error { return e.Err }

// IsNotable is false for transient network failures that are not worth
// surfacing after a background refresh.
func (e *RepoUpdateError) IsNotable() bool {
	return ClassifyNetworkError(e.Err) == NetworkErrorNone
}

// NetworkErrorKind classifies transport failures.
type NetworkErrorKind int

const (
	NetworkErrorNone NetworkErrorKind = iota
	NetworkErrorConnectionRefused
	NetworkErrorTimeout
	NetworkErrorUnknownHost
)

// ClassifyNetworkError returns the NetworkErrorKind of err.
func ClassifyNetworkError(err error) NetworkErrorKind {
	if err == nil {
		return NetworkErrorNone
	}
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) && (dnsErr.IsNotFound || !dnsErr.IsTimeout) {
		return NetworkErrorUnknownHost
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) {
		return NetworkErrorConnectionRefused
	}
	if stderrors.Is(err, os.ErrDeadlineExceeded) {
		return NetworkErrorTimeout
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return NetworkErrorTimeout
	}
	return NetworkErrorNone
}

// MissingDependencyReason explains why a dependency cannot be satisfied.
type MissingDependencyReason int

const (
	ReasonMissingInRepo MissingDependencyReason = iota
	ReasonDisabledBeforeInstall
	ReasonDisabledAfterInstall
	ReasonUninstalledAfterInstall
)

func (r MissingDependencyReason) String() string {
	switch r {
	case ReasonMissingInRepo:
		return "missing in repository"
	case ReasonDisabledBeforeInstall:
		return "disabled"
	case ReasonDisabledAfterInstall:
		return "disabled after install"
	case ReasonUninstalledAfterInstall:
		return "uninstalled after install"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// MissingDependencyError names an unsatisfiable dependency edge.
type MissingDependencyError struct {
	Dependant  string
	Dependency string
	MinVersion int64
	Reason     MissingDependencyReason
}

func (e *MissingDependencyError) Error() string {
	dep := e.Dependency
	if e.MinVersion != 0 {
		dep = fmt.Sprintf("%s >= %d", dep, e.MinVersion)
	}
	return fmt.Sprintf("dependency %s of %s is %s", dep, e.Dependant, e.Reason)
}

// DependencyResolutionError aborts a resolution walk.
type DependencyResolutionError struct {
	Details *MissingDependencyError
}

func (e *DependencyResolutionError) Error() string {
	return "dependency resolution failed: " + e.Details.Error()
}

func (e *DependencyResolutionError) Unwrap() error { return e.Details }

// InstallerBusyError is returned when a requested package or one of its
// dependencies is already installing.
type InstallerBusyError struct {
	PkgName          string
	RequestedPkgName string
}

func (e *InstallerBusyError) Error() string {
	if e.PkgName == e.RequestedPkgName {
		return fmt.Sprintf("%s is already being installed", e.PkgName)
	}
	return fmt.Sprintf("dependency %s of %s is already being installed", e.PkgName, e.RequestedPkgName)
}

// IsDependency reports whether the busy package is a dependency of the
// requested one.
func (e *InstallerBusyError) IsDependency() bool {
	return e.PkgName != e.RequestedPkgName
}

// PackagesBusyError is returned when another installer holds some packages.
type PackagesBusyError struct {
	PackageNames []string
}

func (e *PackagesBusyError) Error() string {
	return "packages are busy: " + strings.Join(e.PackageNames, ", ")
}

// DownloadError covers every failure before a session is committed.
type DownloadError struct {
	Labels []string
	Err    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("unable to download %s: %v", strings.Join(e.Labels, ", "), e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// InstallerPackage describes one package of a committed request.
type InstallerPackage struct {
	Name                       string
	Label                      string
	VersionName                string
	ShowAutoUpdateNotification bool
}

// InstallerRequest is attached to every committed session or uninstall.
type InstallerRequest struct {
	Packages      []InstallerPackage
	UserInitiated bool
	Uninstall     bool
}

// Labels returns the package labels in request order.
func (r InstallerRequest) Labels() []string {
	labels := make([]string, len(r.Packages))
	for i, p := range r.Packages {
		labels[i] = p.Label
	}
	return labels
}

// PackageInstallerError is the OS-reported failure of a committed session.
type PackageInstallerError struct {
	Request      InstallerRequest
	LegacyStatus int
	Message      string
	Status       platform.Status
}

func (e *PackageInstallerError) Error() string {
	verb := "install"
	if e.Request.Uninstall {
		verb = "uninstall"
	}
	return fmt.Sprintf("unable to %s %s: %s (status %d, legacy status %d)",
		verb, strings.Join(e.Request.Labels(), ", "), e.Message, e.Status, e.LegacyStatus)
}

// IsAborted reports a user-cancelled confirmation, which is not surfaced.
func (e *PackageInstallerError) IsAborted() bool {
	return e.Status == platform.StatusFailureAborted
}

func (e *PackageInstallerError) Is(target error) bool {
	return target == ErrInstallAborted && e.IsAborted()
}
