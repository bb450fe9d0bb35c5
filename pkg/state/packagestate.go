package state

import (
	"fmt"

	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/platform"
)

// Status is the install status of a package, in priority order.
type Status int

const (
	StatusNotInstalled Status = iota
	StatusSharedLibrary
	StatusDisabled
	StatusInstalling
	StatusOutOfDate
	StatusUpToDate
)

func (s Status) String() string {
	switch s {
	case StatusNotInstalled:
		return "not installed"
	case StatusSharedLibrary:
		return "shared library"
	case StatusDisabled:
		return "disabled"
	case StatusInstalling:
		return "installing"
	case StatusOutOfDate:
		return "update available"
	case StatusUpToDate:
		return "installed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// TaskPhase is the progress phase of an install task.
type TaskPhase int

const (
	PhasePendingDownload TaskPhase = iota
	PhaseDownloading
	PhasePendingInstall
)

// Task is the state store's view of an in-flight install task.
type Task interface {
	PackageName() string
	Phase() TaskPhase
	// Progress returns compressed bytes received and expected.
	Progress() (done, total int64)
	IsUpdate() bool
	IsCancelled() bool
}

// PackageState is the live state of one catalog package. It is owned by
// the control loop; read and write it only there.
type PackageState struct {
	Name string
	ID   int64

	variant *catalog.Variant
	// OSInfo is nil when the package is not installed.
	OSInfo          *platform.PackageInfo
	ChannelOverride *catalog.ReleaseChannel
	// Locales are the app-specific locales, if any.
	Locales []string

	Task                 Task
	SessionID            int
	WaitingForUserAction bool

	store        *Store
	downloadSize int64
}

// Variant is the variant selected under the effective release channel.
func (ps *PackageState) Variant() *catalog.Variant { return ps.variant }

func (ps *PackageState) setVariant(v *catalog.Variant) {
	ps.variant = v
	ps.downloadSize = -1
}

// UpdateVariant re-selects the variant after a channel change.
func (ps *PackageState) UpdateVariant() {
	v := ps.variant.Container.Variant(ps.PreferredChannel(ps.variant.Container))
	if v != ps.variant {
		ps.setVariant(v)
	}
}

// NotifyListeners dispatches a state-changed event.
func (ps *PackageState) NotifyListeners() { ps.store.dispatchStateChanged(ps) }

// IsInstalling reports an install task or a live installer session.
func (ps *PackageState) IsInstalling() bool {
	return ps.Task != nil || ps.HasInstallerSession()
}

// HasInstallerSession reports whether an installer session is linked.
func (ps *PackageState) HasInstallerSession() bool {
	return ps.SessionID != platform.InvalidSessionID
}

// IsInstalled reports whether the OS knows the package.
func (ps *PackageState) IsInstalled() bool { return ps.OSInfo != nil }

// IsOutdated is true for enabled installed packages older than the
// selected variant.
func (ps *PackageState) IsOutdated() bool {
	pi := ps.OSInfo
	return pi != nil && pi.Enabled && pi.VersionCode < ps.variant.VersionCode
}

// Status returns the highest-priority status that applies.
func (ps *PackageState) Status() Status {
	switch {
	case ps.IsInstalling():
		return StatusInstalling
	case ps.variant.Container.IsSharedLibrary:
		return StatusSharedLibrary
	case ps.OSInfo == nil:
		return StatusNotInstalled
	case !ps.OSInfo.Enabled:
		return StatusDisabled
	case ps.OSInfo.VersionCode < ps.variant.VersionCode:
		return StatusOutOfDate
	default:
		return StatusUpToDate
	}
}

// PreferredChannel is the group override, else the package override,
// else the default channel.
func (ps *PackageState) PreferredChannel(c *catalog.Container) catalog.ReleaseChannel {
	var override *catalog.ReleaseChannel
	if c != nil && c.Group != nil {
		override = c.Group.ChannelOverride
	} else {
		override = ps.ChannelOverride
	}
	if override != nil {
		return *override
	}
	return ps.store.defaultChannel
}

// ResourceConfig merges device locales with the app-specific ones.
func (ps *PackageState) ResourceConfig() catalog.ResourceConfig {
	dev := ps.store.device
	locales := append([]string(nil), dev.Locales...)
	locales = append(locales, ps.Locales...)
	return catalog.ResourceConfig{DensityDPI: dev.DensityDPI, Locales: locales}
}

// DownloadSize is the compressed size of the apks this device needs.
func (ps *PackageState) DownloadSize() int64 {
	if ps.downloadSize < 0 {
		ps.downloadSize = catalog.TotalCompressedSize(ps.variant.CollectNeededApks(ps.ResourceConfig()))
	}
	return ps.downloadSize
}
