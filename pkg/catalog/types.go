// Package catalog is the parsed, immutable view of one repository snapshot:
// package containers, their per-channel variants, apk splits and
// dependency edges.
package catalog

import (
	"fmt"
	"sort"
)

// MinTimestamp is the oldest catalog the client accepts.
const MinTimestamp int64 = 1_714_000_000

// ReleaseChannel is ordered from least to most stable.
type ReleaseChannel int

const (
	ChannelAlpha ReleaseChannel = iota
	ChannelBeta
	ChannelStable
)

// Channels lists every channel in stability order.
var Channels = []ReleaseChannel{ChannelAlpha, ChannelBeta, ChannelStable}

func (c ReleaseChannel) String() string {
	switch c {
	case ChannelAlpha:
		return "alpha"
	case ChannelBeta:
		return "beta"
	case ChannelStable:
		return "stable"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// ParseReleaseChannel accepts the lower-case channel names.
func ParseReleaseChannel(s string) (ReleaseChannel, error) {
	for _, c := range Channels {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown release channel %q", s)
}

// Source says who built a package.
type Source int

const (
	SourceGrapheneOS Source = iota
	SourceGrapheneOSBuild
	SourceMirror
	SourceGoogle
)

var sourceNames = map[string]Source{
	"GrapheneOS":       SourceGrapheneOS,
	"GrapheneOS_build": SourceGrapheneOSBuild,
	"Mirror":           SourceMirror,
	"Google":           SourceGoogle,
}

func (s Source) String() string {
	for name, v := range sourceNames {
		if v == s {
			return name
		}
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// Catalog is one verified repository snapshot. It is never mutated after
// Parse, except for Group.ChannelOverride, which the state store owns.
type Catalog struct {
	Timestamp     int64
	ETag          string
	IsPlaceholder bool
	BaseURL       string
	Packages      map[string]*Container
	Groups        map[string]*Group

	renamed map[string]string
}

// TranslateManifestName maps a manifest package name to the installed name
// when the package was renamed with the original-package mechanism.
func (c *Catalog) TranslateManifestName(name string) string {
	if n, ok := c.renamed[name]; ok {
		return n
	}
	return name
}

// Container returns the package container for a canonical name.
func (c *Catalog) Container(name string) *Container {
	return c.Packages[name]
}

// SortedNames returns package names in lexical order.
func (c *Catalog) SortedNames() []string {
	names := make([]string, 0, len(c.Packages))
	for n := range c.Packages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Placeholder returns the empty catalog used before the first fetch.
func Placeholder(baseURL string) *Catalog {
	return &Catalog{
		Timestamp:     MinTimestamp,
		IsPlaceholder: true,
		BaseURL:       baseURL,
		Packages:      map[string]*Container{},
		Groups:        map[string]*Group{},
		renamed:       map[string]string{},
	}
}

// Group links packages that must share a release channel.
type Group struct {
	Name     string
	Packages []*Container
	// ChannelOverride is written only on the control loop.
	ChannelOverride *ReleaseChannel
}

// Container holds the properties shared by every variant of a package.
type Container struct {
	Name string
	// ManifestName differs from Name for renamed packages.
	ManifestName string

	Description                    string
	Source                         Source
	NoCode                         bool
	IsTopLevel                     bool
	ShowAutoUpdateNotifications    bool
	IsSharedLibrary                bool
	PackagesAllowedToTriggerUpdate []string
	Signatures                     [][32]byte
	IconURL                        string
	Group                          *Group
	HasFsVeritySignatures          bool
	RequestUpdateOwnership         bool
	OptOutOfBulkUpdates            bool

	// Dependencies is nil when the container declares none, so variants
	// fall back to an empty list instead.
	Dependencies []Dependency
	// Variants are sorted from least to most stable, one per channel.
	Variants []*Variant

	baseURL string
}

// Variant selects the variant for channel.
func (c *Container) Variant(channel ReleaseChannel) *Variant {
	return FindVariant(c.Variants, channel)
}

// FindVariant returns the first variant whose channel is at least as
// stable as channel, else the most stable one. variants must be sorted by
// stability and non-empty.
func FindVariant(variants []*Variant, channel ReleaseChannel) *Variant {
	for _, v := range variants {
		if v.Channel >= channel {
			return v
		}
	}
	return variants[len(variants)-1]
}

// Variant is one installable version of a package, the unit of
// installation.
type Variant struct {
	Container *Container

	VersionCode     int64
	VersionName     string
	Label           string
	Description     string
	ReleaseNotes    string
	Channel         ReleaseChannel
	Dependencies    []Dependency
	Apks            []*Apk
	HasV4Signatures bool
}

// Name is the canonical package name.
func (v *Variant) Name() string { return v.Container.Name }

// ManifestName is the package name the installer expects.
func (v *Variant) ManifestName() string { return v.Container.ManifestName }

func (v *Variant) String() string {
	return fmt.Sprintf("%s %d (%s)", v.Container.Name, v.VersionCode, v.Channel)
}

// TotalSize sums the uncompressed size of apks.
func TotalSize(apks []*Apk) int64 {
	var n int64
	for _, a := range apks {
		n += a.Size
	}
	return n
}

// TotalCompressedSize sums the download size of apks.
func TotalCompressedSize(apks []*Apk) int64 {
	var n int64
	for _, a := range apks {
		n += a.CompressedSize
	}
	return n
}

// ApkType classifies split apks.
type ApkType int

const (
	ApkUnconditional ApkType = iota
	ApkABI
	ApkLanguage
	ApkDensity
)

func (t ApkType) String() string {
	switch t {
	case ApkUnconditional:
		return "unconditional"
	case ApkABI:
		return "abi"
	case ApkLanguage:
		return "language"
	case ApkDensity:
		return "density"
	default:
		return fmt.Sprintf("apktype(%d)", int(t))
	}
}

// Apk is one artifact of a variant.
type Apk struct {
	Variant        *Variant
	Name           string
	SHA256         [32]byte
	Size           int64
	CompressedSize int64
	Type           ApkType
	Qualifier      string
}

// DownloadURL is the location of the gzip-compressed apk.
func (a *Apk) DownloadURL() string {
	return fmt.Sprintf("%s/packages/%s/%d/%s.gz",
		a.Variant.Container.baseURL, a.Variant.ManifestName(), a.Variant.VersionCode, a.Name)
}

// FsVeritySignatureURL is the location of the apk's fs-verity signature.
func (a *Apk) FsVeritySignatureURL() string {
	return fmt.Sprintf("%s/packages/%s/%d/%s.fsv_sig",
		a.Variant.Container.baseURL, a.Variant.ManifestName(), a.Variant.VersionCode, a.Name)
}
