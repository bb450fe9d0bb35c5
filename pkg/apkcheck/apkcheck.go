// Package apkcheck inspects the binary manifest of a verified apk.
package apkcheck

import (
	"fmt"
	"io"
	"os"

	"github.com/shogo82148/androidbinary/apk"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/errors"
)

// Manifest is the subset of AndroidManifest.xml the installer checks.
type Manifest struct {
	Package     string
	VersionCode int64
	VersionName string
	// HasCode defaults to true when the attribute is absent.
	HasCode bool
}

// ManifestReader parses the manifest of an apk.
type ManifestReader func(r io.ReaderAt, size int64) (*Manifest, error)

// ReadManifest parses the manifest with androidbinary.
func ReadManifest(r io.ReaderAt, size int64) (*Manifest, error) {
	pkg, err := apk.OpenZipReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open apk: %w", err)
	}
	defer pkg.Close()

	m := pkg.Manifest()
	out := &Manifest{HasCode: true}
	if name, err := m.Package.String(); err == nil {
		out.Package = name
	}
	if vc, err := m.VersionCode.Int32(); err == nil {
		out.VersionCode = int64(vc)
	}
	if vn, err := m.VersionName.String(); err == nil {
		out.VersionName = vn
	}
	if hasCode, err := m.App.HasCode.Bool(); err == nil {
		out.HasCode = hasCode
	}
	return out, nil
}

// Checker enforces manifest policies.
type Checker struct {
	read ManifestReader
}

// NewChecker returns a checker backed by ReadManifest.
func NewChecker() *Checker {
	return &Checker{read: ReadManifest}
}

// NewCheckerWithReader is used when apks are not real Android packages.
func NewCheckerWithReader(read ManifestReader) *Checker {
	return &Checker{read: read}
}

// CheckNoCode returns ErrHasCode unless the apk in f declares
// hasCode="false". name is only used in messages.
func (c *Checker) CheckNoCode(f *os.File, pkgName, name string) error {
	st, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat apk")
	}
	m, err := c.read(f, st.Size())
	if err != nil {
		return errors.Wrapf(err, "%s: unable to parse %s", pkgName, name)
	}
	if m.HasCode {
		logger.Warn("Package declared as noCode has code", logger.Fields{"package": pkgName, "apk": name})
		return fmt.Errorf(`%s: %s should have hasCode="false" attribute in its AndroidManifest: %w`,
			pkgName, name, errors.ErrHasCode)
	}
	return nil
}
