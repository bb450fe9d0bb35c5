package testutil

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grapheneos/appstore/pkg/apkcheck"
)

// FakeApk returns a payload that ReadFakeManifest parses as the manifest
// of name at versionCode.
func FakeApk(name string, versionCode int64) []byte {
	return []byte(fmt.Sprintf("%s:%d", name, versionCode))
}

// ReadFakeManifest is an apkcheck.ManifestReader for FakeApk payloads.
func ReadFakeManifest(r io.ReaderAt, size int64) (*apkcheck.Manifest, error) {
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, err
	}
	name, vc, ok := strings.Cut(string(buf), ":")
	if !ok {
		return nil, fmt.Errorf("not an apk")
	}
	code, err := strconv.ParseInt(vc, 10, 64)
	if err != nil {
		return nil, err
	}
	return &apkcheck.Manifest{Package: name, VersionCode: code, VersionName: vc, HasCode: true}, nil
}
