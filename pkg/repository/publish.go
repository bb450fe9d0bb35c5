package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/apkcheck"
	"github.com/grapheneos/appstore/pkg/archive"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/fsutil"
	"github.com/grapheneos/appstore/pkg/signature"
)

// MetadataFileName is the name of the signed metadata for keyVersion.
func MetadataFileName(keyVersion int) string {
	return "metadata." + strconv.Itoa(MetadataVersion) + "." + strconv.Itoa(keyVersion) + ".sjson"
}

// SignMetadata canonicalizes doc (RFC 8785) and returns the signed wire body.
func SignMetadata(signer *signature.Signer, doc []byte) ([]byte, error) {
	canonical, err := jcs.Transform(doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrMetadataCanonical, err.Error())
	}
	return signer.SignedBody(canonical), nil
}

// PackedVariant holds the apk arrays of one variant entry.
type PackedVariant struct {
	ManifestName string   `json:"-"`
	VersionCode  int64    `json:"-"`
	VersionName  string   `json:"versionName,omitempty"`
	Apks         []string `json:"apks"`
	ApkHashes    []string `json:"apkHashes"`
	ApkSizes     []int64  `json:"apkSizes"`
	ApkGzSizes   []int64  `json:"apkGzSizes"`
}

// PackOptions configure PackVariant. Zero ManifestName or VersionCode are
// read from base.apk.
type PackOptions struct {
	ManifestName string
	VersionCode  int64
	ReadManifest apkcheck.ManifestReader
}

// PackVariant compresses apks into the repository layout under root,
// packages/<manifestName>/<versionCode>/<apk>.gz, and describes them.
func PackVariant(ctx context.Context, am *archive.Manager, root string, apks []string, opts PackOptions) (*PackedVariant, error) {
	if opts.ReadManifest == nil {
		opts.ReadManifest = apkcheck.ReadManifest
	}
	out := &PackedVariant{ManifestName: opts.ManifestName, VersionCode: opts.VersionCode}

	for _, p := range apks {
		name := filepath.Base(p)
		if !strings.HasSuffix(name, ".apk") {
			return nil, errors.Wrapf(errors.ErrApkName, "%s", p)
		}
		if name == "base.apk" && (out.ManifestName == "" || out.VersionCode == 0) {
			m, err := readManifestFile(p, opts.ReadManifest)
			if err != nil {
				return nil, err
			}
			if out.ManifestName == "" {
				out.ManifestName = m.Package
			}
			if out.VersionCode == 0 {
				out.VersionCode = m.VersionCode
			}
			out.VersionName = m.VersionName
		}
	}
	if out.ManifestName == "" || out.VersionCode <= 0 {
		return nil, errors.Wrap(errors.ErrApkName, "package name and version code need base.apk or explicit values")
	}

	dir := filepath.Join(root, "packages", out.ManifestName, strconv.FormatInt(out.VersionCode, 10))
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	for _, p := range apks {
		name := filepath.Base(p)
		sum, size, err := digestFile(p)
		if err != nil {
			return nil, err
		}
		gzSize, err := am.CompressFile(ctx, p, filepath.Join(dir, name+".gz"))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to compress %s", p)
		}
		out.Apks = append(out.Apks, name)
		out.ApkHashes = append(out.ApkHashes, hex.EncodeToString(sum[:]))
		out.ApkSizes = append(out.ApkSizes, size)
		out.ApkGzSizes = append(out.ApkGzSizes, gzSize)
		logger.Debug("packed apk", logger.Fields{"package": out.ManifestName, "apk": name, "size": size, "gz_size": gzSize})
	}
	return out, nil
}

func readManifestFile(path string, read apkcheck.ManifestReader) (*apkcheck.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return read(f, info.Size())
}

func digestFile(path string) ([32]byte, int64, error) {
	var sum [32]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, 0, err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return sum, 0, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, n, nil
}
