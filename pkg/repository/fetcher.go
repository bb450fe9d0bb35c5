// Package repository fetches, verifies and caches the signed repository
// metadata and turns it into a catalog.
package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/fsutil"
	apphttp "github.com/grapheneos/appstore/pkg/http"
	"github.com/grapheneos/appstore/pkg/metrics"
	"github.com/grapheneos/appstore/pkg/platform"
	"github.com/grapheneos/appstore/pkg/signature"
)

// MetadataVersion is the wire format version in the metadata file name.
const MetadataVersion = 1

// Options configures a Fetcher.
type Options struct {
	BaseURL    string
	KeyVersion int
	// CachePath is the envelope file holding the last verified metadata.
	CachePath      string
	ValidateSchema bool
}

// Fetcher retrieves the catalog. It is safe for use by one caller at a
// time; the state store serializes refreshes.
type Fetcher struct {
	client   apphttp.Client
	verifier *signature.Verifier
	device   platform.Device
	packages platform.PackageQuery
	opts     Options
}

// NewFetcher creates a fetcher. packages is consulted while parsing, so
// it must reflect the live installed-package state.
func NewFetcher(client apphttp.Client, verifier *signature.Verifier, device platform.Device, packages platform.PackageQuery, opts Options) *Fetcher {
	return &Fetcher{
		client:   client,
		verifier: verifier,
		device:   device,
		packages: packages,
		opts:     opts,
	}
}

// URL is the metadata location.
func (f *Fetcher) URL() string {
	return fmt.Sprintf("%s/metadata.%d.%d.sjson", f.opts.BaseURL, MetadataVersion, f.opts.KeyVersion)
}

func (f *Fetcher) environment() catalog.Environment {
	return catalog.Environment{Device: f.device, Packages: f.packages, BaseURL: f.opts.BaseURL}
}

// Fetch downloads the metadata, verifies it and parses it. It returns
// current itself when the server reports it unchanged. Errors are always
// *errors.RepoUpdateError.
func (f *Fetcher) Fetch(ctx context.Context, current *catalog.Catalog, userInitiated bool) (*catalog.Catalog, error) {
	start := time.Now()
	cat, err := f.fetch(ctx, current)
	switch {
	case err != nil:
		metrics.ObserveFetch(metrics.FetchError, start)
		logger.Warn("repository update failed", logger.Fields{"url": f.URL(), "error": err.Error(), "manual": userInitiated})
		return nil, &errors.RepoUpdateError{Err: err, Manual: userInitiated}
	case cat == current:
		metrics.ObserveFetch(metrics.FetchNotModified, start)
		logger.Debug("repository not modified", logger.Fields{"etag": current.ETag})
	default:
		metrics.ObserveFetch(metrics.FetchOK, start)
		logger.Info("repository updated", logger.Fields{"timestamp": cat.Timestamp, "packages": len(cat.Packages)})
	}
	return cat, nil
}

func (f *Fetcher) fetch(ctx context.Context, current *catalog.Catalog) (*catalog.Catalog, error) {
	header := http.Header{}
	minTimestamp := catalog.MinTimestamp
	conditional := current != nil && !current.IsPlaceholder
	if conditional {
		header.Set("If-None-Match", current.ETag)
		if current.Timestamp > minTimestamp {
			minTimestamp = current.Timestamp
		}
	}

	resp, err := f.client.Get(ctx, f.URL(), header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && conditional:
		return current, nil
	case resp.StatusCode == http.StatusOK:
	default:
		return nil, errors.Wrapf(errors.ErrUnexpectedStatus, "%d from %s", resp.StatusCode, f.URL())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	eTag := resp.Header.Get("ETag")

	data, err := f.verify(body)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Parse(data, eTag, f.environment())
	if err != nil {
		return nil, err
	}
	if cat.Timestamp < minTimestamp {
		return nil, errors.Wrapf(errors.ErrRepoDowngrade, "timestamp %d is older than %d", cat.Timestamp, minTimestamp)
	}

	if err := f.store(eTag, data); err != nil {
		return nil, err
	}
	return cat, nil
}

func (f *Fetcher) verify(body []byte) ([]byte, error) {
	data, sig, err := signature.SplitSignedBody(body)
	if err != nil {
		return nil, err
	}
	if err := f.verifier.Verify(data, sig); err != nil {
		return nil, err
	}
	if f.opts.ValidateSchema {
		if err := ValidateMetadata(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (f *Fetcher) store(eTag string, data []byte) error {
	if f.opts.CachePath == "" {
		return nil
	}
	if err := fsutil.EnsureDir(filepath.Dir(f.opts.CachePath)); err != nil {
		return errors.Wrap(err, "failed to create repository cache directory")
	}
	if err := fsutil.WriteFileAtomic(f.opts.CachePath, encodeEnvelope(eTag, data), fsutil.FileModeSecure); err != nil {
		return errors.Wrap(err, "failed to persist repository metadata")
	}
	return nil
}

// LoadCached returns the catalog from the persisted envelope, or the
// placeholder when nothing usable is cached. The envelope content was
// verified before it was written.
func (f *Fetcher) LoadCached() *catalog.Catalog {
	cat, err := f.loadCached()
	if err != nil {
		if !stderrors.Is(err, os.ErrNotExist) {
			logger.Warn("discarding repository cache", logger.Fields{"path": f.opts.CachePath, "error": err.Error()})
		}
		return catalog.Placeholder(f.opts.BaseURL)
	}
	return cat
}

func (f *Fetcher) loadCached() (*catalog.Catalog, error) {
	if f.opts.CachePath == "" {
		return nil, os.ErrNotExist
	}
	raw, err := os.ReadFile(f.opts.CachePath)
	if err != nil {
		return nil, err
	}
	eTag, data, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	return catalog.Parse(data, eTag, f.environment())
}
