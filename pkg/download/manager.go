// Package download fetches gzip-compressed artifacts into the package
// cache. Complete files are reused, partial files are resumed with a
// range request, and every transfer holds a permit from a process-wide
// pool.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/grapheneos/appstore/internal/logger"
	pkgerrors "github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/fsutil"
	apphttp "github.com/grapheneos/appstore/pkg/http"
	"github.com/grapheneos/appstore/pkg/metrics"
)

// DefaultConcurrency is the number of simultaneous transfers.
const DefaultConcurrency = 3

const (
	copyBufferSize = 64 * 1024
	tmpSuffix      = ".tmp"
)

// ManagerImpl downloads through a shared permit pool.
type ManagerImpl struct {
	client  apphttp.Client
	permits chan struct{}
}

var _ Downloader = (*ManagerImpl)(nil)

// NewManager creates a manager allowing concurrency parallel transfers.
func NewManager(client apphttp.Client, concurrency int) *ManagerImpl {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &ManagerImpl{
		client:  client,
		permits: make(chan struct{}, concurrency),
	}
}

// Fetch implements Downloader.
func (m *ManagerImpl) Fetch(ctx context.Context, item Item, progress *atomic.Int64) (*os.File, Source, error) {
	if progress == nil {
		progress = new(atomic.Int64)
	}

	cached, err := os.Open(item.Path)
	if err == nil {
		f, src, err := m.fromCache(ctx, cached, item, progress)
		_ = cached.Close()
		if err != nil {
			return nil, "", err
		}
		metrics.ApkSources.WithLabelValues(string(src)).Inc()
		return f, src, nil
	}

	tmp, err := openTemp(item.Path)
	if err != nil {
		return nil, "", err
	}
	err = m.download(ctx, item.URL, tmp, 0, item.Size, progress)
	syncAndRename(tmp, item.Path)
	if err != nil {
		_ = tmp.Close()
		return nil, "", err
	}
	metrics.ApkSources.WithLabelValues(string(SourceNetwork)).Inc()
	return tmp, SourceNetwork, nil
}

func (m *ManagerImpl) fromCache(ctx context.Context, cached *os.File, item Item, progress *atomic.Int64) (*os.File, Source, error) {
	st, err := cached.Stat()
	if err != nil {
		return nil, "", pkgerrors.Wrap(err, "stat cached file")
	}
	cur := st.Size()
	if cur == item.Size {
		progress.Add(cur)
		// reopen read-write so every returned handle behaves alike
		f, err := os.OpenFile(item.Path, os.O_RDWR, 0)
		if err != nil {
			return nil, "", pkgerrors.Wrap(err, "reopen cached file")
		}
		return f, SourceCache, nil
	}
	if cur > item.Size {
		return nil, "", fmt.Errorf("%s: %d bytes, at most %d expected: %w",
			item.Path, cur, item.Size, pkgerrors.ErrUnexpectedCacheSize)
	}

	// Copy rather than rename the partial file, so the cache path always
	// holds a valid prefix even if writes are reordered.
	tmp, err := openTemp(item.Path)
	if err != nil {
		return nil, "", err
	}
	n, err := io.Copy(tmp, cached)
	if err == nil && n != cur {
		err = fmt.Errorf("copied %d of %d cached bytes: %w", n, cur, pkgerrors.ErrUnexpectedCacheSize)
	}
	if err != nil {
		_ = tmp.Close()
		return nil, "", pkgerrors.Wrap(err, "copy partial file")
	}
	progress.Add(cur)

	logger.Debug("Resuming download", logger.Fields{"url": item.URL, "offset": cur, "size": item.Size})
	err = m.download(ctx, item.URL, tmp, cur, item.Size, progress)
	syncAndRename(tmp, item.Path)
	if err != nil {
		_ = tmp.Close()
		return nil, "", err
	}
	return tmp, SourceResume, nil
}

// FetchSmall implements Downloader.
func (m *ManagerImpl) FetchSmall(ctx context.Context, item Item) ([]byte, error) {
	if data, err := os.ReadFile(item.Path); err == nil {
		return data, nil
	}
	tmp, err := openTemp(item.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tmp.Close() }()
	if err := m.download(ctx, item.URL, tmp, 0, -1, nil); err != nil {
		return nil, err
	}
	syncAndRename(tmp, item.Path)
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, pkgerrors.Wrap(err, "rewind")
	}
	return io.ReadAll(tmp)
}

func (m *ManagerImpl) acquire(ctx context.Context) error {
	select {
	case m.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *ManagerImpl) release() { <-m.permits }

// download appends the bytes from offset cur to dst. fullSize < 0 means
// unknown.
func (m *ManagerImpl) download(ctx context.Context, url string, dst io.Writer, cur, fullSize int64, progress *atomic.Int64) error {
	if fullSize >= 0 && (cur < 0 || cur >= fullSize) {
		return fmt.Errorf("invalid resume offset %d for size %d: %w", cur, fullSize, pkgerrors.ErrUnexpectedCacheSize)
	}
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	header := http.Header{}
	header.Set("Accept-Encoding", "identity")
	want := http.StatusOK
	if cur > 0 {
		header.Set("Range", "bytes="+strconv.FormatInt(cur, 10)+"-")
		want = http.StatusPartialContent
	}

	resp, err := m.client.Get(ctx, url, header)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := ctx.Err(); err != nil {
		return err
	}
	if resp.StatusCode != want {
		return fmt.Errorf("%s: %d: %w", url, resp.StatusCode, pkgerrors.ErrUnexpectedStatus)
	}
	return copyWithProgress(ctx, dst, resp.Body, progress)
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, progress *atomic.Int64) error {
	buf := make([]byte, copyBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return pkgerrors.Wrap(err, "write download")
			}
			if progress != nil {
				progress.Add(int64(n))
			}
			metrics.DownloadedBytes.Add(float64(n))
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return pkgerrors.Wrap(rerr, "read download")
		}
	}
}

// openTemp truncates leftovers of an interrupted run.
func openTemp(path string) (*os.File, error) {
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, pkgerrors.Wrap(err, "could not create download dir")
	}
	f, err := os.OpenFile(path+tmpSuffix, os.O_RDWR|os.O_CREATE|os.O_TRUNC, fsutil.FileModeSecure)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "could not create temp file")
	}
	return f, nil
}

// syncAndRename publishes tmp at path. Failures only cost the cache entry.
func syncAndRename(tmp *os.File, path string) {
	if err := tmp.Sync(); err != nil {
		logger.Debug("Sync of downloaded file failed", logger.Fields{"path": path, "error": err.Error()})
		return
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		logger.Debug("Rename of downloaded file failed", logger.Fields{"path": path, "error": err.Error()})
	}
}
