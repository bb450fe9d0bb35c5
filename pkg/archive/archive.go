// Package archive handles the gzip transport encoding of repository
// artifacts.
package archive

import (
	"context"
	"crypto/sha256"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/mholt/archives"

	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/fsutil"
)

const copyBufferSize = 64 * 1024

// Manager compresses and decompresses artifacts.
type Manager struct {
	format archives.Gz
}

// NewManager creates a new Manager instance.
func NewManager() *Manager {
	return &Manager{format: archives.Gz{}}
}

// Decompress inflates src into dst and returns the number of plain bytes
// written. ctx is checked between reads.
func (am *Manager) Decompress(ctx context.Context, src io.Reader, dst io.Writer) (int64, error) {
	rc, err := am.format.OpenReader(src)
	if err != nil {
		return 0, errors.Wrap(err, "failed to open gzip stream")
	}
	defer func() { _ = rc.Close() }()

	n, err := io.CopyBuffer(dst, &ctxReader{ctx: ctx, r: rc}, make([]byte, copyBufferSize))
	if err != nil {
		return n, errors.Wrap(err, "failed to decompress")
	}
	return n, nil
}

// DecompressVerified inflates src into dst and checks the plain size and
// SHA-256 digest.
func (am *Manager) DecompressVerified(ctx context.Context, src io.Reader, dst io.Writer, size int64, digest [32]byte) error {
	h := sha256.New()
	n, err := am.Decompress(ctx, src, io.MultiWriter(dst, h))
	if err != nil {
		return err
	}
	if n != size {
		return errors.Wrapf(errors.ErrSizeMismatch, "expected %d bytes, got %d", size, n)
	}
	var got [32]byte
	copy(got[:], h.Sum(nil))
	if got != digest {
		return errors.Wrapf(errors.ErrDigestMismatch, "expected %x, got %x", digest, got)
	}
	return nil
}

// Compress deflates src into dst at the best compression level.
func (am *Manager) Compress(ctx context.Context, src io.Reader, dst io.Writer) (int64, error) {
	zw, err := gzip.NewWriterLevel(dst, gzip.BestCompression)
	if err != nil {
		return 0, err
	}
	n, err := io.CopyBuffer(zw, &ctxReader{ctx: ctx, r: src}, make([]byte, copyBufferSize))
	if err != nil {
		_ = zw.Close()
		return n, errors.Wrap(err, "failed to compress")
	}
	if err := zw.Close(); err != nil {
		return n, errors.Wrap(err, "failed to finish gzip stream")
	}
	return n, nil
}

// CompressFile writes the gzip form of srcPath to dstPath atomically and
// returns the compressed size.
func (am *Manager) CompressFile(ctx context.Context, srcPath, dstPath string) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = src.Close() }()

	tmp := dstPath + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeDefault)
	if err != nil {
		return 0, err
	}
	if _, err := am.Compress(ctx, src, out); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	info, err := out.Stat()
	if err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return info.Size(), nil
}

// ContextReader returns r with a ctx check before every Read.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
