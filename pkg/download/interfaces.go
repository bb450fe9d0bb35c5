package download

import (
	"context"
	"os"
	"sync/atomic"
)

// Downloader makes compressed artifacts available in the on-disk cache.
type Downloader interface {
	// Fetch returns an open read-write handle to the complete compressed
	// artifact, downloading or resuming it as needed. progress is
	// advanced by every byte that counts toward item.Size.
	Fetch(ctx context.Context, item Item, progress *atomic.Int64) (*os.File, Source, error)

	// FetchSmall returns the bytes of a small file of unknown size, such
	// as an fs-verity signature, cached at item.Path.
	FetchSmall(ctx context.Context, item Item) ([]byte, error)
}

// Item is one remote artifact and its cache location.
type Item struct {
	URL string
	// Path is the final cache path; partial data lives at Path + ".tmp".
	Path string
	// Size is the expected compressed size. FetchSmall ignores it.
	Size int64
}

// Source says where Fetch got the bytes from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceResume  Source = "resume"
	SourceNetwork Source = "network"
)
