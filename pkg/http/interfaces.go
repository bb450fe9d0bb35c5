package http

import (
	"context"
	"net/http"
)

// Client performs GET requests for repository metadata and artifacts.
type Client interface {
	// Get sends a GET request with the given extra headers. The caller
	// closes the response body.
	Get(ctx context.Context, url string, header http.Header) (*http.Response, error)
}
