package http

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/grapheneos/appstore/pkg/auth"
	"github.com/grapheneos/appstore/pkg/errors"
)

// Options configures an HTTPClient.
type Options struct {
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for response headers and for every
	// subsequent body read.
	ReadTimeout time.Duration
	UserAgent   string
	// Auth, when set, signs every request.
	Auth auth.Authenticator
}

// HTTPClient is the shared transport of the repository fetcher and the
// artifact downloader.
type HTTPClient struct {
	client      *http.Client
	userAgent   string
	readTimeout time.Duration
	auth        auth.Authenticator
}

// NewHTTPClient creates a client with connect and read timeouts.
func NewHTTPClient(opts Options) *HTTPClient {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		// Artifacts are already gzip-compressed.
		DisableCompression: true,
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "appstore/1.0"
	}
	return &HTTPClient{
		client:      &http.Client{Transport: transport},
		userAgent:   ua,
		readTimeout: opts.ReadTimeout,
		auth:        opts.Auth,
	}
}

// Get implements Client.
func (hc *HTTPClient) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		cancel(nil)
		return nil, errors.Wrap(err, "failed to create request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", hc.userAgent)
	if hc.auth != nil {
		if err := hc.auth.Apply(req); err != nil {
			cancel(nil)
			return nil, errors.Wrap(err, "failed to authenticate request")
		}
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		cancel(nil)
		return nil, err
	}
	resp.Body = newIdleTimeoutBody(ctx, resp.Body, hc.readTimeout, cancel)
	return resp, nil
}

// idleTimeoutBody cancels the request when no read completes within
// timeout, and maps that cancellation to os.ErrDeadlineExceeded.
type idleTimeoutBody struct {
	ctx     context.Context
	body    io.ReadCloser
	timeout time.Duration
	cancel  context.CancelCauseFunc

	mu    sync.Mutex
	timer *time.Timer
}

func newIdleTimeoutBody(ctx context.Context, body io.ReadCloser, timeout time.Duration, cancel context.CancelCauseFunc) io.ReadCloser {
	b := &idleTimeoutBody{ctx: ctx, body: body, timeout: timeout, cancel: cancel}
	if timeout > 0 {
		b.timer = time.AfterFunc(timeout, func() { cancel(os.ErrDeadlineExceeded) })
	}
	return b
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Reset(b.timeout)
	}
	b.mu.Unlock()
	if err != nil && err != io.EOF && context.Cause(b.ctx) == os.ErrDeadlineExceeded {
		return n, fmt.Errorf("read timed out after %s: %w", b.timeout, os.ErrDeadlineExceeded)
	}
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.mu.Unlock()
	err := b.body.Close()
	b.cancel(nil)
	return err
}
