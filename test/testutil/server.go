package testutil

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/grapheneos/appstore/pkg/archive"
	"github.com/grapheneos/appstore/pkg/config"
	"github.com/grapheneos/appstore/pkg/signature"
)

// Request is one request seen by a RepoServer.
type Request struct {
	Path        string
	IfNoneMatch string
	Range       string
}

// RepoServer serves signed metadata and gzip artifacts.
type RepoServer struct {
	*httptest.Server
	Signer *signature.Signer

	mu       sync.Mutex
	body     []byte
	eTag     string
	files    map[string][]byte
	failures map[string]int
	requests []Request
	gen      int
}

// NewRepoServer starts a server with a fresh signing key. It is closed
// when the test ends.
func NewRepoServer(t *testing.T) *RepoServer {
	t.Helper()
	signer, err := signature.GenerateSigner()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	s := &RepoServer{
		Signer:   signer,
		files:    map[string][]byte{},
		failures: map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// SetMetadata signs data and serves it with a new ETag.
func (s *RepoServer) SetMetadata(data []byte) {
	s.SetRawMetadata(s.Signer.SignedBody(data))
}

// SetRawMetadata serves body as-is with a new ETag.
func (s *RepoServer) SetRawMetadata(body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.body = body
	s.eTag = fmt.Sprintf(`"gen-%d"`, s.gen)
}

// ETag is the tag of the current metadata.
func (s *RepoServer) ETag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eTag
}

// AddFile serves data at path, relative to the server root.
func (s *RepoServer) AddFile(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files["/"+strings.TrimPrefix(path, "/")] = data
}

// AddApk serves the gzip form of content as an artifact of the given
// package version and returns the compressed size.
func (s *RepoServer) AddApk(t *testing.T, manifestName string, versionCode int64, apkName string, content []byte) int64 {
	t.Helper()
	gz := Gzip(t, content)
	s.AddFile(fmt.Sprintf("packages/%s/%d/%s.gz", manifestName, versionCode, apkName), gz)
	return int64(len(gz))
}

// FailNext answers the next n requests for path with status.
func (s *RepoServer) FailNext(path string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures["/"+strings.TrimPrefix(path, "/")+"#"+strconv.Itoa(status)] = n
}

// Requests returns the requests seen so far.
func (s *RepoServer) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsFor counts the requests for path.
func (s *RepoServer) RequestsFor(path string) int {
	path = "/" + strings.TrimPrefix(path, "/")
	n := 0
	for _, r := range s.Requests() {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (s *RepoServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Path:        r.URL.Path,
		IfNoneMatch: r.Header.Get("If-None-Match"),
		Range:       r.Header.Get("Range"),
	})
	for key, n := range s.failures {
		path, status, _ := strings.Cut(key, "#")
		if path == r.URL.Path && n > 0 {
			s.failures[key] = n - 1
			s.mu.Unlock()
			code, _ := strconv.Atoi(status)
			w.WriteHeader(code)
			return
		}
	}
	body, eTag := s.body, s.eTag
	file, hasFile := s.files[r.URL.Path]
	s.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, "/metadata.") {
		if body == nil {
			http.NotFound(w, r)
			return
		}
		if inm := r.Header.Get("If-None-Match"); inm != "" && inm == eTag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", eTag)
		_, _ = w.Write(body)
		return
	}

	if !hasFile {
		http.NotFound(w, r)
		return
	}
	if rng := r.Header.Get("Range"); rng != "" {
		start, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-"), 10, 64)
		if err != nil || start > int64(len(file)) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(file)-1, len(file)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(file[start:])
		return
	}
	_, _ = w.Write(file)
}

// Gzip compresses data the way the repository tooling does.
func Gzip(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := archive.NewManager().Compress(context.Background(), bytes.NewReader(data), &buf); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	return buf.Bytes()
}

// Digest returns the SHA-256 of data.
func Digest(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// SetupTestConfig writes a config file pointing at repoURL and signed by
// publicKey, with cache and state under a temporary directory.
func SetupTestConfig(t *testing.T, repoURL, publicKey string) string {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Repository.BaseURL = repoURL
	cfg.Repository.PublicKey = publicKey
	cfg.Settings.CacheDir = filepath.Join(dir, "cache")
	cfg.Settings.StateDir = filepath.Join(dir, "state")

	path := filepath.Join(dir, "config.yaml")
	if err := cfg.SaveConfig(path); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat test config: %v", err)
	}
	return path
}
