package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveFetch(t *testing.T) {
	ObserveFetch(FetchNotModified, time.Now())

	body := scrape(t)
	assert.Contains(t, body, `appstore_repo_fetches_total{result="not_modified"}`)
	assert.Contains(t, body, "appstore_repo_fetch_duration_seconds_count")
}

func TestHandler(t *testing.T) {
	DownloadedBytes.Add(42)
	ApkSources.WithLabelValues("network").Inc()

	body := scrape(t)
	assert.Contains(t, body, "appstore_download_bytes_total")
	assert.Contains(t, body, `appstore_download_apks_total{source="network"}`)
}
