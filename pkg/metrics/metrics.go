//nolint:gochecknoglobals
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grapheneos/appstore/internal/logger"
)

const namespace = "appstore"

// Repository fetch outcomes.
const (
	FetchOK          = "ok"
	FetchNotModified = "not_modified"
	FetchError       = "error"
)

var (
	RepoFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "repo",
		Name:      "fetches_total",
		Help:      "Repository metadata fetches by outcome.",
	}, []string{"result"})

	RepoFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "repo",
		Name:      "fetch_duration_seconds",
		Help:      "Latency of repository metadata fetches.",
		Buckets:   prometheus.DefBuckets,
	})

	DownloadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "bytes_total",
		Help:      "Compressed bytes received from the network.",
	})

	ApkSources = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "apks_total",
		Help:      "Staged apks by source.",
	}, []string{"source"})

	InstallResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "install",
		Name:      "results_total",
		Help:      "Install job outcomes.",
	}, []string{"result"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "install",
		Name:      "sessions",
		Help:      "Installer sessions currently tracked.",
	})

	OutdatedPackages = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outdated_packages",
		Help:      "Installed packages with an available update.",
	})

	CacheRemovedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "removed_bytes_total",
		Help:      "Bytes removed by the cache pruner.",
	})
)

// ObserveFetch records one repository fetch.
func ObserveFetch(result string, start time.Time) {
	RepoFetches.WithLabelValues(result).Inc()
	RepoFetchDuration.Observe(time.Since(start).Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{DisableCompression: true})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Debug("serving metrics", logger.Fields{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
