package main

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var registerOnce sync.Once

var metricsRegistry = prometheus.NewRegistry()

var (
	metricObjectsListed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "objspiegel_objects_listed_total",
		Help: "Data objects found while listing source prefixes",
	})
	metricDownloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "objspiegel_downloads_total",
		Help: "Transfer units by final download state",
	}, []string{"result"})
	metricBytesDownloaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "objspiegel_downloaded_bytes_total",
		Help: "Bytes fetched from the source bucket",
	})
	metricUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "objspiegel_uploads_total",
		Help: "Bundles by final upload state",
	}, []string{"result"})
	metricBytesUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "objspiegel_uploaded_bytes_total",
		Help: "Bundle bytes sent to the destination bucket",
	})
	metricBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "objspiegel_batches_total",
		Help: "Prefix batches by outcome",
	}, []string{"result"})
	metricLedgerRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "objspiegel_ledger_records_total",
		Help: "New lines written to failure ledgers",
	}, []string{"ledger"})
	metricTransientRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "objspiegel_transient_retries_total",
		Help: "Remote operations retried after a transient error",
	})
	metricBatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "objspiegel_batch_duration_seconds",
		Help:    "Wall time to list, download, bundle and upload one batch",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
)

func registerMetrics() {
	registerOnce.Do(func() {
		metricsRegistry.MustRegister(
			metricObjectsListed,
			metricDownloads,
			metricBytesDownloaded,
			metricUploads,
			metricBytesUploaded,
			metricBatches,
			metricLedgerRecords,
			metricTransientRetries,
			metricBatchDuration,
		)
	})
}

// serveMetrics exposes the registry on addr until the process exits
func serveMetrics(addr string, sugar *zap.SugaredLogger) {
	registerMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		sugar.Infof("serving metrics on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorf("metrics listener on %s stopped: %v", addr, err)
		}
	}()
}
