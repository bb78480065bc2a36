package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APICallsTotal tracks Drive API calls per operation
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivefetch_api_calls_total",
			Help: "Total number of Drive API calls",
		},
		[]string{"operation"},
	)

	// APIErrorsTotal tracks Drive API errors per operation and status code
	APIErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivefetch_api_errors_total",
			Help: "Total number of Drive API errors",
		},
		[]string{"operation", "status"},
	)

	// RetryAttemptsTotal tracks retries performed per error category
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivefetch_retry_attempts_total",
			Help: "Total number of retry attempts",
		},
		[]string{"category"},
	)

	// RetryErrorsTotal tracks errors seen by the retry engine per category
	RetryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivefetch_retry_errors_total",
			Help: "Total number of errors observed during retryable calls",
		},
		[]string{"category"},
	)

	// PagesLoadedTotal tracks listing pages fetched per folder
	PagesLoadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivefetch_pages_loaded_total",
			Help: "Total number of listing pages fetched",
		},
	)

	// ItemsListedTotal tracks items returned across all listing pages
	ItemsListedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivefetch_items_listed_total",
			Help: "Total number of items returned by folder listings",
		},
	)

	// PageLoadDuration tracks per-page listing latency
	PageLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drivefetch_page_load_seconds",
			Help:    "Listing page fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LoaderCacheHits tracks loader cache hits and misses
	LoaderCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivefetch_loader_cache_total",
			Help: "Loader cache lookups by result",
		},
		[]string{"result"},
	)

	// DownloadsTotal tracks file downloads by final status
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivefetch_downloads_total",
			Help: "Total number of file downloads",
		},
		[]string{"status"},
	)

	// DownloadBytesTotal tracks bytes written to disk
	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivefetch_download_bytes_total",
			Help: "Total bytes downloaded",
		},
	)

	// DBConnectionPoolUsage tracks database pool utilization percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drivefetch_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
