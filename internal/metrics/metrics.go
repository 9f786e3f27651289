// Package metrics exposes Prometheus collectors for the claim verifier.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	claimsTotal          *prometheus.CounterVec
	crawlAttemptsTotal   *prometheus.CounterVec
	cacheLookupsTotal    *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	crawlsInFlight       prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		claimsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claims_requests_total",
				Help: "Verification requests reaching a status, labeled by status.",
			},
			[]string{"status"},
		)

		crawlAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claims_crawl_attempts_total",
				Help: "Individual fetch attempts, labeled by fetcher and result.",
			},
			[]string{"fetcher", "result"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claims_page_cache_lookups_total",
				Help: "Page cache lookups, labeled hit or miss.",
			},
			[]string{"result"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claims_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by fetcher.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"fetcher"},
		)

		crawlsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "claims_crawls_in_flight",
				Help: "Crawl tasks currently being processed.",
			},
		)
	})
}

// ObserveStatus counts a request reaching the given status.
func ObserveStatus(status string) {
	if claimsTotal == nil {
		return
	}
	claimsTotal.WithLabelValues(status).Inc()
}

// ObserveCrawlAttempt counts one fetch attempt.
func ObserveCrawlAttempt(fetcher, result string) {
	if crawlAttemptsTotal == nil {
		return
	}
	crawlAttemptsTotal.WithLabelValues(fetcher, result).Inc()
}

// ObserveCacheLookup counts a page cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if cacheLookupsTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveFetchDuration records how long a fetch took.
func ObserveFetchDuration(fetcher string, d time.Duration) {
	if fetchDurationSeconds == nil {
		return
	}
	fetchDurationSeconds.WithLabelValues(fetcher).Observe(d.Seconds())
}

// CrawlStarted marks a crawl task in flight.
func CrawlStarted() {
	if crawlsInFlight != nil {
		crawlsInFlight.Inc()
	}
}

// CrawlFinished marks a crawl task done.
func CrawlFinished() {
	if crawlsInFlight != nil {
		crawlsInFlight.Dec()
	}
}
