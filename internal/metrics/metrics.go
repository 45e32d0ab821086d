// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal     *prometheus.CounterVec
	fetchResultsTotal      *prometheus.CounterVec
	fetchRetriesTotal      *prometheus.CounterVec
	fetchDurationSeconds   *prometheus.HistogramVec
	inflightFetches        *prometheus.GaugeVec
	recordsWrittenTotal    *prometheus.CounterVec
	shardsOpenedTotal      *prometheus.CounterVec
	keysTotal              *prometheus.CounterVec
	checkpointSavesTotal   *prometheus.CounterVec
	uploadsTotal           *prometheus.CounterVec
	rateLimitDelaysSeconds *prometheus.HistogramVec
	statusRequestsTotal    *prometheus.CounterVec
	statusRequestDuration  *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetch_attempts_total",
				Help: "HTTP attempts issued by the fetcher, labeled by site and status code.",
			},
			[]string{"site", "code"},
		)

		fetchResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetch_results_total",
				Help: "Fetches that completed after all attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetch_retries_total",
				Help: "Retries scheduled after a transient failure.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_fetch_duration_seconds",
				Help:    "Latency of individual fetch attempts.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		inflightFetches = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvest_inflight_fetches",
				Help: "Fetches currently holding an admission permit.",
			},
			[]string{"source"},
		)

		recordsWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_records_written_total",
				Help: "Items streamed to output, labeled by source and stream.",
			},
			[]string{"source", "stream"},
		)

		shardsOpenedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_shards_total",
				Help: "Output shards produced, labeled by source and stream.",
			},
			[]string{"source", "stream"},
		)

		keysTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_keys_total",
				Help: "Discovery keys and batches handled, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		checkpointSavesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_checkpoint_saves_total",
				Help: "Checkpoint persistence attempts, labeled by result.",
			},
			[]string{"result"},
		)

		uploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_uploads_total",
				Help: "Output file uploads, labeled by provider and result.",
			},
			[]string{"provider", "result"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		statusRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_status_requests_total",
				Help: "Requests served by the status server, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		statusRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_status_request_duration_seconds",
				Help:    "Latency of status server requests, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite reduces a URL to its lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt records one HTTP attempt. code is 0 for transport errors.
func ObserveFetchAttempt(rawURL string, code int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	fetchAttemptsTotal.WithLabelValues(site, label).Inc()
	fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveFetchResult records the final outcome of a fetch ("ok" or "failed").
func ObserveFetchResult(rawURL, outcome string) {
	Init()
	fetchResultsTotal.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
}

// ObserveRetry counts a scheduled retry.
func ObserveRetry(rawURL string) {
	Init()
	fetchRetriesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveInflight adjusts the in-flight gauge by delta.
func ObserveInflight(source string, delta float64) {
	Init()
	inflightFetches.WithLabelValues(source).Add(delta)
}

// ObserveRecord counts one item written to a stream.
func ObserveRecord(source, stream string) {
	Init()
	recordsWrittenTotal.WithLabelValues(source, stream).Inc()
}

// ObserveShards counts the shards a closed writer produced.
func ObserveShards(source, stream string, n int) {
	Init()
	shardsOpenedTotal.WithLabelValues(source, stream).Add(float64(n))
}

// ObserveKey counts a processed discovery key or batch.
func ObserveKey(source, status string) {
	Init()
	keysTotal.WithLabelValues(source, status).Inc()
}

// ObserveCheckpointSave counts a checkpoint persist attempt.
func ObserveCheckpointSave(err error) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	checkpointSavesTotal.WithLabelValues(result).Inc()
}

// ObserveUpload counts an upload attempt.
func ObserveUpload(provider string, err error) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	uploadsTotal.WithLabelValues(provider, result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveStatusRequest records one status server request.
func ObserveStatusRequest(method, route string, code int, duration time.Duration) {
	Init()
	statusRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	statusRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
