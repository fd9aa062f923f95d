package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	passesIssued    *prometheus.CounterVec
	denials         *prometheus.CounterVec
	scans           *prometheus.CounterVec
	syncPages       prometheus.Counter
	syncInvocations *prometheus.CounterVec
	externalLatency *prometheus.HistogramVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	passCount            uint64
	denialCount          uint64
	scanCount            uint64
	syncPageCount        uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	passesIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatepass_issued_total",
		Help: "Gate passes issued by tier and delivery outcome",
	}, []string{"tier", "delivery"})

	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatepass_denials_total",
		Help: "Gate pass requests denied by reason",
	}, []string{"reason"})

	scans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatepass_scans_total",
		Help: "Gate pass verifications by result",
	}, []string{"result"})

	syncPages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "profile_sync_pages_total",
		Help: "Directory profile pages processed",
	})

	syncInvocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "profile_sync_invocations_total",
		Help: "Profile sync invocations by outcome",
	}, []string{"outcome"})

	externalLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "external_call_duration_seconds",
		Help:    "Duration of calls to external collaborators",
		Buckets: prometheus.DefBuckets,
	}, []string{"target"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		passesIssued, denials, scans, syncPages, syncInvocations, externalLatency, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		passesIssued:    passesIssued,
		denials:         denials,
		scans:           scans,
		syncPages:       syncPages,
		syncInvocations: syncInvocations,
		externalLatency: externalLatency,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordPassIssued counts a committed gate pass.
func (m *MetricsService) RecordPassIssued(tier models.Tier, delivery models.DeliveryOutcome) {
	if m == nil {
		return
	}
	m.passesIssued.WithLabelValues(string(tier), string(delivery)).Inc()
	atomic.AddUint64(&m.passCount, 1)
}

// RecordDenial counts a rejected issue request.
func (m *MetricsService) RecordDenial(reason DenialReason) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(string(reason)).Inc()
	atomic.AddUint64(&m.denialCount, 1)
}

// RecordScan counts a verification attempt.
func (m *MetricsService) RecordScan(result models.VerificationStatus) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(string(result)).Inc()
	atomic.AddUint64(&m.scanCount, 1)
}

// RecordSyncPage counts a processed directory page.
func (m *MetricsService) RecordSyncPage() {
	if m == nil {
		return
	}
	m.syncPages.Inc()
	atomic.AddUint64(&m.syncPageCount, 1)
}

// RecordSyncInvocation counts a finished scheduler invocation.
func (m *MetricsService) RecordSyncInvocation(outcome models.SyncOutcome) {
	if m == nil {
		return
	}
	m.syncInvocations.WithLabelValues(string(outcome)).Inc()
}

// ObserveExternalCall records latency for directory, storage and messaging calls.
func (m *MetricsService) ObserveExternalCall(target string, duration time.Duration) {
	if m == nil {
		return
	}
	m.externalLatency.WithLabelValues(target).Observe(duration.Seconds())
}

// Snapshot returns aggregated counters for the admin metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		PassesIssued:             atomic.LoadUint64(&m.passCount),
		Denials:                  atomic.LoadUint64(&m.denialCount),
		Scans:                    atomic.LoadUint64(&m.scanCount),
		SyncPages:                atomic.LoadUint64(&m.syncPageCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
