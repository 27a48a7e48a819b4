package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketcache"

// Metrics holds all Prometheus metrics
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec
	apiErrorsTotal       *prometheus.CounterVec

	cacheLookups   *prometheus.CounterVec
	cacheEvictions prometheus.Counter
	cacheEntries   prometheus.Gauge

	providerRequests *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	priceResolutions *prometheus.CounterVec

	syncRuns       *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec
	syncRecords    *prometheus.CounterVec
	marketDataSync *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
			[]string{"method", "endpoint"},
		),
		apiErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors",
			},
			[]string{"endpoint", "error_type"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Fetch-through cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		cacheEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Entries removed because their TTL elapsed",
			},
		),
		cacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Entries held by the cache after the last sweep",
			},
		),
		providerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Upstream provider calls by outcome",
			},
			[]string{"provider", "op", "outcome"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Upstream provider call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "op"},
		),
		priceResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_resolutions_total",
				Help:      "Aggregated prices by the source that satisfied them",
			},
			[]string{"source"},
		),
		syncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Sync jobs executed by outcome",
			},
			[]string{"job", "outcome"},
		),
		syncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Sync job duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"job"},
		),
		syncRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_records_total",
				Help:      "Durable snapshot writes by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		marketDataSync: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "market_data_updates_total",
				Help:      "Total number of market data updates",
			},
			[]string{"symbol", "data_type"},
		),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.apiErrorsTotal,
		m.cacheLookups,
		m.cacheEvictions,
		m.cacheEntries,
		m.providerRequests,
		m.providerDuration,
		m.priceResolutions,
		m.syncRuns,
		m.syncDuration,
		m.syncRecords,
		m.marketDataSync,
	)

	return m
}

// MetricsMiddleware creates a Prometheus metrics middleware
func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		m.httpRequestsInFlight.WithLabelValues(c.Request.Method, path).Inc()
		defer m.httpRequestsInFlight.WithLabelValues(c.Request.Method, path).Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)

		if c.Writer.Status() >= 400 {
			errorType := "client_error"
			if c.Writer.Status() >= 500 {
				errorType = "server_error"
			}
			m.apiErrorsTotal.WithLabelValues(path, errorType).Inc()
		}
	}
}

// Handler returns the Prometheus scrape handler for g. A nil g uses the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveLookup records a fetch-through cache lookup.
func (m *Metrics) ObserveLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// ObserveEvictions records expired entries removed from the cache.
func (m *Metrics) ObserveEvictions(count int) {
	m.cacheEvictions.Add(float64(count))
}

// SetCacheEntries records the current cache size.
func (m *Metrics) SetCacheEntries(n int) {
	m.cacheEntries.Set(float64(n))
}

// ObserveProviderCall records one upstream call.
func (m *Metrics) ObserveProviderCall(provider, op string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.providerRequests.WithLabelValues(provider, op, outcome).Inc()
	m.providerDuration.WithLabelValues(provider, op).Observe(duration.Seconds())
}

// RecordPriceSource records which source satisfied an aggregated price.
func (m *Metrics) RecordPriceSource(source string) {
	m.priceResolutions.WithLabelValues(source).Inc()
}

// ObserveSync records one sync job execution.
func (m *Metrics) ObserveSync(job string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.syncRuns.WithLabelValues(job, outcome).Inc()
	m.syncDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordSyncWrite records one durable snapshot write.
func (m *Metrics) RecordSyncWrite(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.syncRecords.WithLabelValues(kind, outcome).Inc()
}

// RecordMarketDataUpdate records a market data update
func (m *Metrics) RecordMarketDataUpdate(symbol, dataType string) {
	m.marketDataSync.WithLabelValues(symbol, dataType).Inc()
}
