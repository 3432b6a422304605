package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache and billing events.
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

	invoicesGenerated *prometheus.CounterVec
	paymentsRecorded  *prometheus.CounterVec
	paymentAmount     *prometheus.CounterVec
	overpayments      *prometheus.CounterVec
	paymentsVoided    prometheus.Counter
	backfills         *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers collectors on a private registry.
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
		Help:    "Latency for cache lookups",
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

	invoicesGenerated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_invoices_generated_total",
		Help: "Invoices considered by generation runs, by outcome",
	}, []string{"outcome"})

	paymentsRecorded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_payments_recorded_total",
		Help: "Fee payments recorded, by kind",
	}, []string{"kind"})

	paymentAmount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_payment_amount_total",
		Help: "Sum of recorded payment amounts, by kind",
	}, []string{"kind"})

	overpayments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_overpayment_rejections_total",
		Help: "Payments rejected for exceeding the outstanding balance",
	}, []string{"kind"})

	paymentsVoided := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_payments_voided_total",
		Help: "Fee payments voided",
	})

	backfills := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_down_payment_backfills_total",
		Help: "Down-payment reconciliation outcomes",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		invoicesGenerated, paymentsRecorded, paymentAmount, overpayments, paymentsVoided, backfills, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		invoicesGenerated: invoicesGenerated,
		paymentsRecorded:  paymentsRecorded,
		paymentAmount:     paymentAmount,
		overpayments:      overpayments,
		paymentsVoided:    paymentsVoided,
		backfills:         backfills,
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordInvoicesGenerated counts the outcome of a generation run.
func (m *MetricsService) RecordInvoicesGenerated(created, skipped int) {
	if m == nil {
		return
	}
	m.invoicesGenerated.WithLabelValues("created").Add(float64(created))
	m.invoicesGenerated.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordPayment counts a recorded payment and its amount.
func (m *MetricsService) RecordPayment(kind string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.paymentsRecorded.WithLabelValues(kind).Inc()
	m.paymentAmount.WithLabelValues(kind).Add(amount.InexactFloat64())
}

// RecordOverpayment counts a rejected overpayment.
func (m *MetricsService) RecordOverpayment(kind string) {
	if m == nil {
		return
	}
	m.overpayments.WithLabelValues(kind).Inc()
}

// RecordVoid counts a voided payment.
func (m *MetricsService) RecordVoid() {
	if m == nil {
		return
	}
	m.paymentsVoided.Inc()
}

// RecordBackfill counts a down-payment reconciliation outcome (created, skipped, failed).
func (m *MetricsService) RecordBackfill(outcome string) {
	if m == nil {
		return
	}
	m.backfills.WithLabelValues(outcome).Inc()
}
