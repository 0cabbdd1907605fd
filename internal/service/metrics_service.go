package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// ledger pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	ledgerAppends   *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	mirrorSyncs     *prometheus.CounterVec
	batchesLinked   prometheus.Counter
	scansRecorded   prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec
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

	ledgerAppends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_appends_total",
		Help: "Total ledger entries appended",
	}, []string{"status"})

	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_verifications_total",
		Help: "Total chain verifications by outcome",
	}, []string{"result"})

	mirrorSyncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_syncs_total",
		Help: "Total mirror sync dispatches by outcome",
	}, []string{"result"})

	batchesLinked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batches_linked_total",
		Help: "Total batches allocated to projects",
	})

	scansRecorded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scans_recorded_total",
		Help: "Total scanned items recorded",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, ledgerAppends, verifications, mirrorSyncs, batchesLinked, scansRecorded, dbQueryDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		ledgerAppends:   ledgerAppends,
		verifications:   verifications,
		mirrorSyncs:     mirrorSyncs,
		batchesLinked:   batchesLinked,
		scansRecorded:   scansRecorded,
		dbQueryDuration: dbQueryDuration,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordLedgerAppend counts one appended entry by status.
func (m *MetricsService) RecordLedgerAppend(status string) {
	if m == nil {
		return
	}
	m.ledgerAppends.WithLabelValues(status).Inc()
}

// RecordVerification counts one chain verification by outcome.
func (m *MetricsService) RecordVerification(valid bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.verifications.WithLabelValues(result).Inc()
}

// RecordMirrorSync counts one mirror dispatch by outcome.
func (m *MetricsService) RecordMirrorSync(ok bool) {
	if m == nil {
		return
	}
	result := "dispatched"
	if !ok {
		result = "dropped"
	}
	m.mirrorSyncs.WithLabelValues(result).Inc()
}

// RecordBatchLinked counts one batch allocation.
func (m *MetricsService) RecordBatchLinked() {
	if m == nil {
		return
	}
	m.batchesLinked.Inc()
}

// RecordScan counts one recorded scan.
func (m *MetricsService) RecordScan() {
	if m == nil {
		return
	}
	m.scansRecorded.Inc()
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}
