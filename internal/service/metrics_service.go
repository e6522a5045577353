package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry for the permit API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    prometheus.Observer

	permitsIssued      prometheus.Counter
	permitVerification *prometheus.CounterVec
	permitTransitions  *prometheus.CounterVec
	verifyScanSize     prometheus.Histogram
	verifyDuration     prometheus.Histogram
	notifications      *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
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

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	permitsIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "permits_issued_total",
		Help: "Permits issued",
	})

	permitVerification := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "permit_verifications_total",
		Help: "Permit code verifications by outcome",
	}, []string{"outcome"})

	permitTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "permit_status_transitions_total",
		Help: "Permit status writes by target status",
	}, []string{"status"})

	verifyScanSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "permit_verify_scan_candidates",
		Help:    "Active permits compared per verification",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	verifyDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "permit_verify_duration_seconds",
		Help:    "Wall time of a verification scan",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "permit_notifications_total",
		Help: "Permit emails by delivery result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLookups, cacheLatency,
		permitsIssued, permitVerification, permitTransitions, verifyScanSize, verifyDuration,
		notifications, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLookups:       cacheLookups,
		cacheLatency:       cacheLatency,
		permitsIssued:      permitsIssued,
		permitVerification: permitVerification,
		permitTransitions:  permitTransitions,
		verifyScanSize:     verifyScanSize,
		verifyDuration:     verifyDuration,
		notifications:      notifications,
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

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// PermitIssued counts a created permit.
func (m *MetricsService) PermitIssued() {
	if m == nil {
		return
	}
	m.permitsIssued.Inc()
}

// PermitVerified records a verification outcome, the number of hash
// comparisons performed and the scan duration.
func (m *MetricsService) PermitVerified(outcome string, compared int, duration time.Duration) {
	if m == nil {
		return
	}
	m.permitVerification.WithLabelValues(outcome).Inc()
	m.verifyScanSize.Observe(float64(compared))
	m.verifyDuration.Observe(duration.Seconds())
}

// PermitTransitioned counts a status write.
func (m *MetricsService) PermitTransitioned(status string) {
	if m == nil {
		return
	}
	m.permitTransitions.WithLabelValues(status).Inc()
}

// NotificationSent records an email delivery attempt.
func (m *MetricsService) NotificationSent(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.notifications.WithLabelValues("sent").Inc()
	} else {
		m.notifications.WithLabelValues("failed").Inc()
	}
}
