// Package metrics provides Prometheus metrics for session operations.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for session operations.
// A nil or disabled *Metrics is a valid no-op.
type Metrics struct {
	enabled bool

	// API request metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Authentication metrics
	authSuccessTotal  *prometheus.CounterVec
	authFailuresTotal *prometheus.CounterVec

	// Session state metrics
	transitionsTotal  *prometheus.CounterVec
	staleResultsTotal *prometheus.CounterVec

	// Permission check metrics
	permissionChecksTotal *prometheus.CounterVec
}

// New creates metrics registered with the default Prometheus registry.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	return NewWithRegistry(enabled, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics registered with reg.
func NewWithRegistry(enabled bool, reg prometheus.Registerer) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	factory := promauto.With(reg)

	m.requestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "iam_api_requests_total",
		Help: "Total API requests by method, endpoint and status",
	}, []string{"method", "endpoint", "status"})

	m.requestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "iam_api_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	m.authSuccessTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "iam_auth_success_total",
		Help: "Total successful authentication operations",
	}, []string{"method"})

	m.authFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "iam_auth_failures_total",
		Help: "Total failed authentication operations",
	}, []string{"method", "reason"})

	m.transitionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "iam_session_transitions_total",
		Help: "Total session state changes by resulting status",
	}, []string{"status"})

	m.staleResultsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "iam_session_stale_results_total",
		Help: "Results discarded because a newer operation was issued",
	}, []string{"operation"})

	m.permissionChecksTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "iam_permission_checks_total",
		Help: "Total permission checks",
	}, []string{"result"})

	return m
}

func (m *Metrics) on() bool { return m != nil && m.enabled }

// ObserveRequest records one API request. Its signature matches
// apiclient.Observer. A status of 0 denotes a transport failure.
func (m *Metrics) ObserveRequest(method, endpoint string, status int, d time.Duration) {
	if !m.on() {
		return
	}
	m.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// RecordAuthSuccess records a successful authentication operation.
func (m *Metrics) RecordAuthSuccess(method string) {
	if !m.on() {
		return
	}
	m.authSuccessTotal.WithLabelValues(method).Inc()
}

// RecordAuthFailure records a failed authentication operation.
func (m *Metrics) RecordAuthFailure(method, reason string) {
	if !m.on() {
		return
	}
	m.authFailuresTotal.WithLabelValues(method, reason).Inc()
}

// RecordTransition records a committed session state change.
func (m *Metrics) RecordTransition(status string) {
	if !m.on() {
		return
	}
	m.transitionsTotal.WithLabelValues(status).Inc()
}

// RecordStaleResult records a discarded out-of-order result.
func (m *Metrics) RecordStaleResult(operation string) {
	if !m.on() {
		return
	}
	m.staleResultsTotal.WithLabelValues(operation).Inc()
}

// RecordPermissionCheck records a permission check result.
func (m *Metrics) RecordPermissionCheck(allowed bool) {
	if !m.on() {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.permissionChecksTotal.WithLabelValues(result).Inc()
}
