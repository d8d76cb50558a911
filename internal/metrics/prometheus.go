// Package metrics provides Prometheus instrumentation for client requests
// and credential resolution.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "vaultclient"
)

// LatencyBuckets defines histogram buckets for request latency (in seconds).
var LatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1.0, 2.5, 5.0, 10.0, 15.0, 30.0,
}

// Metrics holds the collectors of one client. Labels are kept low
// cardinality: operations are named, never raw secret paths.
type Metrics struct {
	Requests           *prometheus.CounterVec
	RequestLatency     *prometheus.HistogramVec
	CredentialAttempts *prometheus.CounterVec
	CredentialFailures *prometheus.CounterVec
	CredentialErrors   prometheus.Counter
}

// New registers the client collectors with reg. Clients sharing a registry
// share collectors. A nil reg creates collectors that are not registered.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Requests: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests sent to the secrets service",
			},
			[]string{"operation", "method", "status_code"},
		)),
		RequestLatency: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "Request latency in seconds",
				Buckets:   LatencyBuckets,
			},
			[]string{"operation"},
		)),
		CredentialAttempts: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_resolutions_total",
				Help:      "Credential resolutions by the source that supplied the token",
			},
			[]string{"source"},
		)),
		CredentialFailures: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_source_failures_total",
				Help:      "Failed attempts of individual credential sources",
			},
			// cached is "true" for the sticky attempt.
			[]string{"source", "cached"},
		)),
		CredentialErrors: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_errors_total",
				Help:      "Requests aborted because no credential source produced a token",
			},
		)),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveRequest records one finished request. statusCode is 0 when no
// response was received.
func (m *Metrics) ObserveRequest(operation, method string, statusCode int, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "none"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.Requests.WithLabelValues(operation, method, status).Inc()
	m.RequestLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveCredentialSource counts a successful resolution by source.
func (m *Metrics) ObserveCredentialSource(source string) {
	if m == nil {
		return
	}
	m.CredentialAttempts.WithLabelValues(source).Inc()
}

// ObserveCredentialFailure counts a failed source attempt.
func (m *Metrics) ObserveCredentialFailure(source string, cached bool) {
	if m == nil {
		return
	}
	m.CredentialFailures.WithLabelValues(source, strconv.FormatBool(cached)).Inc()
}

// ObserveCredentialError counts a request aborted for lack of credentials.
func (m *Metrics) ObserveCredentialError() {
	if m == nil {
		return
	}
	m.CredentialErrors.Inc()
}
