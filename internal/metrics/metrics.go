// Package metrics provides Prometheus instrumentation for NanoTDF operations:
// envelope encrypt/decrypt, rewrap attempts and KAS HTTP traffic.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all NanoTDF metrics
	Namespace = "nanotdf"

	// Label names
	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelOutcome    = "outcome"
	LabelEndpoint   = "endpoint"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpEncrypt       = "encrypt"
	OpDecrypt       = "decrypt"
	OpDecryptLegacy = "decrypt_legacy"
	OpRewrap        = "rewrap"
	OpPublicKey     = "public_key"

	// Rewrap outcomes
	OutcomeKeyReceived = "key_received"
	OutcomeDenied      = "denied"
	OutcomeTransient   = "transient_failure"
	OutcomeCanceled    = "canceled"
	OutcomeInvalid     = "invalid_response"
)

var (
	// OperationsTotal tracks envelope operations by type and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of NanoTDF operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks the duration of envelope operations in seconds,
	// including any KAS round trips.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of NanoTDF operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelOperation},
	)

	// RewrapAttemptsTotal counts individual rewrap attempts by outcome.
	// Retries of transient failures each count once.
	RewrapAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rewrap_attempts_total",
			Help:      "Total number of KAS rewrap attempts by outcome",
		},
		[]string{LabelOutcome},
	)

	// KASRequestsTotal counts outgoing KAS requests by endpoint and status code.
	// Requests that never got a response use status code "0".
	KASRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "kas_requests_total",
			Help:      "Total number of requests sent to a KAS by endpoint and status code",
		},
		[]string{LabelEndpoint, LabelStatusCode},
	)

	// HTTPRequestsTotal tracks requests served by the reference KAS.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "kas_server",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests served by method, endpoint and status code",
		},
		[]string{LabelMethod, LabelEndpoint, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of served requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "kas_server",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests served in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelEndpoint},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordOperation records an envelope operation with its duration and status.
//
// Example:
//
//	start := time.Now()
//	out, err := client.Encrypt(ctx, attrs, nil, plaintext, kasURL)
//	RecordOperation(OpEncrypt, StatusFor(err), time.Since(start).Seconds())
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRewrapAttempt records the outcome of one rewrap attempt.
func RecordRewrapAttempt(outcome string) {
	if !enabled.Load() {
		return
	}
	RewrapAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordKASRequest records an outgoing KAS request.
func RecordKASRequest(endpoint, statusCode string) {
	if !enabled.Load() {
		return
	}
	KASRequestsTotal.WithLabelValues(endpoint, statusCode).Inc()
}

// RecordHTTPRequest records a request served by the reference KAS.
func RecordHTTPRequest(method, endpoint, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// StatusFor maps an error to a status label.
func StatusFor(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
