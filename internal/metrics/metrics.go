package metrics

import (
	"net/http"
	"time"
)

// Metrics interface for dependency injection
type Metrics interface {
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)
	RecordProviderCall(operation, status string, duration time.Duration)
	RecordCheckout(flow, outcome string)
	Handler() http.Handler
}

// NoOpMetrics provides a no-op implementation
type NoOpMetrics struct{}

func (m *NoOpMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
}
func (m *NoOpMetrics) RecordProviderCall(operation, status string, duration time.Duration) {}
func (m *NoOpMetrics) RecordCheckout(flow, outcome string)                                 {}
func (m *NoOpMetrics) Handler() http.Handler                                               { return http.NotFoundHandler() }

// Global metrics instance
var globalMetrics Metrics = &NoOpMetrics{}

// Init initializes metrics (no-op for now, can be extended with Prometheus)
func Init() {
	// For now, keep using no-op metrics
}

// Handler returns the metrics handler
func Handler() http.Handler {
	return globalMetrics.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	globalMetrics.RecordHTTPRequest(method, endpoint, statusCode, duration)
}

// RecordProviderCall records the outcome and latency of a payment provider call
func RecordProviderCall(operation, status string, duration time.Duration) {
	globalMetrics.RecordProviderCall(operation, status, duration)
}

// RecordCheckout records a completed checkout flow attempt
func RecordCheckout(flow, outcome string) {
	globalMetrics.RecordCheckout(flow, outcome)
}
