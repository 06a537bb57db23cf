package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Frame metrics
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larkws_frames_received_total",
			Help: "Total number of frames received from the push server",
		},
		[]string{"type"},
	)

	FramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larkws_frames_sent_total",
			Help: "Total number of frames written to the push server",
		},
		[]string{"type"},
	)

	FramesIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larkws_frames_ignored_total",
			Help: "Total number of data frames dropped without a response",
		},
		[]string{"type"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "larkws_queue_depth",
			Help: "Current number of items waiting in an in-memory queue",
		},
		[]string{"queue"},
	)

	// Handler metrics
	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "larkws_handler_duration_seconds",
			Help:    "Event handler duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"type", "status"},
	)

	Responses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larkws_responses_total",
			Help: "Total number of response frames produced",
		},
		[]string{"status"},
	)

	// Reassembly metrics
	ReassemblyEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "larkws_reassembly_entries",
			Help: "Current number of partially received messages",
		},
	)

	ReassemblyEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larkws_reassembly_evictions_total",
			Help: "Total number of incomplete messages discarded",
		},
		[]string{"reason"},
	)

	// Session metrics
	SessionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "larkws_session_state",
			Help: "Current session state (0 connecting, 1 open, 2 closing, 3 closed, 4 errored)",
		},
	)

	SessionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larkws_session_errors_total",
			Help: "Total number of sessions terminated by an error",
		},
		[]string{"cause"},
	)

	Negotiations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larkws_negotiations_total",
			Help: "Total number of endpoint negotiations",
		},
		[]string{"result"},
	)

	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "larkws_reconnects_total",
			Help: "Total number of reconnect attempts",
		},
	)

	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "larkws_breaker_state",
			Help: "Connect circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "larkws_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larkws_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Redis metrics
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "larkws_redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~200ms
		},
		[]string{"operation"},
	)

	RedisErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larkws_redis_errors_total",
			Help: "Total number of Redis errors",
		},
		[]string{"operation"},
	)
)

// RecordFrameReceived records an inbound frame
func RecordFrameReceived(frameType string) {
	FramesReceived.WithLabelValues(frameType).Inc()
}

// RecordFrameSent records an outbound frame
func RecordFrameSent(frameType string) {
	FramesSent.WithLabelValues(frameType).Inc()
}

// RecordFrameIgnored records a data frame routed to the ignore strategy
func RecordFrameIgnored(frameType string) {
	FramesIgnored.WithLabelValues(frameType).Inc()
}

// UpdateQueueDepth updates the queue depth gauge
func UpdateQueueDepth(queue string, depth float64) {
	QueueDepth.WithLabelValues(queue).Set(depth)
}

// RecordHandler records one handler invocation and the response it produced
func RecordHandler(frameType, status string, duration float64) {
	HandlerDuration.WithLabelValues(frameType, status).Observe(duration)
	Responses.WithLabelValues(status).Inc()
}

// SetReassemblyEntries sets the reassembly entries gauge
func SetReassemblyEntries(n float64) {
	ReassemblyEntries.Set(n)
}

// RecordReassemblyEviction records a discarded partial message
func RecordReassemblyEviction(reason string) {
	ReassemblyEvictions.WithLabelValues(reason).Inc()
}

// SetSessionState sets the session state gauge
func SetSessionState(state float64) {
	SessionState.Set(state)
}

// RecordSessionError records a terminal session error
func RecordSessionError(cause string) {
	SessionErrors.WithLabelValues(cause).Inc()
}

// RecordNegotiation records a negotiation outcome
func RecordNegotiation(result string) {
	Negotiations.WithLabelValues(result).Inc()
}

// IncrementReconnects increments the reconnect counter
func IncrementReconnects() {
	Reconnects.Inc()
}

// SetBreakerState sets the circuit breaker gauge
func SetBreakerState(state float64) {
	BreakerState.Set(state)
}

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation string, duration float64) {
	RedisOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRedisError records a Redis error
func RecordRedisError(operation string) {
	RedisErrors.WithLabelValues(operation).Inc()
}
