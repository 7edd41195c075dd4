package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Listener metrics
	listenerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cuecam_listener_state",
		Help: "Current listener state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	listenerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuecam_listener_transitions_total",
		Help: "Total number of listener state transitions",
	}, []string{"from", "to"})

	listenerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuecam_listener_retries_total",
		Help: "Total number of scheduled listening retries",
	}, []string{"reason"})

	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cuecam_active_sessions",
		Help: "Number of recognition sessions currently open",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cuecam_sessions_total",
		Help: "Total number of recognition sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cuecam_session_duration_seconds",
		Help:    "Duration of recognition sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	setupLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cuecam_setup_latency_seconds",
		Help:    "Time from start request to a ready recognition session",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Command metrics
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuecam_commands_total",
		Help: "Total number of recognized voice commands",
	}, []string{"context", "token"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuecam_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cuecam_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuecam_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuecam_audio_bytes_total",
		Help: "Total audio bytes delivered by capture devices",
	}, []string{"source"})

	audioFramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuecam_audio_frames_dropped_total",
		Help: "Frames dropped because the consumer fell behind",
	}, []string{"source"})
)

// SessionMetrics tracks metrics for a single recognition session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
}

// NewSessionMetrics creates a new metrics tracker for a session. The clock
// starts when the setup request is made.
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordReady records setup latency once the engine reports ready
func (m *SessionMetrics) RecordReady() {
	activeSessions.Inc()
	totalSessions.Inc()
	setupLatency.Observe(time.Since(m.startTime).Seconds())
}

// RecordEnd records the end of a session that reached ready
func (m *SessionMetrics) RecordEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordTransition records a listener state change
func RecordTransition(from, to string) {
	listenerTransitions.WithLabelValues(from, to).Inc()
	listenerState.WithLabelValues(from).Set(0)
	listenerState.WithLabelValues(to).Set(1)
}

// RecordRetry records a scheduled retry
func RecordRetry(reason string) {
	listenerRetries.WithLabelValues(reason).Inc()
}

// RecordCommand records a recognized command
func RecordCommand(context, token string) {
	commandsTotal.WithLabelValues(context, token).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes captured from a source
func RecordAudioBytes(source string, bytes int) {
	audioBytesCaptured.WithLabelValues(source).Add(float64(bytes))
}

// RecordDroppedFrames records frames lost to back-pressure
func RecordDroppedFrames(source string, frames int) {
	audioFramesDropped.WithLabelValues(source).Add(float64(frames))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
