package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdgram",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rdgram",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdgram",
			Subsystem: "handshake",
			Name:      "total",
			Help:      "Originator handshakes by hello code and result.",
		},
		[]string{"role", "result"},
	)
	handshakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rdgram",
			Subsystem: "handshake",
			Name:      "duration_seconds",
			Help:      "Originator handshake duration in seconds.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5},
		},
		[]string{"role", "result"},
	)
	handshakeAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rdgram",
			Subsystem: "handshake",
			Name:      "attempts_total",
			Help:      "Hello transmissions, including retries.",
		},
	)
	fragmentsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rdgram",
			Subsystem: "stream",
			Name:      "fragments_acked_total",
			Help:      "Fragments acknowledged by the peer.",
		},
	)
	fragmentRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rdgram",
			Subsystem: "stream",
			Name:      "fragment_retries_total",
			Help:      "Fragment transmissions that consumed retry budget.",
		},
	)
	protocolMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdgram",
			Subsystem: "stream",
			Name:      "protocol_mismatch_total",
			Help:      "Replies that carried a byte other than the acknowledgment.",
		},
		[]string{"stage"},
	)
	streamBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdgram",
			Subsystem: "stream",
			Name:      "bytes_total",
			Help:      "Application payload bytes by direction.",
		},
		[]string{"direction"},
	)
	accepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdgram",
			Subsystem: "rendezvous",
			Name:      "accepted_total",
			Help:      "Accepted hellos by local role (send, receive, none).",
		},
		[]string{"role"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rdgram",
			Subsystem: "rendezvous",
			Name:      "active_sessions",
			Help:      "Sessions currently driven by the dispatch server.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			handshakes,
			handshakeDuration,
			handshakeAttempts,
			fragmentsSent,
			fragmentRetries,
			protocolMismatches,
			streamBytes,
			accepted,
			activeSessions,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordHandshake(role, result string, duration time.Duration) {
	RegisterMetrics()
	handshakes.WithLabelValues(role, result).Inc()
	handshakeDuration.WithLabelValues(role, result).Observe(duration.Seconds())
}

func RecordHandshakeAttempt() {
	RegisterMetrics()
	handshakeAttempts.Inc()
}

func RecordFragmentAcked(n int) {
	RegisterMetrics()
	fragmentsSent.Inc()
	streamBytes.WithLabelValues("sent").Add(float64(n))
}

func RecordFragmentRetry() {
	RegisterMetrics()
	fragmentRetries.Inc()
}

func RecordProtocolMismatch(stage string) {
	RegisterMetrics()
	protocolMismatches.WithLabelValues(stage).Inc()
}

func RecordReceived(n int) {
	RegisterMetrics()
	streamBytes.WithLabelValues("received").Add(float64(n))
}

func RecordAccepted(role string) {
	RegisterMetrics()
	accepted.WithLabelValues(role).Inc()
}

func SessionOpened() {
	RegisterMetrics()
	activeSessions.Inc()
}

func SessionClosed() {
	RegisterMetrics()
	activeSessions.Dec()
}
