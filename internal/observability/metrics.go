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
			Namespace: "arqlink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arqlink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	senderFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arqlink",
			Subsystem: "sender",
			Name:      "frames_total",
			Help:      "Data frames transmitted, by kind (first|retransmit).",
		},
		[]string{"kind"},
	)
	senderAcks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arqlink",
			Subsystem: "sender",
			Name:      "acks_total",
			Help:      "Acknowledgments received, by result (match|stale|mismatch|malformed|timeout).",
		},
		[]string{"result"},
	)
	receiverFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arqlink",
			Subsystem: "receiver",
			Name:      "frames_total",
			Help:      "Datagrams handled by the receiver, by result (delivered|duplicate|out_of_order|corrupt|malformed).",
		},
		[]string{"result"},
	)
	receiverBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arqlink",
			Subsystem: "receiver",
			Name:      "delivered_bytes_total",
			Help:      "Payload bytes delivered to the sink.",
		},
	)
	transferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arqlink",
			Subsystem: "transfer",
			Name:      "duration_seconds",
			Help:      "Transfer duration in seconds, by role and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"role", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			senderFrames,
			senderAcks,
			receiverFrames,
			receiverBytes,
			transferDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrameSent(retransmit bool) {
	RegisterMetrics()
	kind := "first"
	if retransmit {
		kind = "retransmit"
	}
	senderFrames.WithLabelValues(kind).Inc()
}

func RecordAck(result string) {
	RegisterMetrics()
	senderAcks.WithLabelValues(result).Inc()
}

func RecordReceived(result string, deliveredBytes int) {
	RegisterMetrics()
	receiverFrames.WithLabelValues(result).Inc()
	if deliveredBytes > 0 {
		receiverBytes.Add(float64(deliveredBytes))
	}
}

func RecordTransfer(role, outcome string, duration time.Duration) {
	RegisterMetrics()
	transferDuration.WithLabelValues(role, outcome).Observe(duration.Seconds())
}
