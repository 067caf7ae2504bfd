package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ponto",
		Name:      "match_decisions_total",
		Help:      "Identity match outcomes by status",
	}, []string{"status"})

	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ponto",
		Name:      "match_duration_seconds",
		Help:      "Duration of a gallery scan",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	SpoofDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ponto",
		Name:      "spoof_detected_total",
		Help:      "Images rejected by the liveness gate",
	}, []string{"operation"})

	ProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ponto",
		Name:      "provider_duration_seconds",
		Help:      "Duration of external face provider calls",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"stage"})

	AttendanceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ponto",
		Name:      "attendance_events_total",
		Help:      "Attendance events appended to the daily log",
	}, []string{"direction"})

	SessionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ponto",
		Name:      "session_rejections_total",
		Help:      "Login and logout attempts refused by the ledger",
	}, []string{"reason"})

	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ponto",
		Name:      "enrollments_total",
		Help:      "Enrollment attempts by outcome",
	}, []string{"outcome"})

	GallerySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ponto",
		Name:      "gallery_size",
		Help:      "Number of enrolled identities",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ponto",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ponto",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
