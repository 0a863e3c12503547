package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "frames_processed_total",
		Help:      "Total number of camera frames processed by the capture loop",
	})

	FramesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "frames_skipped_total",
		Help:      "Frames skipped due to per-frame detection/recognition failures",
	}, []string{"reason"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	})

	FacesRecognized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "faces_recognized_total",
		Help:      "Total number of faces matched against the embedding store",
	}, []string{"identity"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	EngineState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "engine_state",
		Help:      "Capture loop state (0=stopped, 1=starting, 2=running, 3=stopping)",
	})

	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "enrollments_total",
		Help:      "Registration workflow outcomes",
	}, []string{"result"})

	IndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "matching_index_size",
		Help:      "Number of embeddings in the in-memory matching index",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
