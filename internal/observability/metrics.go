package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facematch",
		Name:      "photos_processed_total",
		Help:      "Total number of photos successfully processed",
	}, []string{"event_id"})

	PhotosFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facematch",
		Name:      "photos_failed_total",
		Help:      "Total number of photos that failed face extraction",
	}, []string{"event_id"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facematch",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected in event photos",
	}, []string{"event_id"})

	DetectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facematch",
		Name:      "detect_duration_seconds",
		Help:      "Duration of face detection/embedding stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facematch",
		Name:      "search_duration_seconds",
		Help:      "Duration of guest match searches",
		Buckets:   prometheus.DefBuckets,
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facematch",
		Name:      "queue_depth",
		Help:      "Number of pending photo jobs in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facematch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facematch",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
