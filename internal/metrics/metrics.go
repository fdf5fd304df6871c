package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magnetcast",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "magnetcast",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveStream = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "magnetcast",
		Name:      "active_stream",
		Help:      "Whether a stream session is currently active (0 or 1).",
	})

	StreamConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "magnetcast",
		Name:      "stream_connections",
		Help:      "Number of open HTTP client connections to the media endpoints.",
	})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "magnetcast",
		Name:      "download_speed_bytes",
		Help:      "Current download speed of the active session in bytes per second.",
	})

	UploadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "magnetcast",
		Name:      "upload_speed_bytes",
		Help:      "Current upload speed of the active session in bytes per second.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "magnetcast",
		Name:      "peers_connected",
		Help:      "Number of peers connected to the active session.",
	})

	SelectorArbiterCalls = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "magnetcast",
		Name:      "selector_arbiter_calls_total",
		Help:      "Total number of LLM arbiter invocations during file selection.",
	})

	SelectorFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "magnetcast",
		Name:      "selector_fallbacks_total",
		Help:      "Total number of selections that fell back to the largest file.",
	})

	SubtitleFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magnetcast",
		Name:      "subtitle_fetches_total",
		Help:      "Total subtitle fetch attempts by result.",
	}, []string{"result"})

	SessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "magnetcast",
		Name:      "sessions_started_total",
		Help:      "Total number of stream sessions started.",
	})

	SessionsTerminated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magnetcast",
		Name:      "sessions_terminated_total",
		Help:      "Total number of stream sessions terminated by reason.",
	}, []string{"reason"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveStream,
		StreamConnections,
		DownloadSpeedBytes,
		UploadSpeedBytes,
		PeersConnected,
		SelectorArbiterCalls,
		SelectorFallbacks,
		SubtitleFetches,
		SessionsStarted,
		SessionsTerminated,
	)
}
