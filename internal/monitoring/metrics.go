package monitoring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

var (
	// Local status server.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashsync_http_requests_total",
			Help: "Total number of HTTP requests served by the status server",
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashsync_http_request_duration_seconds",
			Help:    "Status server request latency in seconds",
			Buckets: durationBuckets,
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashsync_http_inflight",
			Help: "Number of status server requests currently being processed",
		},
	)

	// Backend dispatcher.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashsync_upstream_requests_total",
			Help: "Total number of backend API requests",
		},
		[]string{"method", "kind"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashsync_upstream_request_duration_seconds",
			Help:    "Backend API request latency in seconds",
			Buckets: durationBuckets,
		},
		[]string{"method"},
	)

	SessionExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashsync_session_expired_total",
			Help: "Number of session-expired notifications emitted",
		},
	)

	// Real-time channel.
	ChannelState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dashsync_channel_state",
			Help: "1 for the channel's current state, 0 otherwise",
		},
		[]string{"state"},
	)

	ChannelReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashsync_channel_reconnects_total",
			Help: "Number of scheduled channel reconnect attempts",
		},
	)

	ChannelFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashsync_channel_frames_total",
			Help: "Inbound channel frames by parse result",
		},
		[]string{"result"},
	)

	// Dashboard synchronizer.
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashsync_snapshots_total",
			Help: "Full snapshot fetches by result",
		},
		[]string{"result"},
	)

	DeltasTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashsync_deltas_total",
			Help: "Delta events applied to the view by kind",
		},
		[]string{"kind"},
	)

	// Token storage.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashsync_storage_operations_total",
			Help: "Key-value storage operations",
		},
		[]string{"backend", "operation", "result"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashsync_storage_operation_duration_seconds",
			Help:    "Key-value storage latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"backend", "operation"},
	)
)

// StatusClass collapses an HTTP status into "2xx", "4xx" and so on.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// SetChannelState marks state as the only active channel state.
func SetChannelState(state string, all []string) {
	for _, s := range all {
		if s == state {
			ChannelState.WithLabelValues(s).Set(1)
		} else {
			ChannelState.WithLabelValues(s).Set(0)
		}
	}
}

// ResultLabel maps an error to "ok" or "error".
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
